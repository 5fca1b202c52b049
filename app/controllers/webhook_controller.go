package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/velvetline/velvetline/internal/pkg/env"
	"github.com/velvetline/velvetline/internal/pkg/payment"
)

// HandlePaymentWebhook ingests a gateway callback. The log row is written
// before any processing so a crash mid-apply never loses the event, and the
// provider event id makes redelivery a no-op.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	eventID := firstHeaderValue(c, "X-Gateway-Event-ID", "X-Webhook-Delivery")
	signature := strings.TrimSpace(c.Get("X-Gateway-Signature"))
	secret := env.GetEnv("GATEWAY_WEBHOOK_SECRET", "")

	var body struct {
		OrderID           string `json:"order_id"`
		TransactionStatus string `json:"transaction_status"`
	}
	if err := c.BodyParser(&body); err != nil || body.OrderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	signatureValid := payment.VerifyWebhookSignature(rawBody, signature, secret)
	created, stored, err := getEngine().Webhooks.Record(ctx, payment.WebhookInput{
		Provider:          "payrail",
		ProviderEventID:   eventID,
		OrderRef:          body.OrderID,
		TransactionStatus: body.TransactionStatus,
		PayloadJSON:       string(rawBody),
		SignatureValid:    signatureValid,
	})
	if err != nil {
		fiberlog.Errorf("[Webhook] Persist failed for order %s: %v", body.OrderID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if !signatureValid {
		// Process marks the row with the rejection reason.
		_ = getEngine().Webhooks.Process(ctx, stored)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	if err := getEngine().Webhooks.Process(ctx, stored); err != nil {
		fiberlog.Errorf("[Webhook] Processing failed for order %s: %v", body.OrderID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(c.Get(key)); v != "" {
			return v
		}
	}
	return ""
}
