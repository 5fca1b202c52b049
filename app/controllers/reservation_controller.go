package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/velvetline/velvetline/internal/pkg/reservation"
	"github.com/velvetline/velvetline/internal/pkg/usercontext"
)

// CreateReservationRequest asks for a short-lived stock hold without a
// booking behind it.
type CreateReservationRequest struct {
	AccessTierID uint `json:"access_tier_id" validate:"required,min=1"`
	Quantity     int  `json:"quantity" validate:"required,min=1,max=10"`
	TTLSeconds   int  `json:"ttl_seconds" validate:"omitempty,min=30,max=1800"`
}

const defaultHoldTTL = 5 * time.Minute

// HandleCreateReservation places a temporary hold on tier stock.
func HandleCreateReservation(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req CreateReservationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Malformed JSON body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	ttl := defaultHoldTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	userID := userCtx.UserID
	hold, err := getEngine().Reservations.Reserve(c.UserContext(), req.AccessTierID, &userID, req.Quantity, ttl)
	if err != nil {
		if reservation.IsInsufficientStock(err) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "insufficient_stock", "message": err.Error()})
		}
		if errors.Is(err, reservation.ErrTierNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Access tier not found"})
		}
		fiberlog.Errorf("[Reservation] Hold failed for tier %d: %v", req.AccessTierID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Reservation failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"hold_token":     hold.HoldToken,
		"access_tier_id": hold.AccessTierID,
		"quantity":       hold.Quantity,
		"expires_at":     hold.ExpiresAt,
	})
}

// HandleReleaseReservation drops a hold. Releasing an already released or
// expired hold succeeds.
func HandleReleaseReservation(c *fiber.Ctx) error {
	token := c.Params("token")
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Missing hold token"})
	}

	if err := getEngine().Reservations.Release(c.UserContext(), token); err != nil {
		if errors.Is(err, reservation.ErrReservationNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Reservation not found"})
		}
		fiberlog.Errorf("[Reservation] Release failed for %s: %v", token, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Release failed"})
	}

	return c.JSON(fiber.Map{"ok": true})
}
