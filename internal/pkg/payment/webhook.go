package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/velvetline/velvetline/app/models"
	"github.com/velvetline/velvetline/internal/pkg/booking"
)

// WebhookProcessor records inbound gateway callbacks idempotently and applies
// confirmed payments to intents and bookings. Duplicate deliveries are
// detected by provider event id and ignored.
type WebhookProcessor struct {
	db        *gorm.DB
	repo      Repository
	lifecycle *booking.Lifecycle
}

// NewWebhookProcessor wires the webhook intake path.
func NewWebhookProcessor(db *gorm.DB, repo Repository, lifecycle *booking.Lifecycle) *WebhookProcessor {
	return &WebhookProcessor{db: db, repo: repo, lifecycle: lifecycle}
}

// Record persists the callback payload idempotently. Returns created=false
// when the same provider event was already stored.
func (p *WebhookProcessor) Record(ctx context.Context, in WebhookInput) (bool, *models.WebhookLog, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	entry := &models.WebhookLog{
		Provider:          provider,
		ProviderEventID:   eventID,
		OrderRef:          strings.TrimSpace(in.OrderRef),
		TransactionStatus: strings.ToLower(strings.TrimSpace(in.TransactionStatus)),
		PayloadJSON:       in.PayloadJSON,
		SignatureValid:    in.SignatureValid,
	}
	return p.repo.CreateWebhookLogIfNotExists(entry)
}

// Process applies a recorded callback to local payment state and marks the
// log row processed, storing the error if any step failed.
func (p *WebhookProcessor) Process(ctx context.Context, entry *models.WebhookLog) error {
	processErr := p.apply(ctx, entry)

	errMsg := ""
	if processErr != nil {
		errMsg = processErr.Error()
	}
	if err := p.repo.MarkWebhookProcessed(entry.ID, errMsg); err != nil {
		return err
	}
	return processErr
}

func (p *WebhookProcessor) apply(ctx context.Context, entry *models.WebhookLog) error {
	if !entry.SignatureValid {
		return errors.New("webhook signature invalid, payload not applied")
	}

	intent, err := p.repo.GetIntentByReference(entry.OrderRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("no payment intent for order ref %q", entry.OrderRef)
		}
		return err
	}

	switch entry.TransactionStatus {
	case GatewayStatusSettlement:
		done, err := p.repo.MarkIntentPaid(intent.ID, entry.CreatedAt)
		if err != nil {
			return err
		}
		if !done || intent.BookingID == nil {
			// Terminal already, or standalone payment; nothing more to apply.
			return nil
		}
		var b models.Booking
		if err := p.db.WithContext(ctx).Select("id", "booking_code").First(&b, *intent.BookingID).Error; err != nil {
			return err
		}
		return p.lifecycle.MarkPaid(ctx, b.BookingCode)

	case GatewayStatusExpire, GatewayStatusCancel, GatewayStatusDeny:
		_, err := p.repo.CancelIntent(intent.ID)
		return err

	case GatewayStatusPending:
		return nil

	default:
		return fmt.Errorf("unknown transaction status %q", entry.TransactionStatus)
	}
}
