package payment

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velvetline/velvetline/app/models"
	"github.com/velvetline/velvetline/internal/pkg/auditlog"
	"github.com/velvetline/velvetline/internal/pkg/booking"
	"github.com/velvetline/velvetline/internal/pkg/clock"
)

const (
	staleBatchSize = 50
	// recoveryAge is how long an intent must have been pending before the
	// recovery sweep considers its webhook and verification window both
	// missed.
	recoveryAge = 2 * time.Hour
	// recoveryLimit bounds one recovery sweep against gateway rate limits.
	recoveryLimit = 100
)

// Guard owns PaymentIntent status and TTL handling and reconciles local
// payment state with the gateway. Each sweep is single-flight: a request
// arriving while the same sweep runs is rejected with ErrAlreadyRunning,
// never queued.
type Guard struct {
	db        *gorm.DB
	repo      Repository
	verifier  VerificationClient
	lifecycle *booking.Lifecycle
	clock     clock.Clock

	expireRunning  atomic.Bool
	verifyRunning  atomic.Bool
	recoverRunning atomic.Bool
}

// NewGuard wires the payment intent guard to its collaborators.
func NewGuard(db *gorm.DB, repo Repository, verifier VerificationClient, lifecycle *booking.Lifecycle, clk clock.Clock) *Guard {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Guard{
		db:        db,
		repo:      repo,
		verifier:  verifier,
		lifecycle: lifecycle,
		clock:     clk,
	}
}

// StartPayment creates a PENDING intent for a booking. The returned
// reference is the order id the gateway reports back in webhooks and status
// checks.
func (g *Guard) StartPayment(ctx context.Context, b *models.Booking, ttl time.Duration) (*models.PaymentIntent, error) {
	_ = ctx
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	bookingID := b.ID
	intent := &models.PaymentIntent{
		ReferenceID: "pay-" + uuid.NewString(),
		BookingID:   &bookingID,
		Purpose:     models.IntentPurposeBooking,
		AmountCents: b.TotalAmount,
		Status:      models.IntentStatusPending,
		ExpiresAt:   g.clock.Now().Add(ttl),
		LockToken:   uuid.NewString(),
	}
	if err := g.repo.CreateIntent(intent); err != nil {
		return nil, err
	}
	return intent, nil
}

// StartStandalonePayment creates an intent not tied to a booking, e.g. a
// guestlist fee.
func (g *Guard) StartStandalonePayment(ctx context.Context, purpose string, amountCents int64, ttl time.Duration) (*models.PaymentIntent, error) {
	_ = ctx
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	intent := &models.PaymentIntent{
		ReferenceID: "pay-" + uuid.NewString(),
		Purpose:     purpose,
		AmountCents: amountCents,
		Status:      models.IntentStatusPending,
		ExpiresAt:   g.clock.Now().Add(ttl),
		LockToken:   uuid.NewString(),
	}
	if err := g.repo.CreateIntent(intent); err != nil {
		return nil, err
	}
	return intent, nil
}

// ExpireStaleIntents cancels PENDING/PROCESSING intents past their deadline.
// Individual row failures are counted, not fatal to the batch.
func (g *Guard) ExpireStaleIntents(ctx context.Context) (ExpireResult, error) {
	if !g.expireRunning.CompareAndSwap(false, true) {
		return ExpireResult{}, ErrAlreadyRunning
	}
	defer g.expireRunning.Store(false)

	result := ExpireResult{}
	now := g.clock.Now()

	for {
		stale, err := g.repo.FindStaleIntents(now, staleBatchSize)
		if err != nil {
			return result, err
		}
		if len(stale) == 0 {
			break
		}
		result.Found += len(stale)

		for _, intent := range stale {
			done, err := g.repo.CancelIntent(intent.ID)
			if err != nil {
				log.Errorf("[PaymentGuard] Failed to cancel stale intent %s: %v", intent.ReferenceID, err)
				continue
			}
			if done {
				result.Cancelled++
			}
		}
		if len(stale) < staleBatchSize {
			break
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
	}

	if result.Cancelled > 0 {
		auditlog.RecordCleanupRun(g.db, "payment_intent_expiry", map[string]interface{}{
			"found":     result.Found,
			"cancelled": result.Cancelled,
		})
	}
	return result, nil
}

// VerifyPending re-checks up to limit recent pending payments against the
// gateway and reconciles local state to match gateway truth. It runs
// frequently because it is the primary defense against lost webhooks.
func (g *Guard) VerifyPending(ctx context.Context, limit int) (VerifyResult, error) {
	if !g.verifyRunning.CompareAndSwap(false, true) {
		return VerifyResult{}, ErrAlreadyRunning
	}
	defer g.verifyRunning.Store(false)

	if limit <= 0 {
		limit = 25
	}

	intents, err := g.repo.FindPendingIntents(limit)
	if err != nil {
		return VerifyResult{}, err
	}

	result := VerifyResult{}
	for _, intent := range intents {
		result.Checked++
		if err := g.reconcileIntent(ctx, &intent); err != nil {
			log.Errorf("[PaymentGuard] Verification of %s failed: %v", intent.ReferenceID, err)
			continue
		}
		result.Verified++
	}
	return result, nil
}

// RecoverMissed sweeps old pending intents whose webhook never arrived and
// whose verification window has passed. Zero matches is the expected
// outcome; anything recovered is reported as a systemic anomaly.
func (g *Guard) RecoverMissed(ctx context.Context) (RecoverResult, error) {
	if !g.recoverRunning.CompareAndSwap(false, true) {
		return RecoverResult{}, ErrAlreadyRunning
	}
	defer g.recoverRunning.Store(false)

	cutoff := g.clock.Now().Add(-recoveryAge)
	intents, err := g.repo.FindOverdueIntents(cutoff, recoveryLimit)
	if err != nil {
		return RecoverResult{}, err
	}

	result := RecoverResult{Scanned: len(intents)}
	for _, intent := range intents {
		tx, err := g.verifier.CheckStatus(ctx, intent.ReferenceID)
		if err != nil {
			log.Errorf("[PaymentGuard] Recovery check of %s failed: %v", intent.ReferenceID, err)
			continue
		}
		if tx.Status != GatewayStatusSettlement {
			continue
		}
		done, err := g.settleIntent(ctx, &intent)
		if err != nil {
			log.Errorf("[PaymentGuard] Recovery settle of %s failed: %v", intent.ReferenceID, err)
			continue
		}
		if done {
			result.Recovered++
		}
	}

	if result.Recovered > 0 {
		log.Warnf("[PaymentGuard] Recovery sweep settled %d payments whose webhooks were lost", result.Recovered)
		auditlog.RecordAnomaly(g.db, "payment_recovery_found_missed", map[string]interface{}{
			"scanned":   result.Scanned,
			"recovered": result.Recovered,
		})
	}
	return result, nil
}

// reconcileIntent applies the gateway's view of one payment to local state.
func (g *Guard) reconcileIntent(ctx context.Context, intent *models.PaymentIntent) error {
	tx, err := g.verifier.CheckStatus(ctx, intent.ReferenceID)
	if err != nil {
		return err
	}

	switch tx.Status {
	case GatewayStatusSettlement:
		_, err := g.settleIntent(ctx, intent)
		return err
	case GatewayStatusExpire, GatewayStatusCancel, GatewayStatusDeny:
		_, err := g.repo.CancelIntent(intent.ID)
		return err
	case GatewayStatusPending:
		return g.repo.TouchIntentVerified(intent.ID, g.clock.Now())
	default:
		return fmt.Errorf("unknown gateway status %q for %s", tx.Status, intent.ReferenceID)
	}
}

// settleIntent marks an intent PAID and finalizes its booking, if any.
// Returns whether this call performed the transition.
func (g *Guard) settleIntent(ctx context.Context, intent *models.PaymentIntent) (bool, error) {
	done, err := g.repo.MarkIntentPaid(intent.ID, g.clock.Now())
	if err != nil {
		return false, err
	}
	if !done || intent.BookingID == nil {
		return done, nil
	}

	var b models.Booking
	if err := g.db.WithContext(ctx).Select("id", "booking_code").First(&b, *intent.BookingID).Error; err != nil {
		return done, fmt.Errorf("booking lookup for intent %s: %w", intent.ReferenceID, err)
	}
	if err := g.lifecycle.MarkPaid(ctx, b.BookingCode); err != nil && !errors.Is(err, booking.ErrBookingNotFound) {
		return done, err
	}
	return done, nil
}
