package payment

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/velvetline/velvetline/app/models"
	"github.com/velvetline/velvetline/internal/pkg/booking"
	"github.com/velvetline/velvetline/internal/pkg/clock"
	"github.com/velvetline/velvetline/internal/pkg/notification"
	"github.com/velvetline/velvetline/internal/pkg/reservation"
)

// fakeVerifier returns canned gateway statuses per order reference.
type fakeVerifier struct {
	statuses map[string]string
	err      error
	block    chan struct{}
	calls    atomic.Int32
}

func (f *fakeVerifier) CheckStatus(ctx context.Context, orderRef string) (*GatewayTransaction, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	status, ok := f.statuses[orderRef]
	if !ok {
		return nil, fmt.Errorf("unknown order ref %q", orderRef)
	}
	return &GatewayTransaction{OrderRef: orderRef, Status: status}, nil
}

type guardFixture struct {
	db        *gorm.DB
	clk       *clock.Fixed
	verifier  *fakeVerifier
	guard     *Guard
	lifecycle *booking.Lifecycle
	tier      *models.AccessTier
}

func setupGuard(t *testing.T) *guardFixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Event{}, &models.AccessTier{}, &models.Booking{},
		&models.PaymentIntent{}, &models.WebhookLog{}, &models.AuditLog{})
	require.NoError(t, err)

	event := models.Event{Title: "Basement Live", StartsAt: time.Now().Add(24 * time.Hour), Status: models.EventStatusPublished}
	require.NoError(t, db.Create(&event).Error)
	tier := models.AccessTier{EventID: event.ID, Name: "Door", PriceCents: 1500, TotalQuantity: 50, AvailableQuantity: 50, IsActive: true}
	require.NoError(t, db.Create(&tier).Error)

	clk := clock.NewFixed(time.Now())
	lifecycle := booking.NewLifecycle(db, reservation.NewManager(db, clk), notification.NewMemorySink(), clk)
	verifier := &fakeVerifier{statuses: map[string]string{}}
	guard := NewGuard(db, NewRepository(db), verifier, lifecycle, clk)

	return &guardFixture{db: db, clk: clk, verifier: verifier, guard: guard, lifecycle: lifecycle, tier: &tier}
}

func (f *guardFixture) newBooking(t *testing.T) *models.Booking {
	b, err := f.lifecycle.Create(context.Background(), booking.CreateInput{
		UserID: 1, AccessTierID: f.tier.ID, Quantity: 1, TTL: 30 * time.Minute,
	})
	require.NoError(t, err)
	return b
}

func (f *guardFixture) reloadIntent(t *testing.T, id uint) *models.PaymentIntent {
	var intent models.PaymentIntent
	require.NoError(t, f.db.First(&intent, id).Error)
	return &intent
}

func TestStartPaymentCreatesPendingIntent(t *testing.T) {
	f := setupGuard(t)
	b := f.newBooking(t)

	intent, err := f.guard.StartPayment(context.Background(), b, 30*time.Minute)
	require.NoError(t, err)

	assert.Contains(t, intent.ReferenceID, "pay-")
	assert.Equal(t, models.IntentStatusPending, intent.Status)
	assert.Equal(t, models.IntentPurposeBooking, intent.Purpose)
	assert.Equal(t, b.TotalAmount, intent.AmountCents)
	require.NotNil(t, intent.BookingID)
	assert.Equal(t, b.ID, *intent.BookingID)
	assert.Equal(t, f.clk.Now().Add(30*time.Minute), intent.ExpiresAt)
}

func TestExpireStaleIntentsCancelsOnlyDue(t *testing.T) {
	f := setupGuard(t)
	b := f.newBooking(t)

	stale, err := f.guard.StartPayment(context.Background(), b, 10*time.Minute)
	require.NoError(t, err)
	fresh, err := f.guard.StartPayment(context.Background(), f.newBooking(t), 2*time.Hour)
	require.NoError(t, err)
	paid, err := f.guard.StartPayment(context.Background(), f.newBooking(t), 10*time.Minute)
	require.NoError(t, err)
	done, err := NewRepository(f.db).MarkIntentPaid(paid.ID, f.clk.Now())
	require.NoError(t, err)
	require.True(t, done)

	f.clk.Advance(time.Hour)

	res, err := f.guard.ExpireStaleIntents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Found)
	assert.Equal(t, 1, res.Cancelled)

	// a second sweep finds nothing left to cancel
	res, err = f.guard.ExpireStaleIntents(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Found)

	assert.Equal(t, models.IntentStatusCancelled, f.reloadIntent(t, stale.ID).Status)
	assert.Equal(t, models.IntentStatusPending, f.reloadIntent(t, fresh.ID).Status)
	assert.Equal(t, models.IntentStatusPaid, f.reloadIntent(t, paid.ID).Status)

	// the cleanup run lands in the audit trail
	var count int64
	require.NoError(t, f.db.Model(&models.AuditLog{}).
		Where("event_type = ?", "cleanup_run:payment_intent_expiry").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestVerifyPendingSettlesConfirmedPayment(t *testing.T) {
	f := setupGuard(t)
	b := f.newBooking(t)
	intent, err := f.guard.StartPayment(context.Background(), b, 30*time.Minute)
	require.NoError(t, err)

	f.verifier.statuses[intent.ReferenceID] = GatewayStatusSettlement

	res, err := f.guard.VerifyPending(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)
	assert.Equal(t, 1, res.Verified)

	got := f.reloadIntent(t, intent.ID)
	assert.Equal(t, models.IntentStatusPaid, got.Status)
	assert.NotNil(t, got.VerifiedAt)

	var paid models.Booking
	require.NoError(t, f.db.First(&paid, b.ID).Error)
	assert.Equal(t, models.BookingStatusPaid, paid.Status)
}

func TestVerifyPendingCancelsDeniedPayment(t *testing.T) {
	f := setupGuard(t)
	b := f.newBooking(t)
	intent, err := f.guard.StartPayment(context.Background(), b, 30*time.Minute)
	require.NoError(t, err)

	f.verifier.statuses[intent.ReferenceID] = GatewayStatusDeny

	_, err = f.guard.VerifyPending(context.Background(), 25)
	require.NoError(t, err)

	assert.Equal(t, models.IntentStatusCancelled, f.reloadIntent(t, intent.ID).Status)

	// the booking stays pending so the buyer can retry before the deadline
	var pending models.Booking
	require.NoError(t, f.db.First(&pending, b.ID).Error)
	assert.Equal(t, models.BookingStatusPending, pending.Status)
}

func TestVerifyPendingTouchesStillPending(t *testing.T) {
	f := setupGuard(t)
	intent, err := f.guard.StartPayment(context.Background(), f.newBooking(t), 30*time.Minute)
	require.NoError(t, err)

	f.verifier.statuses[intent.ReferenceID] = GatewayStatusPending

	res, err := f.guard.VerifyPending(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Verified)

	got := f.reloadIntent(t, intent.ID)
	assert.Equal(t, models.IntentStatusPending, got.Status)
	assert.NotNil(t, got.VerifiedAt)
}

func TestVerifyPendingGatewayErrorDoesNotChangeState(t *testing.T) {
	f := setupGuard(t)
	intent, err := f.guard.StartPayment(context.Background(), f.newBooking(t), 30*time.Minute)
	require.NoError(t, err)

	// verifier has no entry for this ref and errors out
	res, err := f.guard.VerifyPending(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)
	assert.Zero(t, res.Verified)

	assert.Equal(t, models.IntentStatusPending, f.reloadIntent(t, intent.ID).Status)
}

func TestRecoverMissedSettlesAndRecordsAnomaly(t *testing.T) {
	f := setupGuard(t)
	b := f.newBooking(t)
	intent, err := f.guard.StartPayment(context.Background(), b, 30*time.Minute)
	require.NoError(t, err)
	f.verifier.statuses[intent.ReferenceID] = GatewayStatusSettlement

	// not old enough yet; the sweep must not pick it up
	res, err := f.guard.RecoverMissed(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Scanned)

	// age the intent past the recovery threshold
	require.NoError(t, f.db.Model(&models.PaymentIntent{}).
		Where("id = ?", intent.ID).
		Update("created_at", f.clk.Now().Add(-3*time.Hour)).Error)

	res, err = f.guard.RecoverMissed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scanned)
	assert.Equal(t, 1, res.Recovered)

	assert.Equal(t, models.IntentStatusPaid, f.reloadIntent(t, intent.ID).Status)

	var paid models.Booking
	require.NoError(t, f.db.First(&paid, b.ID).Error)
	assert.Equal(t, models.BookingStatusPaid, paid.Status)

	var anomalies int64
	require.NoError(t, f.db.Model(&models.AuditLog{}).
		Where("event_type = ? AND level = ?", "payment_recovery_found_missed", models.AuditLevelCritical).
		Count(&anomalies).Error)
	assert.Equal(t, int64(1), anomalies)
}

func TestVerifySweepRejectsOverlappingRun(t *testing.T) {
	f := setupGuard(t)
	intent, err := f.guard.StartPayment(context.Background(), f.newBooking(t), 30*time.Minute)
	require.NoError(t, err)
	f.verifier.statuses[intent.ReferenceID] = GatewayStatusPending
	f.verifier.block = make(chan struct{})

	firstDone := make(chan error, 1)
	go func() {
		_, err := f.guard.VerifyPending(context.Background(), 25)
		firstDone <- err
	}()

	// wait until the first sweep is inside the gateway call
	require.Eventually(t, func() bool { return f.verifier.calls.Load() > 0 }, time.Second, 5*time.Millisecond)

	_, err = f.guard.VerifyPending(context.Background(), 25)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(f.verifier.block)
	require.NoError(t, <-firstDone)

	// once the first run drained, the sweep is available again
	f.verifier.block = nil
	_, err = f.guard.VerifyPending(context.Background(), 25)
	assert.NoError(t, err)
}
