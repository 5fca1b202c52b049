package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/velvetline/velvetline/app/models"
	"github.com/velvetline/velvetline/internal/pkg/clock"
	"github.com/velvetline/velvetline/internal/pkg/notification"
	"github.com/velvetline/velvetline/internal/pkg/reservation"
)

// ErrBookingNotFound is returned when no booking matches the given code.
var ErrBookingNotFound = errors.New("booking not found")

const (
	defaultBatchSize  = 50
	defaultBatchDelay = 100 * time.Millisecond
)

// Lifecycle owns booking status transitions. PENDING is the only
// non-terminal state; PAID, CANCELLED and EXPIRED are terminal and
// re-applying a terminal transition is a no-op, never an error.
type Lifecycle struct {
	db             *gorm.DB
	reservations   *reservation.Manager
	sink           notification.Sink
	clock          clock.Clock
	reminderWindow time.Duration
	batchSize      int
	batchDelay     time.Duration
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithReminderWindow overrides how long before expiry the payment reminder
// fires.
func WithReminderWindow(d time.Duration) Option {
	return func(l *Lifecycle) {
		if d > 0 {
			l.reminderWindow = d
		}
	}
}

// WithBatch overrides the scan batch size and inter-batch delay.
func WithBatch(size int, delay time.Duration) Option {
	return func(l *Lifecycle) {
		if size > 0 {
			l.batchSize = size
		}
		if delay >= 0 {
			l.batchDelay = delay
		}
	}
}

// NewLifecycle wires the booking state machine to its collaborators.
func NewLifecycle(db *gorm.DB, reservations *reservation.Manager, sink notification.Sink, clk clock.Clock, opts ...Option) *Lifecycle {
	if clk == nil {
		clk = clock.NewSystem()
	}
	l := &Lifecycle{
		db:             db,
		reservations:   reservations,
		sink:           sink,
		clock:          clk,
		reminderWindow: 10 * time.Minute,
		batchSize:      defaultBatchSize,
		batchDelay:     defaultBatchDelay,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CreateInput describes a checkout request that survived validation.
type CreateInput struct {
	UserID       uint
	AccessTierID uint
	Quantity     int
	TTL          time.Duration
}

// Create reserves stock and creates a PENDING booking in one transaction.
// On insufficient stock the caller gets the typed rejection and nothing is
// written.
func (l *Lifecycle) Create(ctx context.Context, in CreateInput) (*models.Booking, error) {
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("create booking: quantity must be positive, got %d", in.Quantity)
	}
	if in.TTL <= 0 {
		in.TTL = 30 * time.Minute
	}

	var tier models.AccessTier
	if err := l.db.WithContext(ctx).First(&tier, in.AccessTierID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reservation.ErrTierNotFound
		}
		return nil, err
	}

	now := l.clock.Now()
	booking := &models.Booking{
		BookingCode:   models.GenerateBookingCode(),
		UserID:        in.UserID,
		AccessTierID:  in.AccessTierID,
		Quantity:      in.Quantity,
		Status:        models.BookingStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		TotalAmount:   tier.PriceCents * int64(in.Quantity),
		ExpiresAt:     now.Add(in.TTL),
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := l.reservations.ReserveForBookingTx(tx, in.AccessTierID, in.Quantity); err != nil {
			return err
		}
		return tx.Create(booking).Error
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// MarkPaid finalizes a booking after the gateway confirmed payment, either
// via webhook or verification sweep. Stock stays allocated. A booking that
// already reached a terminal state is left untouched.
func (l *Lifecycle) MarkPaid(ctx context.Context, bookingCode string) error {
	res := l.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("booking_code = ? AND status = ?", bookingCode, models.BookingStatusPending).
		Updates(map[string]interface{}{
			"status":         models.BookingStatusPaid,
			"payment_status": models.PaymentStatusPaid,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := l.db.WithContext(ctx).Model(&models.Booking{}).
			Where("booking_code = ?", bookingCode).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrBookingNotFound
		}
		// Terminal already; idempotent no-op.
	}
	return nil
}

// Cancel moves a PENDING booking to CANCELLED and returns its stock, both in
// one transaction. Terminal bookings are left untouched.
func (l *Lifecycle) Cancel(ctx context.Context, bookingCode string) error {
	return l.finalizeUnpaid(ctx, bookingCode, models.BookingStatusCancelled, models.PaymentStatusFailed)
}

// expire moves a PENDING booking past its deadline to EXPIRED, releases the
// stock and emits the payment-expired event.
func (l *Lifecycle) expire(ctx context.Context, bookingCode string) error {
	return l.finalizeUnpaid(ctx, bookingCode, models.BookingStatusExpired, models.PaymentStatusExpired)
}

func (l *Lifecycle) finalizeUnpaid(ctx context.Context, bookingCode, status, paymentStatus string) error {
	var booking models.Booking
	transitioned := false

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("AccessTier.Event").
			Where("booking_code = ?", bookingCode).
			First(&booking).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookingNotFound
			}
			return err
		}
		if booking.IsTerminal() {
			return nil
		}

		res := tx.Model(&models.Booking{}).
			Where("id = ? AND status = ?", booking.ID, models.BookingStatusPending).
			Updates(map[string]interface{}{
				"status":         status,
				"payment_status": paymentStatus,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// A concurrent transition won; stock was or will be handled there.
			return nil
		}

		transitioned = true
		return l.reservations.ReleaseForBookingTx(tx, booking.AccessTierID, booking.Quantity)
	})
	if err != nil {
		return err
	}

	if transitioned && status == models.BookingStatusExpired && l.sink != nil {
		ev := notification.Event{
			UserID:       booking.UserID,
			BookingCode:  booking.BookingCode,
			EventContext: booking.AccessTier.Event.Title,
		}
		if err := l.sink.PaymentExpired(ctx, ev); err != nil {
			log.Errorf("[Booking] Failed to emit expiry event for %s: %v", booking.BookingCode, err)
		}
	}
	return nil
}

// ProcessExpired scans PENDING bookings past their payment deadline and
// expires each one, releasing stock exactly once. Batches are bounded and
// throttled because sale openings produce large clusters of simultaneous
// deadlines.
func (l *Lifecycle) ProcessExpired(ctx context.Context) (int, error) {
	now := l.clock.Now()
	expired := 0

	for {
		var due []models.Booking
		err := l.db.WithContext(ctx).
			Where("status = ? AND payment_status = ? AND expires_at < ?",
				models.BookingStatusPending, models.PaymentStatusPending, now).
			Order("expires_at ASC").
			Limit(l.batchSize).
			Find(&due).Error
		if err != nil {
			return expired, err
		}
		if len(due) == 0 {
			return expired, nil
		}

		for _, b := range due {
			if err := l.expire(ctx, b.BookingCode); err != nil {
				log.Errorf("[Booking] Failed to expire %s: %v", b.BookingCode, err)
				continue
			}
			expired++
		}

		if len(due) < l.batchSize {
			return expired, nil
		}
		time.Sleep(l.batchDelay)
	}
}

// SendReminders emits one payment reminder per booking inside the reminder
// window. The ExpiryWarningAt flag is set with a conditional update so
// re-running the scan never produces a duplicate.
func (l *Lifecycle) SendReminders(ctx context.Context) (int, error) {
	now := l.clock.Now()
	deadline := now.Add(l.reminderWindow)
	sent := 0

	for {
		var due []models.Booking
		err := l.db.WithContext(ctx).
			Preload("AccessTier.Event").
			Where("status = ? AND expiry_warning_at IS NULL AND expires_at > ? AND expires_at <= ?",
				models.BookingStatusPending, now, deadline).
			Order("expires_at ASC").
			Limit(l.batchSize).
			Find(&due).Error
		if err != nil {
			return sent, err
		}
		if len(due) == 0 {
			return sent, nil
		}

		for _, b := range due {
			res := l.db.WithContext(ctx).
				Model(&models.Booking{}).
				Where("id = ? AND status = ? AND expiry_warning_at IS NULL", b.ID, models.BookingStatusPending).
				Update("expiry_warning_at", now)
			if res.Error != nil {
				log.Errorf("[Booking] Failed to flag reminder for %s: %v", b.BookingCode, res.Error)
				continue
			}
			if res.RowsAffected == 0 {
				// Another scan got here first.
				continue
			}

			if l.sink != nil {
				ev := notification.Event{
					UserID:       b.UserID,
					BookingCode:  b.BookingCode,
					EventContext: b.AccessTier.Event.Title,
				}
				if err := l.sink.PaymentReminder(ctx, ev); err != nil {
					log.Errorf("[Booking] Failed to emit reminder for %s: %v", b.BookingCode, err)
				}
			}
			sent++
		}

		if len(due) < l.batchSize {
			return sent, nil
		}
		time.Sleep(l.batchDelay)
	}
}

// GetByCode loads a booking with its tier and event context.
func (l *Lifecycle) GetByCode(ctx context.Context, bookingCode string) (*models.Booking, error) {
	var booking models.Booking
	err := l.db.WithContext(ctx).
		Preload("AccessTier.Event").
		Where("booking_code = ?", bookingCode).
		First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &booking, nil
}
