package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velvetline/velvetline/app/models"
	"github.com/velvetline/velvetline/internal/pkg/clock"
)

var (
	// ErrTierNotFound is returned when the access tier does not exist.
	ErrTierNotFound = errors.New("access tier not found")
	// ErrReservationNotFound is returned when no hold matches the token.
	ErrReservationNotFound = errors.New("stock reservation not found")
)

// InsufficientStockError is returned when a tier cannot cover the requested
// quantity. The reservation is rejected without side effects and never
// retried automatically.
type InsufficientStockError struct {
	TierID    uint
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for tier %d: requested %d, available %d", e.TierID, e.Requested, e.Available)
}

// IsInsufficientStock reports whether err is an insufficient stock rejection.
func IsInsufficientStock(err error) bool {
	var target *InsufficientStockError
	return errors.As(err, &target)
}

const (
	conflictRetries   = 3
	defaultBatchSize  = 50
	interBatchDelayMs = 100
)

// Manager owns all mutations of tier quantities. Every change to
// AvailableQuantity/SoldQuantity happens inside a transaction that also
// touches the owning Booking or StockReservation row, using conditional
// updates so concurrent reservations serialize on the tier row.
type Manager struct {
	db    *gorm.DB
	clock clock.Clock
}

// NewManager creates a reservation manager on top of a GORM handle.
func NewManager(db *gorm.DB, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Manager{db: db, clock: clk}
}

// Reserve places a short-lived hold on tier stock while a payment UI is
// open. The hold quantity is subtracted from AvailableQuantity immediately;
// it is not counted as sold until Commit.
func (m *Manager) Reserve(ctx context.Context, tierID uint, userID *uint, quantity int, ttl time.Duration) (*models.StockReservation, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("reserve: quantity must be positive, got %d", quantity)
	}

	hold := &models.StockReservation{
		HoldToken:    uuid.NewString(),
		AccessTierID: tierID,
		UserID:       userID,
		Quantity:     quantity,
		Status:       models.ReservationStatusReserved,
		ExpiresAt:    m.clock.Now().Add(ttl),
	}

	err := m.withConflictRetry(func() error {
		return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := takeStock(tx, tierID, quantity, false); err != nil {
				return err
			}
			return tx.Create(hold).Error
		})
	})
	if err != nil {
		return nil, err
	}
	return hold, nil
}

// Release returns a hold's stock to the tier exactly once. Calling it again
// for an already released or committed hold is a no-op.
func (m *Manager) Release(ctx context.Context, holdToken string) error {
	return m.withConflictRetry(func() error {
		return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var hold models.StockReservation
			if err := tx.Where("hold_token = ?", holdToken).First(&hold).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrReservationNotFound
				}
				return err
			}
			if hold.Status != models.ReservationStatusReserved {
				// Already released or committed; idempotent.
				return nil
			}

			res := tx.Model(&models.StockReservation{}).
				Where("id = ? AND status = ?", hold.ID, models.ReservationStatusReserved).
				Update("status", models.ReservationStatusReleased)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// Lost the race against a concurrent release; nothing left to do.
				return nil
			}
			return returnStock(tx, hold.AccessTierID, hold.Quantity, false)
		})
	})
}

// Commit finalizes a hold into sold quantity once the owning booking is
// created. The stock was already taken from AvailableQuantity at Reserve
// time, so only SoldQuantity moves here.
func (m *Manager) Commit(ctx context.Context, holdToken string) error {
	return m.withConflictRetry(func() error {
		return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var hold models.StockReservation
			if err := tx.Where("hold_token = ?", holdToken).First(&hold).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrReservationNotFound
				}
				return err
			}
			if hold.Status == models.ReservationStatusCommitted {
				return nil
			}
			if hold.Status != models.ReservationStatusReserved {
				return fmt.Errorf("commit: hold %s already %s", holdToken, hold.Status)
			}

			res := tx.Model(&models.StockReservation{}).
				Where("id = ? AND status = ?", hold.ID, models.ReservationStatusReserved).
				Update("status", models.ReservationStatusCommitted)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("commit: hold %s changed concurrently", holdToken)
			}
			return tx.Model(&models.AccessTier{}).
				Where("id = ?", hold.AccessTierID).
				Update("sold_quantity", gorm.Expr("sold_quantity + ?", hold.Quantity)).Error
		})
	})
}

// ReserveForBookingTx decrements tier stock for a new booking inside the
// caller's transaction. The booking row must be created in the same
// transaction so a crash cannot separate the two updates.
func (m *Manager) ReserveForBookingTx(tx *gorm.DB, tierID uint, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("reserve: quantity must be positive, got %d", quantity)
	}
	return takeStock(tx, tierID, quantity, true)
}

// ReleaseForBookingTx returns booking stock inside the caller's transaction.
// The caller flips the booking to its terminal status in the same
// transaction; idempotence is guaranteed by that status guard, not here.
func (m *Manager) ReleaseForBookingTx(tx *gorm.DB, tierID uint, quantity int) error {
	return returnStock(tx, tierID, quantity, true)
}

// ExpireStale releases RESERVED holds whose deadline passed, in bounded
// batches. Returns the number of holds released.
func (m *Manager) ExpireStale(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	now := m.clock.Now()
	released := 0

	for {
		var stale []models.StockReservation
		err := m.db.WithContext(ctx).
			Where("status = ? AND expires_at < ?", models.ReservationStatusReserved, now).
			Order("expires_at ASC").
			Limit(batchSize).
			Find(&stale).Error
		if err != nil {
			return released, err
		}
		if len(stale) == 0 {
			return released, nil
		}

		for _, hold := range stale {
			if err := m.Release(ctx, hold.HoldToken); err != nil {
				log.Errorf("[Reservation] Failed to release stale hold %s: %v", hold.HoldToken, err)
				continue
			}
			released++
		}

		if len(stale) < batchSize {
			return released, nil
		}
		// Throttle between batches so a burst of expirations does not
		// monopolize the database.
		time.Sleep(interBatchDelayMs * time.Millisecond)
	}
}

// takeStock applies the conditional decrement that enforces the non-oversell
// invariant. toSold also counts the quantity as sold (booking path); holds
// only move it out of AvailableQuantity.
func takeStock(tx *gorm.DB, tierID uint, quantity int, toSold bool) error {
	updates := map[string]interface{}{
		"available_quantity": gorm.Expr("available_quantity - ?", quantity),
	}
	if toSold {
		updates["sold_quantity"] = gorm.Expr("sold_quantity + ?", quantity)
	}

	res := tx.Model(&models.AccessTier{}).
		Where("id = ? AND available_quantity >= ?", tierID, quantity).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var tier models.AccessTier
		if err := tx.Select("id", "available_quantity").First(&tier, tierID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTierNotFound
			}
			return err
		}
		return &InsufficientStockError{TierID: tierID, Requested: quantity, Available: tier.AvailableQuantity}
	}
	return nil
}

func returnStock(tx *gorm.DB, tierID uint, quantity int, fromSold bool) error {
	updates := map[string]interface{}{
		"available_quantity": gorm.Expr("available_quantity + ?", quantity),
	}
	if fromSold {
		updates["sold_quantity"] = gorm.Expr("sold_quantity - ?", quantity)
	}

	res := tx.Model(&models.AccessTier{}).Where("id = ?", tierID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTierNotFound
	}
	return nil
}

// withConflictRetry retries a transaction a few times when the database
// reports a serialization conflict (MySQL deadlock / lock wait timeout).
func (m *Manager) withConflictRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err = fn()
		if err == nil || !isConflict(err) {
			return err
		}
		log.Debugf("[Reservation] Retrying after conflict (attempt %d): %v", attempt+1, err)
	}
	return err
}

func isConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Deadlock found") || strings.Contains(msg, "Lock wait timeout")
}
