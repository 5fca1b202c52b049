package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	BookingStatusPending   = "PENDING"
	BookingStatusPaid      = "PAID"
	BookingStatusCancelled = "CANCELLED"
	BookingStatusExpired   = "EXPIRED"
)

const (
	PaymentStatusPending = "PENDING"
	PaymentStatusPaid    = "PAID"
	PaymentStatusFailed  = "FAILED"
	PaymentStatusExpired = "EXPIRED"
)

// Booking is one buyer's claim on N units of an access tier. While the
// booking is PENDING its quantity is already reflected in the tier's
// SoldQuantity; exactly one terminal transition (PAID, CANCELLED or EXPIRED)
// ever happens and re-applying it is a no-op. Bookings are never deleted,
// only status-transitioned.
type Booking struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	BookingCode     string     `gorm:"type:varchar(20);uniqueIndex;not null" json:"booking_code"`
	UserID          uint       `gorm:"not null;index" json:"user_id"`
	User            User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	AccessTierID    uint       `gorm:"not null;index" json:"access_tier_id"`
	AccessTier      AccessTier `gorm:"foreignKey:AccessTierID" json:"access_tier,omitempty"`
	Quantity        int        `gorm:"not null" json:"quantity" validate:"required,min=1"`
	Status          string     `gorm:"type:varchar(16);not null;default:'PENDING';index:idx_bookings_status_expires,priority:1" json:"status"`
	PaymentStatus   string     `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"payment_status"`
	TotalAmount     int64      `gorm:"not null;default:0" json:"total_amount"`
	ExpiresAt       time.Time  `gorm:"not null;index:idx_bookings_status_expires,priority:2" json:"expires_at"`
	ExpiryWarningAt *time.Time `gorm:"type:timestamp;default:null" json:"expiry_warning_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the booking status permits no further
// transition.
func (b *Booking) IsTerminal() bool {
	return b.Status != BookingStatusPending
}

// GenerateBookingCode returns a short external-facing booking reference.
func GenerateBookingCode() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "VL-" + id[:12]
}
