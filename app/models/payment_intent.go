package models

import (
	"time"
)

const (
	IntentStatusPending    = "PENDING"
	IntentStatusProcessing = "PROCESSING"
	IntentStatusPaid       = "PAID"
	IntentStatusCancelled  = "CANCELLED"
)

const (
	IntentPurposeBooking   = "booking"
	IntentPurposeGuestlist = "guestlist"
)

// PaymentIntent tracks a single attempted payment against the gateway. It is
// independent of Booking so non-booking flows (guestlist fees) can reuse it.
// PAID and CANCELLED are terminal; rows are archived, never deleted, before
// reaching a terminal state.
type PaymentIntent struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	ReferenceID string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"reference_id"`
	BookingID   *uint      `gorm:"index;default:null" json:"booking_id,omitempty"`
	Purpose     string     `gorm:"type:varchar(20);not null;default:'booking'" json:"purpose"`
	AmountCents int64      `gorm:"not null;default:0" json:"amount_cents"`
	Status      string     `gorm:"type:varchar(16);not null;default:'PENDING';index:idx_payment_intents_status_expires,priority:1" json:"status"`
	ExpiresAt   time.Time  `gorm:"not null;index:idx_payment_intents_status_expires,priority:2" json:"expires_at"`
	LockToken   string     `gorm:"type:varchar(64)" json:"-"`
	LockedAt    *time.Time `gorm:"type:timestamp;default:null" json:"-"`
	VerifiedAt  *time.Time `gorm:"type:timestamp;default:null" json:"verified_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the intent reached a final status.
func (p *PaymentIntent) IsTerminal() bool {
	return p.Status == IntentStatusPaid || p.Status == IntentStatusCancelled
}
