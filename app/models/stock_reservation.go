package models

import (
	"time"
)

const (
	ReservationStatusReserved  = "RESERVED"
	ReservationStatusReleased  = "RELEASED"
	ReservationStatusCommitted = "COMMITTED"
)

// StockReservation is a short-lived hold on tier inventory while a payment
// UI is open, before a booking is finalized. A RESERVED row always
// corresponds to quantity already subtracted from the tier's
// AvailableQuantity; expiry returns it exactly once.
type StockReservation struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	HoldToken    string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"hold_token"`
	AccessTierID uint       `gorm:"not null;index" json:"access_tier_id"`
	AccessTier   AccessTier `gorm:"foreignKey:AccessTierID" json:"access_tier,omitempty"`
	UserID       *uint      `gorm:"index;default:null" json:"user_id,omitempty"`
	Quantity     int        `gorm:"not null" json:"quantity"`
	Status       string     `gorm:"type:varchar(16);not null;default:'RESERVED';index:idx_stock_reservations_status_expires,priority:1" json:"status"`
	ExpiresAt    time.Time  `gorm:"not null;index:idx_stock_reservations_status_expires,priority:2" json:"expires_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
