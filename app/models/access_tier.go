package models

import (
	"time"
)

// AccessTier is a sellable ticket category with finite capacity. Quantities
// are only ever mutated by the reservation manager inside a transaction so
// that sold + available never exceeds total.
type AccessTier struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	EventID           uint      `gorm:"not null;index" json:"event_id"`
	Event             Event     `gorm:"foreignKey:EventID" json:"event,omitempty"`
	Name              string    `gorm:"type:varchar(100);not null" json:"name" validate:"required,max=100"`
	PriceCents        int64     `gorm:"not null;default:0" json:"price_cents"`
	TotalQuantity     int       `gorm:"not null" json:"total_quantity"`
	SoldQuantity      int       `gorm:"not null;default:0" json:"sold_quantity"`
	AvailableQuantity int       `gorm:"not null;default:0" json:"available_quantity"`
	ViewCount         uint64    `gorm:"not null;default:0" json:"view_count"`
	IsActive          bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// QuantitiesConsistent reports whether the tier counters satisfy the
// inventory invariant.
func (t *AccessTier) QuantitiesConsistent() bool {
	if t.AvailableQuantity < 0 || t.SoldQuantity < 0 {
		return false
	}
	return t.SoldQuantity+t.AvailableQuantity <= t.TotalQuantity
}
