package models

import (
	"time"
)

const (
	EventStatusDraft     = "draft"
	EventStatusPublished = "published"
	EventStatusArchived  = "archived"
)

type Event struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"type:varchar(200);not null" json:"title" validate:"required,min=3,max=200"`
	Venue       string    `gorm:"type:varchar(200)" json:"venue" validate:"max=200"`
	Description string    `gorm:"type:text" json:"description"`
	StartsAt    time.Time `gorm:"not null;index" json:"starts_at"`
	Status      string    `gorm:"type:varchar(20);not null;default:'draft';index" json:"status" validate:"oneof=draft published archived"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	AccessTiers []AccessTier `gorm:"foreignKey:EventID" json:"access_tiers,omitempty"`
}
