package repository

import (
	"github.com/velvetline/velvetline/app/models"
	"gorm.io/gorm"
)

// eventRepository implements the EventRepository interface
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new event repository instance
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// Create creates a new event in the database
func (r *eventRepository) Create(event *models.Event) error {
	return r.db.Create(event).Error
}

// GetByID retrieves an event with its access tiers
func (r *eventRepository) GetByID(id uint) (*models.Event, error) {
	var event models.Event
	err := r.db.Preload("AccessTiers").First(&event, id).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// GetPublished retrieves published events with pagination
func (r *eventRepository) GetPublished(offset, limit int) ([]models.Event, error) {
	var events []models.Event
	err := r.db.Preload("AccessTiers", "is_active = ?", true).
		Where("status = ?", models.EventStatusPublished).
		Order("starts_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&events).Error
	return events, err
}

// Update updates an existing event
func (r *eventRepository) Update(event *models.Event) error {
	return r.db.Save(event).Error
}

// Count returns the total number of events
func (r *eventRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Event{}).Count(&count).Error
	return count, err
}

// GetTierByID retrieves a single access tier
func (r *eventRepository) GetTierByID(id uint) (*models.AccessTier, error) {
	var tier models.AccessTier
	err := r.db.First(&tier, id).Error
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

// GetTiersByEventID retrieves all access tiers belonging to an event
func (r *eventRepository) GetTiersByEventID(eventID uint) ([]models.AccessTier, error) {
	var tiers []models.AccessTier
	err := r.db.Where("event_id = ?", eventID).Order("price_cents ASC").Find(&tiers).Error
	return tiers, err
}

// CreateTier creates a new access tier. AvailableQuantity starts at the full
// capacity when not set explicitly.
func (r *eventRepository) CreateTier(tier *models.AccessTier) error {
	if tier.AvailableQuantity == 0 && tier.SoldQuantity == 0 {
		tier.AvailableQuantity = tier.TotalQuantity
	}
	return r.db.Create(tier).Error
}

// UpdateTier updates an existing access tier
func (r *eventRepository) UpdateTier(tier *models.AccessTier) error {
	return r.db.Save(tier).Error
}

// FindInconsistentTiers returns tiers whose quantity counters violate the
// inventory invariant. A non-empty result indicates a bug, not user error.
func (r *eventRepository) FindInconsistentTiers() ([]models.AccessTier, error) {
	var tiers []models.AccessTier
	err := r.db.
		Where("available_quantity < 0 OR sold_quantity < 0 OR sold_quantity + available_quantity > total_quantity").
		Find(&tiers).Error
	return tiers, err
}
