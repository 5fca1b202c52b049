package repository

import (
	"time"

	"github.com/velvetline/velvetline/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	Update(user *models.User) error
	Count() (int64, error)
}

// EventRepository defines the interface for event and access tier operations
type EventRepository interface {
	Create(event *models.Event) error
	GetByID(id uint) (*models.Event, error)
	GetPublished(offset, limit int) ([]models.Event, error)
	Update(event *models.Event) error
	Count() (int64, error)
	GetTierByID(id uint) (*models.AccessTier, error)
	GetTiersByEventID(eventID uint) ([]models.AccessTier, error)
	CreateTier(tier *models.AccessTier) error
	UpdateTier(tier *models.AccessTier) error
	FindInconsistentTiers() ([]models.AccessTier, error)
}

// BookingRepository defines the interface for booking-related read operations.
// Status transitions go through the lifecycle package, never through here.
type BookingRepository interface {
	GetByID(id uint) (*models.Booking, error)
	GetByCode(code string) (*models.Booking, error)
	GetByUserID(userID uint, offset, limit int) ([]models.Booking, error)
	CountByStatus(status string) (int64, error)
	GetDailyStats(startDate, endDate time.Time) ([]models.DailyStats, error)
}

// SettingRepository defines the interface for application settings
type SettingRepository interface {
	Get() (*models.AppSettings, error)
	Save(settings *models.AppSettings) error
	GetValue(key string) (string, error)
	SetValue(key, value string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	User    UserRepository
	Event   EventRepository
	Booking BookingRepository
	Setting SettingRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:    NewUserRepository(db),
		Event:   NewEventRepository(db),
		Booking: NewBookingRepository(db),
		Setting: NewSettingRepository(db),
	}
}
