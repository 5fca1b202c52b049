package models

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Setting represents a system setting
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null" json:"type" validate:"required"` // string, boolean, integer, float
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppSettings represents the application settings structure
type AppSettings struct {
	SiteTitle                 string `json:"site_title" validate:"required,min=1,max=255"`
	BookingTTLMinutes         int    `json:"booking_ttl_minutes" validate:"min=1"`
	ReminderWindowMinutes     int    `json:"reminder_window_minutes" validate:"min=1"`
	CleanupIntervalMinutes    int    `json:"cleanup_interval_minutes" validate:"min=1"`
	VerifySweepIntervalMin    int    `json:"verify_sweep_interval_minutes" validate:"min=1"`
	RecoverySweepIntervalMin  int    `json:"recovery_sweep_interval_minutes" validate:"min=1"`
	VerifySweepLimit          int    `json:"verify_sweep_limit" validate:"min=1"`
	CheckoutEnabled           bool   `json:"checkout_enabled"`
	mu                        sync.RWMutex
}

// Global settings instance
var (
	appSettings *AppSettings
	settingsMu  sync.RWMutex
)

// GetAppSettings returns the current application settings
func GetAppSettings() *AppSettings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return appSettings
}

// LoadSettings loads settings from database into memory
func LoadSettings(db *gorm.DB) error {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	// Initialize with defaults
	appSettings = &AppSettings{
		SiteTitle:                "Velvetline",
		BookingTTLMinutes:        30,
		ReminderWindowMinutes:    10,
		CleanupIntervalMinutes:   5,
		VerifySweepIntervalMin:   3,
		RecoverySweepIntervalMin: 60,
		VerifySweepLimit:         25,
		CheckoutEnabled:          true,
	}

	// Load settings from database
	var settings []Setting
	if err := db.Find(&settings).Error; err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	for _, s := range settings {
		if s.Key == "app_settings" {
			if err := appSettings.FromJSON([]byte(s.Value)); err != nil {
				return fmt.Errorf("failed to parse stored app settings: %w", err)
			}
		}
	}

	return nil
}

// SaveSettings persists the current settings as a single JSON row.
func SaveSettings(db *gorm.DB) error {
	settingsMu.RLock()
	defer settingsMu.RUnlock()

	if appSettings == nil {
		return fmt.Errorf("settings not loaded")
	}
	data, err := appSettings.ToJSON()
	if err != nil {
		return err
	}

	setting := Setting{Key: "app_settings", Value: string(data), Type: "json"}
	return db.Where(Setting{Key: "app_settings"}).
		Assign(Setting{Value: setting.Value, Type: setting.Type}).
		FirstOrCreate(&setting).Error
}

func (s *AppSettings) Validate() error {
	v := validator.New()
	return v.Struct(s)
}

func (s *AppSettings) ToJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s)
}

func (s *AppSettings) FromJSON(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Unmarshal(data, s)
}

// GetBookingTTL returns how long a pending booking may stay unpaid.
func (s *AppSettings) GetBookingTTL() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.BookingTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(s.BookingTTLMinutes) * time.Minute
}

// GetReminderWindow returns how long before expiry the payment reminder fires.
func (s *AppSettings) GetReminderWindow() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ReminderWindowMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(s.ReminderWindowMinutes) * time.Minute
}

// GetCleanupInterval returns the reconciliation cycle cadence in minutes.
func (s *AppSettings) GetCleanupInterval() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.CleanupIntervalMinutes <= 0 {
		return 5
	}
	return s.CleanupIntervalMinutes
}

// GetVerifySweepInterval returns the verification sweep cadence in minutes.
func (s *AppSettings) GetVerifySweepInterval() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.VerifySweepIntervalMin <= 0 {
		return 3
	}
	return s.VerifySweepIntervalMin
}

// GetRecoverySweepInterval returns the recovery sweep cadence in minutes.
func (s *AppSettings) GetRecoverySweepInterval() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.RecoverySweepIntervalMin <= 0 {
		return 60
	}
	return s.RecoverySweepIntervalMin
}

// GetVerifySweepLimit bounds how many pending payments one verification
// sweep re-checks against the gateway.
func (s *AppSettings) GetVerifySweepLimit() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.VerifySweepLimit <= 0 {
		return 25
	}
	return s.VerifySweepLimit
}

// IsCheckoutEnabled reports whether new bookings are currently accepted.
func (s *AppSettings) IsCheckoutEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CheckoutEnabled
}
