package payment

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/velvetline/velvetline/app/models"
)

// Repository provides DB operations used by the payment guard and webhook
// processor.
type Repository interface {
	CreateIntent(intent *models.PaymentIntent) error
	GetIntentByReference(ref string) (*models.PaymentIntent, error)
	FindStaleIntents(now time.Time, limit int) ([]models.PaymentIntent, error)
	FindPendingIntents(limit int) ([]models.PaymentIntent, error)
	FindOverdueIntents(cutoff time.Time, limit int) ([]models.PaymentIntent, error)
	CancelIntent(id uint) (bool, error)
	MarkIntentPaid(id uint, at time.Time) (bool, error)
	TouchIntentVerified(id uint, at time.Time) error
	CreateWebhookLogIfNotExists(entry *models.WebhookLog) (bool, *models.WebhookLog, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateIntent(intent *models.PaymentIntent) error {
	return r.db.Create(intent).Error
}

func (r *gormRepository) GetIntentByReference(ref string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.Where("reference_id = ?", ref).First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *gormRepository) FindStaleIntents(now time.Time, limit int) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	err := r.db.
		Where("status IN ? AND expires_at < ?",
			[]string{models.IntentStatusPending, models.IntentStatusProcessing}, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&intents).Error
	return intents, err
}

func (r *gormRepository) FindPendingIntents(limit int) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	err := r.db.
		Where("status IN ?", []string{models.IntentStatusPending, models.IntentStatusProcessing}).
		Order("created_at DESC").
		Limit(limit).
		Find(&intents).Error
	return intents, err
}

func (r *gormRepository) FindOverdueIntents(cutoff time.Time, limit int) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	err := r.db.
		Where("status IN ? AND created_at < ?",
			[]string{models.IntentStatusPending, models.IntentStatusProcessing}, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&intents).Error
	return intents, err
}

// CancelIntent transitions an intent to CANCELLED unless it already reached
// a terminal state. Returns whether this call performed the transition.
func (r *gormRepository) CancelIntent(id uint) (bool, error) {
	res := r.db.Model(&models.PaymentIntent{}).
		Where("id = ? AND status IN ?", id,
			[]string{models.IntentStatusPending, models.IntentStatusProcessing}).
		Update("status", models.IntentStatusCancelled)
	return res.RowsAffected > 0, res.Error
}

// MarkIntentPaid transitions an intent to PAID unless it already reached a
// terminal state. Returns whether this call performed the transition.
func (r *gormRepository) MarkIntentPaid(id uint, at time.Time) (bool, error) {
	res := r.db.Model(&models.PaymentIntent{}).
		Where("id = ? AND status IN ?", id,
			[]string{models.IntentStatusPending, models.IntentStatusProcessing}).
		Updates(map[string]interface{}{
			"status":      models.IntentStatusPaid,
			"verified_at": at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *gormRepository) TouchIntentVerified(id uint, at time.Time) error {
	return r.db.Model(&models.PaymentIntent{}).
		Where("id = ?", id).
		Update("verified_at", at).Error
}

// CreateWebhookLogIfNotExists inserts the callback record unless the same
// provider event was seen before. Returns created=false for duplicates.
func (r *gormRepository) CreateWebhookLogIfNotExists(entry *models.WebhookLog) (bool, *models.WebhookLog, error) {
	err := r.db.Create(entry).Error
	if err == nil {
		return true, entry, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) && !isDuplicateError(err) {
		return false, nil, err
	}

	var existing models.WebhookLog
	if err := r.db.Where("provider = ? AND provider_event_id = ?", entry.Provider, entry.ProviderEventID).
		First(&existing).Error; err != nil {
		return false, nil, err
	}
	return false, &existing, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	return r.db.Model(&models.WebhookLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_at":     now,
			"processing_error": processingError,
		}).Error
}

func isDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}
