package models

import "time"

// WebhookLog stores inbound payment-gateway callbacks with deduplication
// metadata for idempotent processing. Rows older than seven days are purged
// in bounded batches by the reconciliation scheduler.
type WebhookLog struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Provider          string     `gorm:"type:varchar(20);not null;index:ux_webhook_logs_provider_event,unique,priority:1;index" json:"provider"`
	ProviderEventID   string     `gorm:"type:varchar(191);not null;default:'';index:ux_webhook_logs_provider_event,unique,priority:2" json:"provider_event_id"`
	OrderRef          string     `gorm:"type:varchar(64);not null;index" json:"order_ref"`
	TransactionStatus string     `gorm:"type:varchar(32);not null" json:"transaction_status"`
	PayloadJSON       string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid    bool       `gorm:"default:false;index" json:"signature_valid"`
	ProcessedAt       *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError   string     `gorm:"type:text" json:"processing_error"`
	CreatedAt         time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
