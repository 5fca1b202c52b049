package models

import "time"

const (
	AuditLevelInfo     = "info"
	AuditLevelWarning  = "warning"
	AuditLevelCritical = "critical"
)

const (
	AuditCategoryCleanup     = "cleanup"
	AuditCategoryPayment     = "payment"
	AuditCategoryReservation = "reservation"
	AuditCategoryAnomaly     = "anomaly"
)

// AuditLog is an append-only operational record of cleanup runs and
// anomalies. Rows older than thirty days are flagged archived, never
// deleted.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventType string    `gorm:"type:varchar(100);not null;index" json:"event_type"`
	Category  string    `gorm:"type:varchar(50);not null;index" json:"category"`
	Level     string    `gorm:"type:varchar(20);not null;default:'info';index" json:"level"`
	Metadata  string    `gorm:"type:longtext" json:"metadata"`
	Archived  bool      `gorm:"default:false;index:idx_audit_logs_archived_created,priority:1" json:"archived"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_audit_logs_archived_created,priority:2" json:"created_at"`
}
