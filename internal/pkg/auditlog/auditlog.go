package auditlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/velvetline/velvetline/app/models"
)

// Record appends an operational audit entry. Metadata is stored as JSON;
// marshalling problems degrade to an empty object rather than dropping the
// entry.
func Record(db *gorm.DB, eventType, category, level string, metadata map[string]interface{}) error {
	payload := "{}"
	if len(metadata) > 0 {
		if data, err := json.Marshal(metadata); err == nil {
			payload = string(data)
		} else {
			log.Errorf("[AuditLog] Failed to marshal metadata for %s: %v", eventType, err)
		}
	}

	entry := models.AuditLog{
		EventType: eventType,
		Category:  category,
		Level:     level,
		Metadata:  payload,
	}
	return db.Create(&entry).Error
}

// RecordCleanupRun stores the outcome of one scheduled cleanup task.
func RecordCleanupRun(db *gorm.DB, task string, metadata map[string]interface{}) {
	if err := Record(db, "cleanup_run:"+task, models.AuditCategoryCleanup, models.AuditLevelInfo, metadata); err != nil {
		log.Errorf("[AuditLog] Failed to record cleanup run for %s: %v", task, err)
	}
}

// RecordAnomaly stores an elevated-severity entry meant for operator
// attention, not automated remediation.
func RecordAnomaly(db *gorm.DB, eventType string, metadata map[string]interface{}) {
	if err := Record(db, eventType, models.AuditCategoryAnomaly, models.AuditLevelCritical, metadata); err != nil {
		log.Errorf("[AuditLog] Failed to record anomaly %s: %v", eventType, err)
	}
}

// ArchiveOld flags audit entries older than the cutoff as archived. Entries
// are never deleted by this engine.
func ArchiveOld(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&models.AuditLog{}).
		Where("archived = ? AND created_at < ?", false, cutoff).
		Update("archived", true)
	return res.RowsAffected, res.Error
}
