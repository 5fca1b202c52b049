package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/velvetline/velvetline/app/models"
	"github.com/velvetline/velvetline/internal/pkg/clock"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.WebhookLog{}, &models.AuditLog{}))
	return db
}

func seedWebhookLog(t *testing.T, db *gorm.DB, eventID string, createdAt time.Time) {
	entry := models.WebhookLog{
		Provider:          "midgate",
		ProviderEventID:   eventID,
		OrderRef:          "pay-" + eventID,
		TransactionStatus: "settlement",
		PayloadJSON:       "{}",
	}
	require.NoError(t, db.Create(&entry).Error)
	require.NoError(t, db.Model(&models.WebhookLog{}).
		Where("id = ?", entry.ID).Update("created_at", createdAt).Error)
}

func seedAuditLog(t *testing.T, db *gorm.DB, eventType string, createdAt time.Time) {
	entry := models.AuditLog{
		EventType: eventType,
		Category:  models.AuditCategoryCleanup,
		Level:     models.AuditLevelInfo,
		Metadata:  "{}",
	}
	require.NoError(t, db.Create(&entry).Error)
	require.NoError(t, db.Model(&models.AuditLog{}).
		Where("id = ?", entry.ID).Update("created_at", createdAt).Error)
}

func TestRotateWebhookLogsPurgesOnlyExpired(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFixed(time.Now())
	r := NewRotator(db, clk)

	now := clk.Now()
	seedWebhookLog(t, db, "old-1", now.Add(-8*24*time.Hour))
	seedWebhookLog(t, db, "old-2", now.Add(-30*24*time.Hour))
	seedWebhookLog(t, db, "boundary", now.Add(-7*24*time.Hour).Add(time.Minute))
	seedWebhookLog(t, db, "fresh", now.Add(-time.Hour))

	purged, err := r.RotateWebhookLogs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	var remaining []models.WebhookLog
	require.NoError(t, db.Order("provider_event_id").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	assert.Equal(t, "boundary", remaining[0].ProviderEventID)
	assert.Equal(t, "fresh", remaining[1].ProviderEventID)

	// a second pass finds nothing
	purged, err = r.RotateWebhookLogs(context.Background())
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestArchiveAuditLogsFlagsWithoutDeleting(t *testing.T) {
	db := setupTestDB(t)
	clk := clock.NewFixed(time.Now())
	r := NewRotator(db, clk)

	now := clk.Now()
	seedAuditLog(t, db, "old_event", now.Add(-31*24*time.Hour))
	seedAuditLog(t, db, "recent_event", now.Add(-24*time.Hour))

	archived, err := r.ArchiveAuditLogs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), archived)

	var total int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&total).Error)
	assert.Equal(t, int64(2), total)

	var old models.AuditLog
	require.NoError(t, db.Where("event_type = ?", "old_event").First(&old).Error)
	assert.True(t, old.Archived)

	var recent models.AuditLog
	require.NoError(t, db.Where("event_type = ?", "recent_event").First(&recent).Error)
	assert.False(t, recent.Archived)

	// already-archived rows are not counted again
	archived, err = r.ArchiveAuditLogs(context.Background())
	require.NoError(t, err)
	assert.Zero(t, archived)
}
