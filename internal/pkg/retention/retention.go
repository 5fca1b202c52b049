package retention

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/velvetline/velvetline/app/models"
	"github.com/velvetline/velvetline/internal/pkg/auditlog"
	"github.com/velvetline/velvetline/internal/pkg/clock"
)

const (
	// WebhookLogRetention is how long inbound gateway callbacks are kept
	// before being purged.
	WebhookLogRetention = 7 * 24 * time.Hour
	// AuditLogRetention is how long audit entries stay unarchived. Archived
	// entries are flagged, never deleted.
	AuditLogRetention = 30 * 24 * time.Hour

	purgeBatchSize = 500
)

// Rotator applies the retention policy for webhook and audit logs.
type Rotator struct {
	db    *gorm.DB
	clock clock.Clock
}

// NewRotator creates a rotator on top of a GORM handle.
func NewRotator(db *gorm.DB, clk clock.Clock) *Rotator {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Rotator{db: db, clock: clk}
}

// RotateWebhookLogs purges callbacks older than seven days in bounded
// batches so one pass never holds a long transaction.
func (r *Rotator) RotateWebhookLogs(ctx context.Context) (int64, error) {
	cutoff := r.clock.Now().Add(-WebhookLogRetention)
	var total int64

	for {
		var ids []uint
		err := r.db.WithContext(ctx).
			Model(&models.WebhookLog{}).
			Where("created_at < ?", cutoff).
			Order("created_at ASC").
			Limit(purgeBatchSize).
			Pluck("id", &ids).Error
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}

		res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.WebhookLog{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected

		if len(ids) < purgeBatchSize {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

// ArchiveAuditLogs flags audit entries older than thirty days.
func (r *Rotator) ArchiveAuditLogs(ctx context.Context) (int64, error) {
	cutoff := r.clock.Now().Add(-AuditLogRetention)
	return auditlog.ArchiveOld(ctx, r.db, cutoff)
}
