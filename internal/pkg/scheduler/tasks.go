package scheduler

import (
	"context"
	"errors"

	"github.com/velvetline/velvetline/internal/pkg/booking"
	"github.com/velvetline/velvetline/internal/pkg/payment"
	"github.com/velvetline/velvetline/internal/pkg/reservation"
	"github.com/velvetline/velvetline/internal/pkg/retention"
)

// Task names of the standard reconciliation cycle.
const (
	TaskPaymentIntentExpiry    = "payment_intent_expiry"
	TaskStockReservationExpiry = "stock_reservation_expiry"
	TaskBookingExpiry          = "booking_expiry"
	TaskWebhookLogRotation     = "webhook_log_rotation"
	TaskAuditLogArchival       = "audit_log_archival"
)

// RegisterEngineTasks attaches the standard cleanup task set to a scheduler.
// Each task is independent; the cycle report carries its outcome.
func RegisterEngineTasks(s *Scheduler, guard *payment.Guard, reservations *reservation.Manager, lifecycle *booking.Lifecycle, rotator *retention.Rotator) {
	s.Register(TaskPaymentIntentExpiry, func(ctx context.Context) (map[string]interface{}, error) {
		res, err := guard.ExpireStaleIntents(ctx)
		if errors.Is(err, payment.ErrAlreadyRunning) {
			return map[string]interface{}{"skipped": true}, nil
		}
		return map[string]interface{}{"found": res.Found, "cancelled": res.Cancelled}, err
	})

	s.Register(TaskStockReservationExpiry, func(ctx context.Context) (map[string]interface{}, error) {
		released, err := reservations.ExpireStale(ctx, 0)
		return map[string]interface{}{"released": released}, err
	})

	s.Register(TaskBookingExpiry, func(ctx context.Context) (map[string]interface{}, error) {
		reminders, err := lifecycle.SendReminders(ctx)
		if err != nil {
			return map[string]interface{}{"reminders": reminders}, err
		}
		expired, err := lifecycle.ProcessExpired(ctx)
		return map[string]interface{}{"reminders": reminders, "expired": expired}, err
	})

	s.Register(TaskWebhookLogRotation, func(ctx context.Context) (map[string]interface{}, error) {
		purged, err := rotator.RotateWebhookLogs(ctx)
		return map[string]interface{}{"purged": purged}, err
	})

	s.Register(TaskAuditLogArchival, func(ctx context.Context) (map[string]interface{}, error) {
		archived, err := rotator.ArchiveAuditLogs(ctx)
		return map[string]interface{}{"archived": archived}, err
	})
}
