package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/velvetline/velvetline/app/repository"
	"github.com/velvetline/velvetline/internal/pkg/booking"
	"github.com/velvetline/velvetline/internal/pkg/scheduler"
	"github.com/velvetline/velvetline/internal/pkg/statistics"
	"github.com/velvetline/velvetline/internal/pkg/usercontext"
)

// HandleAdminCancelBooking voids a pending booking and returns its stock.
// Cancelling a terminal booking is a no-op and still succeeds.
func HandleAdminCancelBooking(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Missing booking code"})
	}

	if err := getEngine().Lifecycle.Cancel(c.UserContext(), code); err != nil {
		if errors.Is(err, booking.ErrBookingNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Booking not found"})
		}
		fiberlog.Errorf("[Admin] Cancel failed for %s: %v", code, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Cancel failed"})
	}

	userCtx := usercontext.GetUserContext(c)
	fiberlog.Infof("[Admin] Booking %s cancelled by user %d", code, userCtx.UserID)
	return c.JSON(fiber.Map{"ok": true})
}

// HandleAdminRunCycle triggers one reconciliation cycle outside the regular
// interval. A cycle already in flight is reported, not queued.
func HandleAdminRunCycle(c *fiber.Ctx) error {
	report, err := scheduler.GetManager().RunCycleNow(c.UserContext())
	if err != nil {
		if errors.Is(err, scheduler.ErrCycleRunning) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "cycle_running", "message": "A reconciliation cycle is already in progress"})
		}
		fiberlog.Errorf("[Admin] Manual cycle failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Cycle failed"})
	}

	tasks := make(map[string]fiber.Map, len(report.Tasks))
	for name, result := range report.Tasks {
		entry := fiber.Map{
			"success":     result.Success,
			"duration_ms": result.Duration.Milliseconds(),
			"detail":      result.Detail,
		}
		if result.Error != "" {
			entry["error"] = result.Error
		}
		tasks[name] = entry
	}
	return c.JSON(fiber.Map{
		"started_at":  report.StartedAt,
		"duration_ms": report.Duration.Milliseconds(),
		"succeeded":   report.Succeeded(),
		"tasks":       tasks,
	})
}

// HandleAdminStats returns today's aggregate activity plus a daily breakdown
// over the requested number of days (default 7).
func HandleAdminStats(c *fiber.Ctx) error {
	days := c.QueryInt("days", 7)
	if days < 1 || days > 90 {
		days = 7
	}

	today, err := statistics.CollectDailyStats()
	if err != nil {
		fiberlog.Errorf("[Admin] Stats collection failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to collect statistics"})
	}

	end := time.Now()
	start := end.AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)
	daily, err := repository.GetGlobalFactory().GetBookingRepository().GetDailyStats(start, end)
	if err != nil {
		fiberlog.Errorf("[Admin] Daily stats query failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load daily statistics"})
	}

	return c.JSON(fiber.Map{"today": today, "daily": daily})
}

// HandleAdminInventoryCheck reports tiers whose quantity counters are out of
// line. This should always return an empty list.
func HandleAdminInventoryCheck(c *fiber.Ctx) error {
	tiers, err := repository.GetGlobalFactory().GetEventRepository().FindInconsistentTiers()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Inventory check failed"})
	}
	return c.JSON(fiber.Map{"consistent": len(tiers) == 0, "inconsistent_tiers": tiers})
}
