package statistics

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/velvetline/velvetline/app/models"
	"github.com/velvetline/velvetline/internal/pkg/auditlog"
	"github.com/velvetline/velvetline/internal/pkg/cache"
	"github.com/velvetline/velvetline/internal/pkg/database"
)

const (
	CacheKeyBookingsDaily = "statistics:bookings:daily:%s" // Format with date YYYY-MM-DD
	CacheKeyTicketsSold   = "statistics:tickets:sold"
	CacheKeyUsers         = "statistics:users:total"
	CacheExpiration       = 30 * time.Minute
)

// Anomaly thresholds: daily counts above these produce an elevated-severity
// audit entry for operator attention.
const (
	pendingAnomalyThreshold = 500
	failedAnomalyThreshold  = 100
)

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// ShouldUpdateCache reports whether the cached statistics are stale.
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded refreshes the statistics cache when it is stale.
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		if err := UpdateStatisticsCache(); err != nil {
			log.Printf("Error updating statistics cache: %v", err)
		} else {
			lastCacheUpdate = time.Now()
		}
	}
}

// ResetCacheUpdateTimer forces the next call to refresh the cache.
func ResetCacheUpdateTimer() {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	lastCacheUpdate = time.Time{}
}

// CollectDailyStats aggregates today's booking and payment activity straight
// from the database.
func CollectDailyStats() (*models.DailyStats, error) {
	db := database.GetDB()

	today := time.Now().Format("2006-01-02")
	dayStart, _ := time.Parse("2006-01-02", today)
	dayEnd := dayStart.Add(24 * time.Hour)

	stats := &models.DailyStats{Date: dayStart}

	if err := db.Model(&models.Booking{}).
		Where("created_at BETWEEN ? AND ?", dayStart, dayEnd).
		Count(&stats.BookingsCreated).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Booking{}).
		Where("status = ? AND updated_at BETWEEN ? AND ?", models.BookingStatusPaid, dayStart, dayEnd).
		Count(&stats.BookingsPaid).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Booking{}).
		Where("status = ? AND updated_at BETWEEN ? AND ?", models.BookingStatusExpired, dayStart, dayEnd).
		Count(&stats.BookingsExpired).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Booking{}).
		Where("payment_status = ?", models.PaymentStatusPending).
		Count(&stats.PaymentsPending).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Booking{}).
		Where("payment_status = ? AND updated_at BETWEEN ? AND ?", models.PaymentStatusFailed, dayStart, dayEnd).
		Count(&stats.PaymentsFailed).Error; err != nil {
		return nil, err
	}

	row := db.Model(&models.Booking{}).
		Select("COALESCE(SUM(quantity), 0) AS sold, COALESCE(SUM(total_amount), 0) AS revenue").
		Where("status = ?", models.BookingStatusPaid).
		Row()
	if err := row.Scan(&stats.TicketsSold, &stats.RevenueCents); err != nil {
		return nil, err
	}

	return stats, nil
}

// UpdateStatisticsCache recomputes daily statistics, stores them in the
// cache and raises an anomaly alert when pending or failed counts look
// systemic rather than routine.
func UpdateStatisticsCache() error {
	db := database.GetDB()

	stats, err := CollectDailyStats()
	if err != nil {
		return err
	}

	var totalUsers int64
	if err := db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		return err
	}

	today := stats.Date.Format("2006-01-02")
	dailyKey := fmt.Sprintf(CacheKeyBookingsDaily, today)
	if err := cache.Set(dailyKey, strconv.FormatInt(stats.BookingsCreated, 10), CacheExpiration); err != nil {
		return err
	}
	if err := cache.Set(CacheKeyTicketsSold, strconv.FormatInt(stats.TicketsSold, 10), CacheExpiration); err != nil {
		return err
	}
	if err := cache.Set(CacheKeyUsers, strconv.FormatInt(totalUsers, 10), CacheExpiration); err != nil {
		return err
	}

	if stats.PaymentsPending > pendingAnomalyThreshold || stats.PaymentsFailed > failedAnomalyThreshold {
		auditlog.RecordAnomaly(db, "daily_stats_threshold_exceeded", map[string]interface{}{
			"payments_pending": stats.PaymentsPending,
			"payments_failed":  stats.PaymentsFailed,
			"date":             today,
		})
	}

	log.Printf("Statistics updated in cache: Bookings today: %d, Tickets sold: %d, Users: %d",
		stats.BookingsCreated, stats.TicketsSold, totalUsers)

	return nil
}

// GetTodayBookings returns the number of bookings created today from cache or database
func GetTodayBookings() int {
	today := time.Now().Format("2006-01-02")
	dailyKey := fmt.Sprintf(CacheKeyBookingsDaily, today)

	val, err := cache.Get(dailyKey)
	if err != nil {
		var count int64
		db := database.GetDB()
		dayStart, _ := time.Parse("2006-01-02", today)
		dayEnd := dayStart.Add(24 * time.Hour)

		if err := db.Model(&models.Booking{}).Where("created_at BETWEEN ? AND ?", dayStart, dayEnd).Count(&count).Error; err != nil {
			log.Printf("Error counting today's bookings: %v", err)
			return 0
		}

		if err := cache.Set(dailyKey, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching today's bookings: %v", err)
		}

		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}

	return int(count)
}

// GetTicketsSold returns the total number of tickets sold from cache or database
func GetTicketsSold() int {
	val, err := cache.Get(CacheKeyTicketsSold)
	if err != nil {
		var sold int64
		db := database.GetDB()
		row := db.Model(&models.Booking{}).
			Select("COALESCE(SUM(quantity), 0)").
			Where("status = ?", models.BookingStatusPaid).
			Row()
		if err := row.Scan(&sold); err != nil {
			log.Printf("Error counting tickets sold: %v", err)
			return 0
		}

		if err := cache.Set(CacheKeyTicketsSold, strconv.FormatInt(sold, 10), CacheExpiration); err != nil {
			log.Printf("Error caching tickets sold: %v", err)
		}

		return int(sold)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}

	return int(count)
}
