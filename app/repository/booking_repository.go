package repository

import (
	"time"

	"github.com/velvetline/velvetline/app/models"
	"gorm.io/gorm"
)

// bookingRepository implements the BookingRepository interface
type bookingRepository struct {
	db *gorm.DB
}

// NewBookingRepository creates a new booking repository instance
func NewBookingRepository(db *gorm.DB) BookingRepository {
	return &bookingRepository{db: db}
}

// GetByID retrieves a booking by its ID
func (r *bookingRepository) GetByID(id uint) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.Preload("AccessTier.Event").First(&booking, id).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetByCode retrieves a booking by its external booking code
func (r *bookingRepository) GetByCode(code string) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.Preload("AccessTier.Event").Where("booking_code = ?", code).First(&booking).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetByUserID retrieves a user's bookings, newest first
func (r *bookingRepository) GetByUserID(userID uint, offset, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.Preload("AccessTier.Event").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&bookings).Error
	return bookings, err
}

// CountByStatus returns the number of bookings in a given status
func (r *bookingRepository) CountByStatus(status string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Booking{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// GetDailyStats aggregates booking activity per day over the given range.
// Days without activity are filled with zero rows so charts stay contiguous.
func (r *bookingRepository) GetDailyStats(startDate, endDate time.Time) ([]models.DailyStats, error) {
	type dailyRow struct {
		Day             string
		BookingsCreated int64
		BookingsPaid    int64
		BookingsExpired int64
		PaymentsPending int64
		PaymentsFailed  int64
		TicketsSold     int64
		RevenueCents    int64
	}

	var rows []dailyRow
	err := r.db.Model(&models.Booking{}).
		Select(`DATE(created_at) AS day,
			COUNT(*) AS bookings_created,
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS bookings_paid,
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS bookings_expired,
			SUM(CASE WHEN payment_status = ? THEN 1 ELSE 0 END) AS payments_pending,
			SUM(CASE WHEN payment_status = ? THEN 1 ELSE 0 END) AS payments_failed,
			SUM(CASE WHEN status = ? THEN quantity ELSE 0 END) AS tickets_sold,
			SUM(CASE WHEN status = ? THEN total_amount ELSE 0 END) AS revenue_cents`,
			models.BookingStatusPaid,
			models.BookingStatusExpired,
			models.PaymentStatusPending,
			models.PaymentStatusFailed,
			models.BookingStatusPaid,
			models.BookingStatusPaid).
		Where("created_at BETWEEN ? AND ?", startDate, endDate).
		Group("DATE(created_at)").
		Order("day ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]dailyRow, len(rows))
	for _, row := range rows {
		byDay[row.Day] = row
	}

	var stats []models.DailyStats
	for d := startDate; !d.After(endDate); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		entry := models.DailyStats{Date: d}
		if row, ok := byDay[key]; ok {
			entry.BookingsCreated = row.BookingsCreated
			entry.BookingsPaid = row.BookingsPaid
			entry.BookingsExpired = row.BookingsExpired
			entry.PaymentsPending = row.PaymentsPending
			entry.PaymentsFailed = row.PaymentsFailed
			entry.TicketsSold = row.TicketsSold
			entry.RevenueCents = row.RevenueCents
		}
		stats = append(stats, entry)
	}
	return stats, nil
}
