package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/velvetline/velvetline/app/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	err = db.AutoMigrate(&models.User{}, &models.Event{}, &models.AccessTier{}, &models.Booking{})
	require.NoError(t, err)
	return db
}

func seedTier(t *testing.T, db *gorm.DB) *models.AccessTier {
	event := models.Event{Title: "Warehouse Night", StartsAt: time.Now().Add(48 * time.Hour), Status: models.EventStatusPublished}
	require.NoError(t, db.Create(&event).Error)
	tier := models.AccessTier{EventID: event.ID, Name: "GA", PriceCents: 2500, TotalQuantity: 100, AvailableQuantity: 100, IsActive: true}
	require.NoError(t, db.Create(&tier).Error)
	return &tier
}

func seedBooking(t *testing.T, db *gorm.DB, tier *models.AccessTier, status, paymentStatus string, quantity int, createdAt time.Time) {
	b := models.Booking{
		BookingCode:   models.GenerateBookingCode(),
		UserID:        1,
		AccessTierID:  tier.ID,
		Quantity:      quantity,
		TotalAmount:   tier.PriceCents * int64(quantity),
		Status:        status,
		PaymentStatus: paymentStatus,
		ExpiresAt:     createdAt.Add(30 * time.Minute),
	}
	require.NoError(t, db.Create(&b).Error)
	require.NoError(t, db.Model(&models.Booking{}).
		Where("id = ?", b.ID).Update("created_at", createdAt).Error)
}

func TestGetDailyStatsAggregatesPerDay(t *testing.T) {
	db := setupTestDB(t)
	tier := seedTier(t, db)
	repo := NewBookingRepository(db)

	day1 := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	day3 := time.Date(2026, 8, 26, 18, 30, 0, 0, time.UTC)

	seedBooking(t, db, tier, models.BookingStatusPaid, models.PaymentStatusPaid, 2, day1)
	seedBooking(t, db, tier, models.BookingStatusExpired, models.PaymentStatusFailed, 1, day1)
	seedBooking(t, db, tier, models.BookingStatusPending, models.PaymentStatusPending, 1, day3)

	start := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 26, 23, 59, 59, 0, time.UTC)

	stats, err := repo.GetDailyStats(start, end)
	require.NoError(t, err)
	require.Len(t, stats, 3)

	first := stats[0]
	assert.Equal(t, int64(2), first.BookingsCreated)
	assert.Equal(t, int64(1), first.BookingsPaid)
	assert.Equal(t, int64(1), first.BookingsExpired)
	assert.Equal(t, int64(1), first.PaymentsFailed)
	assert.Equal(t, int64(2), first.TicketsSold)
	assert.Equal(t, int64(5000), first.RevenueCents)

	// day 2 had no activity but still gets a zero row
	assert.Equal(t, time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC), stats[1].Date)
	assert.Zero(t, stats[1].BookingsCreated)

	third := stats[2]
	assert.Equal(t, int64(1), third.BookingsCreated)
	assert.Equal(t, int64(1), third.PaymentsPending)
	assert.Zero(t, third.TicketsSold)
}

func TestCountByStatus(t *testing.T) {
	db := setupTestDB(t)
	tier := seedTier(t, db)
	repo := NewBookingRepository(db)

	now := time.Now()
	seedBooking(t, db, tier, models.BookingStatusPending, models.PaymentStatusPending, 1, now)
	seedBooking(t, db, tier, models.BookingStatusPending, models.PaymentStatusPending, 1, now)
	seedBooking(t, db, tier, models.BookingStatusPaid, models.PaymentStatusPaid, 1, now)

	pending, err := repo.CountByStatus(models.BookingStatusPending)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)

	cancelled, err := repo.CountByStatus(models.BookingStatusCancelled)
	require.NoError(t, err)
	assert.Zero(t, cancelled)
}

func TestGetByCodePreloadsEvent(t *testing.T) {
	db := setupTestDB(t)
	tier := seedTier(t, db)
	repo := NewBookingRepository(db)

	b := models.Booking{
		BookingCode:   models.GenerateBookingCode(),
		UserID:        7,
		AccessTierID:  tier.ID,
		Quantity:      1,
		TotalAmount:   tier.PriceCents,
		Status:        models.BookingStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		ExpiresAt:     time.Now().Add(30 * time.Minute),
	}
	require.NoError(t, db.Create(&b).Error)

	got, err := repo.GetByCode(b.BookingCode)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, "Warehouse Night", got.AccessTier.Event.Title)

	_, err = repo.GetByCode("VL-DOESNOTEXIST")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestFindInconsistentTiers(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventRepository(db)

	event := models.Event{Title: "Consistency Check", StartsAt: time.Now().Add(24 * time.Hour), Status: models.EventStatusPublished}
	require.NoError(t, db.Create(&event).Error)

	healthy := models.AccessTier{EventID: event.ID, Name: "ok", TotalQuantity: 10, AvailableQuantity: 4, SoldQuantity: 6, IsActive: true}
	oversold := models.AccessTier{EventID: event.ID, Name: "oversold", TotalQuantity: 10, AvailableQuantity: 5, SoldQuantity: 8, IsActive: true}
	negative := models.AccessTier{EventID: event.ID, Name: "negative", TotalQuantity: 10, AvailableQuantity: -1, SoldQuantity: 11, IsActive: true}
	require.NoError(t, db.Create(&healthy).Error)
	require.NoError(t, db.Create(&oversold).Error)
	require.NoError(t, db.Create(&negative).Error)

	broken, err := repo.FindInconsistentTiers()
	require.NoError(t, err)
	require.Len(t, broken, 2)

	names := []string{broken[0].Name, broken[1].Name}
	assert.ElementsMatch(t, []string{"oversold", "negative"}, names)
}
