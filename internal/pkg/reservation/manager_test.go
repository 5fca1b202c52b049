package reservation

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

	err = db.AutoMigrate(&models.Event{}, &models.AccessTier{}, &models.StockReservation{})
	require.NoError(t, err)

	return db
}

func seedTier(t *testing.T, db *gorm.DB, capacity int) *models.AccessTier {
	event := models.Event{Title: "Warehouse Night", StartsAt: time.Now().Add(48 * time.Hour), Status: models.EventStatusPublished}
	require.NoError(t, db.Create(&event).Error)

	tier := models.AccessTier{
		EventID:           event.ID,
		Name:              "Early Bird",
		PriceCents:        2500,
		TotalQuantity:     capacity,
		AvailableQuantity: capacity,
		IsActive:          true,
	}
	require.NoError(t, db.Create(&tier).Error)
	return &tier
}

func reloadTier(t *testing.T, db *gorm.DB, id uint) *models.AccessTier {
	var tier models.AccessTier
	require.NoError(t, db.First(&tier, id).Error)
	return &tier
}

func TestReserveDecrementsAvailableOnly(t *testing.T) {
	db := setupTestDB(t)
	tier := seedTier(t, db, 10)
	m := NewManager(db, clock.NewFixed(time.Now()))

	hold, err := m.Reserve(context.Background(), tier.ID, nil, 3, 5*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, hold.HoldToken)
	assert.Equal(t, models.ReservationStatusReserved, hold.Status)

	got := reloadTier(t, db, tier.ID)
	assert.Equal(t, 7, got.AvailableQuantity)
	assert.Equal(t, 0, got.SoldQuantity)
	assert.True(t, got.QuantitiesConsistent())
}

func TestReserveInsufficientStockHasNoSideEffects(t *testing.T) {
	db := setupTestDB(t)
	tier := seedTier(t, db, 2)
	m := NewManager(db, clock.NewFixed(time.Now()))

	_, err := m.Reserve(context.Background(), tier.ID, nil, 5, 5*time.Minute)
	require.Error(t, err)
	assert.True(t, IsInsufficientStock(err))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 5, stockErr.Requested)
	assert.Equal(t, 2, stockErr.Available)

	got := reloadTier(t, db, tier.ID)
	assert.Equal(t, 2, got.AvailableQuantity)

	var count int64
	require.NoError(t, db.Model(&models.StockReservation{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReservePartialFillThenRejection(t *testing.T) {
	db := setupTestDB(t)
	tier := seedTier(t, db, 10)
	m := NewManager(db, clock.NewFixed(time.Now()))

	_, err := m.Reserve(context.Background(), tier.ID, nil, 7, 5*time.Minute)
	require.NoError(t, err)

	_, err = m.Reserve(context.Background(), tier.ID, nil, 5, 5*time.Minute)
	require.Error(t, err)
	assert.True(t, IsInsufficientStock(err))

	got := reloadTier(t, db, tier.ID)
	assert.Equal(t, 3, got.AvailableQuantity)
}

func TestReserveUnknownTier(t *testing.T) {
	db := setupTestDB(t)
	m := NewManager(db, clock.NewFixed(time.Now()))

	_, err := m.Reserve(context.Background(), 9999, nil, 1, time.Minute)
	assert.ErrorIs(t, err, ErrTierNotFound)
}

func TestReserveBurstNeverOversells(t *testing.T) {
	db := setupTestDB(t)
	tier := seedTier(t, db, 10)
	m := NewManager(db, clock.NewFixed(time.Now()))

	granted, rejected := 0, 0
	for i := 0; i < 15; i++ {
		_, err := m.Reserve(context.Background(), tier.ID, nil, 1, 5*time.Minute)
		if err != nil {
			require.True(t, IsInsufficientStock(err))
			rejected++
			continue
		}
		granted++
	}

	assert.Equal(t, 10, granted)
	assert.Equal(t, 5, rejected)

	got := reloadTier(t, db, tier.ID)
	assert.Equal(t, 0, got.AvailableQuantity)
	assert.True(t, got.QuantitiesConsistent())
}

func TestReleaseIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	tier := seedTier(t, db, 10)
	m := NewManager(db, clock.NewFixed(time.Now()))

	hold, err := m.Reserve(context.Background(), tier.ID, nil, 4, 5*time.Minute)
	require.NoError(t, err)

	require.NoError(t, m.Release(context.Background(), hold.HoldToken))
	require.NoError(t, m.Release(context.Background(), hold.HoldToken))

	got := reloadTier(t, db, tier.ID)
	assert.Equal(t, 10, got.AvailableQuantity, "a double release must not return stock twice")
}

func TestReleaseUnknownToken(t *testing.T) {
	db := setupTestDB(t)
	m := NewManager(db, clock.NewFixed(time.Now()))

	err := m.Release(context.Background(), "no-such-hold")
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestCommitMovesHoldToSold(t *testing.T) {
	db := setupTestDB(t)
	tier := seedTier(t, db, 10)
	m := NewManager(db, clock.NewFixed(time.Now()))

	hold, err := m.Reserve(context.Background(), tier.ID, nil, 2, 5*time.Minute)
	require.NoError(t, err)

	require.NoError(t, m.Commit(context.Background(), hold.HoldToken))

	got := reloadTier(t, db, tier.ID)
	assert.Equal(t, 8, got.AvailableQuantity)
	assert.Equal(t, 2, got.SoldQuantity)
	assert.True(t, got.QuantitiesConsistent())

	// committing again is a no-op
	require.NoError(t, m.Commit(context.Background(), hold.HoldToken))
	got = reloadTier(t, db, tier.ID)
	assert.Equal(t, 2, got.SoldQuantity)

	// a committed hold can no longer be released back
	require.NoError(t, m.Release(context.Background(), hold.HoldToken))
	got = reloadTier(t, db, tier.ID)
	assert.Equal(t, 8, got.AvailableQuantity)
}

func TestExpireStaleReleasesOnlyDueHolds(t *testing.T) {
	db := setupTestDB(t)
	tier := seedTier(t, db, 10)
	clk := clock.NewFixed(time.Now())
	m := NewManager(db, clk)

	stale, err := m.Reserve(context.Background(), tier.ID, nil, 3, 2*time.Minute)
	require.NoError(t, err)
	fresh, err := m.Reserve(context.Background(), tier.ID, nil, 2, time.Hour)
	require.NoError(t, err)

	clk.Advance(10 * time.Minute)

	released, err := m.ExpireStale(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	var staleHold, freshHold models.StockReservation
	require.NoError(t, db.Where("hold_token = ?", stale.HoldToken).First(&staleHold).Error)
	require.NoError(t, db.Where("hold_token = ?", fresh.HoldToken).First(&freshHold).Error)
	assert.Equal(t, models.ReservationStatusReleased, staleHold.Status)
	assert.Equal(t, models.ReservationStatusReserved, freshHold.Status)

	got := reloadTier(t, db, tier.ID)
	assert.Equal(t, 8, got.AvailableQuantity)

	// second run finds nothing left to do
	released, err = m.ExpireStale(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, released)
}
