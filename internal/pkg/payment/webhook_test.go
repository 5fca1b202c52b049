package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velvetline/velvetline/app/models"
)

func setupWebhooks(t *testing.T) (*guardFixture, *WebhookProcessor) {
	f := setupGuard(t)
	return f, NewWebhookProcessor(f.db, NewRepository(f.db), f.lifecycle)
}

func TestRecordDeduplicatesByProviderEventID(t *testing.T) {
	f, p := setupWebhooks(t)

	in := WebhookInput{
		Provider:          "Midgate",
		ProviderEventID:   " evt-100 ",
		OrderRef:          "pay-abc",
		TransactionStatus: "SETTLEMENT",
		PayloadJSON:       `{"order_id":"pay-abc"}`,
		SignatureValid:    true,
	}

	created, first, err := p.Record(context.Background(), in)
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, "midgate", first.Provider)
	assert.Equal(t, "evt-100", first.ProviderEventID)
	assert.Equal(t, GatewayStatusSettlement, first.TransactionStatus)

	created, second, err := p.Record(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, f.db.Model(&models.WebhookLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordHashesPayloadWhenEventIDMissing(t *testing.T) {
	_, p := setupWebhooks(t)

	in := WebhookInput{
		Provider:          "midgate",
		OrderRef:          "pay-abc",
		TransactionStatus: "settlement",
		PayloadJSON:       `{"order_id":"pay-abc","transaction_status":"settlement"}`,
		SignatureValid:    true,
	}

	created, entry, err := p.Record(context.Background(), in)
	require.NoError(t, err)
	require.True(t, created)
	assert.Contains(t, entry.ProviderEventID, "hash:")

	// the same payload resolves to the same synthetic id
	created, _, err = p.Record(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, created)

	in.PayloadJSON = `{"order_id":"pay-abc","transaction_status":"pending"}`
	created, _, err = p.Record(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestRecordRequiresProvider(t *testing.T) {
	_, p := setupWebhooks(t)

	_, _, err := p.Record(context.Background(), WebhookInput{PayloadJSON: "{}"})
	assert.Error(t, err)
}

func TestProcessSettlementPaysIntentAndBooking(t *testing.T) {
	f, p := setupWebhooks(t)
	b := f.newBooking(t)
	intent, err := f.guard.StartPayment(context.Background(), b, 30*time.Minute)
	require.NoError(t, err)

	_, entry, err := p.Record(context.Background(), WebhookInput{
		Provider:          "midgate",
		ProviderEventID:   "evt-1",
		OrderRef:          intent.ReferenceID,
		TransactionStatus: GatewayStatusSettlement,
		PayloadJSON:       "{}",
		SignatureValid:    true,
	})
	require.NoError(t, err)
	require.NoError(t, p.Process(context.Background(), entry))

	assert.Equal(t, models.IntentStatusPaid, f.reloadIntent(t, intent.ID).Status)

	var paid models.Booking
	require.NoError(t, f.db.First(&paid, b.ID).Error)
	assert.Equal(t, models.BookingStatusPaid, paid.Status)

	var log models.WebhookLog
	require.NoError(t, f.db.First(&log, entry.ID).Error)
	assert.NotNil(t, log.ProcessedAt)
	assert.Empty(t, log.ProcessingError)
}

func TestProcessDuplicateSettlementIsHarmless(t *testing.T) {
	f, p := setupWebhooks(t)
	b := f.newBooking(t)
	intent, err := f.guard.StartPayment(context.Background(), b, 30*time.Minute)
	require.NoError(t, err)

	for i, eventID := range []string{"evt-1", "evt-1-redelivered"} {
		_, entry, err := p.Record(context.Background(), WebhookInput{
			Provider:          "midgate",
			ProviderEventID:   eventID,
			OrderRef:          intent.ReferenceID,
			TransactionStatus: GatewayStatusSettlement,
			PayloadJSON:       "{}",
			SignatureValid:    true,
		})
		require.NoError(t, err, "delivery %d", i)
		require.NoError(t, p.Process(context.Background(), entry), "delivery %d", i)
	}

	assert.Equal(t, models.IntentStatusPaid, f.reloadIntent(t, intent.ID).Status)

	var paid models.Booking
	require.NoError(t, f.db.First(&paid, b.ID).Error)
	assert.Equal(t, models.BookingStatusPaid, paid.Status)
}

func TestProcessInvalidSignatureIsRecordedNotApplied(t *testing.T) {
	f, p := setupWebhooks(t)
	intent, err := f.guard.StartPayment(context.Background(), f.newBooking(t), 30*time.Minute)
	require.NoError(t, err)

	_, entry, err := p.Record(context.Background(), WebhookInput{
		Provider:          "midgate",
		ProviderEventID:   "evt-bad-sig",
		OrderRef:          intent.ReferenceID,
		TransactionStatus: GatewayStatusSettlement,
		PayloadJSON:       "{}",
		SignatureValid:    false,
	})
	require.NoError(t, err)

	err = p.Process(context.Background(), entry)
	assert.Error(t, err)

	// intent untouched, but the rejection is kept for audit
	assert.Equal(t, models.IntentStatusPending, f.reloadIntent(t, intent.ID).Status)

	var log models.WebhookLog
	require.NoError(t, f.db.First(&log, entry.ID).Error)
	assert.NotNil(t, log.ProcessedAt)
	assert.Contains(t, log.ProcessingError, "signature invalid")
}

func TestProcessUnknownOrderRefStoresError(t *testing.T) {
	f, p := setupWebhooks(t)

	_, entry, err := p.Record(context.Background(), WebhookInput{
		Provider:          "midgate",
		ProviderEventID:   "evt-orphan",
		OrderRef:          "pay-does-not-exist",
		TransactionStatus: GatewayStatusSettlement,
		PayloadJSON:       "{}",
		SignatureValid:    true,
	})
	require.NoError(t, err)

	err = p.Process(context.Background(), entry)
	assert.Error(t, err)

	var log models.WebhookLog
	require.NoError(t, f.db.First(&log, entry.ID).Error)
	assert.Contains(t, log.ProcessingError, "no payment intent")
}

func TestProcessCancelStatusCancelsIntent(t *testing.T) {
	f, p := setupWebhooks(t)
	b := f.newBooking(t)
	intent, err := f.guard.StartPayment(context.Background(), b, 30*time.Minute)
	require.NoError(t, err)

	_, entry, err := p.Record(context.Background(), WebhookInput{
		Provider:          "midgate",
		ProviderEventID:   "evt-cancel",
		OrderRef:          intent.ReferenceID,
		TransactionStatus: GatewayStatusCancel,
		PayloadJSON:       "{}",
		SignatureValid:    true,
	})
	require.NoError(t, err)
	require.NoError(t, p.Process(context.Background(), entry))

	assert.Equal(t, models.IntentStatusCancelled, f.reloadIntent(t, intent.ID).Status)

	// the booking itself is left to the expiry sweep
	var pending models.Booking
	require.NoError(t, f.db.First(&pending, b.ID).Error)
	assert.Equal(t, models.BookingStatusPending, pending.Status)
}
