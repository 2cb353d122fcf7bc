package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibast-solutions/ms-go-orders/app/entity"
	"github.com/vibast-solutions/ms-go-orders/app/provider"
)

func TestOutboxDispatchDeliversTasks(t *testing.T) {
	received := make([]string, 0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = append(received, r.Header.Get("X-API-Key"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Notifications.EndpointURL = srv.URL

	stores := newFakeStores()
	stores.listings.items["listing-1"] = activeListing("listing-1")
	prov := &fakeProvider{events: map[string]*provider.Event{
		"evt_1": checkoutEvent("evt_1", "cs_1", nil),
	}}
	svc := newTestService(stores, prov, cfg)

	require.NoError(t, svc.HandleProviderEvent(context.Background(), "stripe", []byte("evt_1"), "sig"))
	require.NoError(t, svc.RunDispatchOutboxBatch(context.Background()))

	assert.NotEmpty(t, stores.timeline.items)
	assert.NotEmpty(t, stores.audit.items)
	require.Len(t, received, 2)
	assert.Equal(t, "test-api-key", received[0])

	for _, task := range stores.outbox.items {
		assert.Equal(t, entity.OutboxStatusSucceeded, task.Status)
	}
}

func TestOutboxRedispatchAppendsTimelineOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Notifications.EndpointURL = srv.URL

	stores := newFakeStores()
	stores.listings.items["listing-1"] = activeListing("listing-1")
	prov := &fakeProvider{events: map[string]*provider.Event{
		"evt_1": checkoutEvent("evt_1", "cs_1", nil),
	}}
	svc := newTestService(stores, prov, cfg)

	require.NoError(t, svc.HandleProviderEvent(context.Background(), "stripe", []byte("evt_1"), "sig"))
	require.NoError(t, svc.RunDispatchOutboxBatch(context.Background()))
	entriesAfterFirst := len(stores.timeline.items)

	// Re-mark one delivered timeline task as pending, as if the status write
	// was lost after delivery. The deterministic entry ID absorbs the replay.
	for _, task := range stores.outbox.items {
		if task.Kind == entity.OutboxKindTimeline {
			task.Status = entity.OutboxStatusPending
			break
		}
	}
	require.NoError(t, svc.RunDispatchOutboxBatch(context.Background()))

	assert.Equal(t, entriesAfterFirst, len(stores.timeline.items))
}

func TestOutboxDeadLettersAfterMaxAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.Notifications.EndpointURL = "http://127.0.0.1:1"
	cfg.Outbox.MaxAttempts = 2
	cfg.Outbox.RetryInterval = 0

	stores := newFakeStores()
	svc := newTestService(stores, &fakeProvider{}, cfg)

	now := time.Now()
	require.NoError(t, stores.outbox.Enqueue(context.Background(), &entity.OutboxTask{
		Kind:          entity.OutboxKindNotification,
		PayloadJSON:   `{"recipient_id":"buyer-1","template":"Order.Confirmed","order_id":"order-1"}`,
		Status:        entity.OutboxStatusPending,
		NextAttemptAt: &now,
	}))

	require.Error(t, svc.RunDispatchOutboxBatch(context.Background()))
	task := stores.outbox.items[0]
	assert.Equal(t, entity.OutboxStatusPending, task.Status)
	assert.Equal(t, int32(1), task.Attempts)
	require.NotNil(t, task.LastError)

	require.Error(t, svc.RunDispatchOutboxBatch(context.Background()))
	task = stores.outbox.items[0]
	assert.Equal(t, entity.OutboxStatusDead, task.Status)
	assert.Equal(t, int32(2), task.Attempts)
}

func TestEscrowReleaseAfterWindow(t *testing.T) {
	stores := newFakeStores()
	order := seedHeldOrder(stores)
	pastDeadline := time.Now().Add(-time.Hour)
	order.DisputeDeadlineAt = &pastDeadline

	svc := newTestService(stores, &fakeProvider{}, nil)
	require.NoError(t, svc.RunReleaseEscrowBatch(context.Background()))

	released := stores.orders.items[order.ID]
	assert.Equal(t, entity.OrderStatusPaid, released.Status)
	assert.Equal(t, entity.PayoutHoldNone, released.PayoutHoldReason)
	assert.Equal(t, time.UTC, released.UpdatedAt.Location())
}

func TestEscrowReleaseSkipsHeldAndPendingWindows(t *testing.T) {
	stores := newFakeStores()

	held := seedHeldOrder(stores)
	pastDeadline := time.Now().Add(-time.Hour)
	held.DisputeDeadlineAt = &pastDeadline
	held.AdminHold = true

	svc := newTestService(stores, &fakeProvider{}, nil)
	require.NoError(t, svc.RunReleaseEscrowBatch(context.Background()))

	assert.Equal(t, entity.OrderStatusPaidHeld, stores.orders.items[held.ID].Status)
}

func TestExpireReservationsCancelsStaleOrders(t *testing.T) {
	stores := newFakeStores()
	stores.listings.items["listing-1"] = activeListing("listing-1")

	order := &entity.Order{
		ID:                "order-stale",
		CheckoutSessionID: "cs_stale",
		ListingID:         "listing-1",
		SellerID:          "seller-1",
		BuyerID:           "buyer-1",
		PaymentMethod:     entity.PaymentMethodACHDebit,
		Status:            entity.OrderStatusAwaitingBankTransfer,
		CreatedAt:         time.Now().Add(-200 * time.Hour),
	}
	stores.orders.items[order.ID] = order
	require.NoError(t, stores.listings.Reserve(context.Background(), "listing-1", order.ID, order.BuyerID, time.Now().Add(-time.Hour)))

	svc := newTestService(stores, &fakeProvider{}, nil)
	require.NoError(t, svc.RunExpireReservationsBatch(context.Background()))

	assert.Equal(t, entity.OrderStatusCancelled, stores.orders.items[order.ID].Status)
	assert.Equal(t, entity.ListingStatusActive, stores.listings.items["listing-1"].Status)
}

func TestExpireReservationsLeavesFreshOrders(t *testing.T) {
	stores := newFakeStores()
	stores.listings.items["listing-1"] = activeListing("listing-1")

	order := &entity.Order{
		ID:                "order-fresh",
		CheckoutSessionID: "cs_fresh",
		ListingID:         "listing-1",
		SellerID:          "seller-1",
		BuyerID:           "buyer-1",
		Status:            entity.OrderStatusAwaitingBankTransfer,
		CreatedAt:         time.Now().Add(-time.Hour),
	}
	stores.orders.items[order.ID] = order

	svc := newTestService(stores, &fakeProvider{}, nil)
	require.NoError(t, svc.RunExpireReservationsBatch(context.Background()))

	assert.Equal(t, entity.OrderStatusAwaitingBankTransfer, stores.orders.items[order.ID].Status)
}
