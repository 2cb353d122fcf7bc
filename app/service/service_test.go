package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-orders/app/entity"
	"github.com/vibast-solutions/ms-go-orders/app/provider"
	"github.com/vibast-solutions/ms-go-orders/app/repository"
	"github.com/vibast-solutions/ms-go-orders/config"
)

type fakeStores struct {
	orders   *fakeOrderStore
	listings *fakeListingStore
	disputes *fakeDisputeStore
	events   *fakeWebhookEventStore
	outbox   *fakeOutboxStore
	audit    *fakeAuditStore
	timeline *fakeTimelineStore
}

func newFakeStores() *fakeStores {
	return &fakeStores{
		orders:   &fakeOrderStore{items: map[string]*entity.Order{}},
		listings: &fakeListingStore{items: map[string]*entity.Listing{}},
		disputes: &fakeDisputeStore{items: map[string]*entity.Dispute{}},
		events:   &fakeWebhookEventStore{seen: map[string]bool{}},
		outbox:   &fakeOutboxStore{},
		audit:    &fakeAuditStore{items: map[string]*entity.AuditRecord{}},
		timeline: &fakeTimelineStore{seen: map[string]bool{}},
	}
}

func (f *fakeStores) Orders() repository.OrderStore               { return f.orders }
func (f *fakeStores) Listings() repository.ListingStore           { return f.listings }
func (f *fakeStores) Disputes() repository.DisputeStore           { return f.disputes }
func (f *fakeStores) WebhookEvents() repository.WebhookEventStore { return f.events }
func (f *fakeStores) Outbox() repository.OutboxStore              { return f.outbox }

type fakeTxRunner struct {
	stores *fakeStores
	// failures aborts that many transactions before any store is touched,
	// standing in for a rolled-back transaction.
	failures int
}

func (f *fakeTxRunner) WithinTx(_ context.Context, fn func(tx repository.TxRepos) error) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("transaction aborted")
	}
	return fn(f.stores)
}

type fakeOrderStore struct {
	items map[string]*entity.Order
}

func (r *fakeOrderStore) Create(_ context.Context, order *entity.Order) error {
	for _, item := range r.items {
		if item.ID == order.ID || item.CheckoutSessionID == order.CheckoutSessionID {
			return repository.ErrOrderAlreadyExists
		}
	}
	copyItem := *order
	r.items[order.ID] = &copyItem
	return nil
}

func (r *fakeOrderStore) Update(_ context.Context, order *entity.Order) error {
	if _, ok := r.items[order.ID]; !ok {
		return repository.ErrOrderNotFound
	}
	copyItem := *order
	r.items[order.ID] = &copyItem
	return nil
}

func (r *fakeOrderStore) FindByID(_ context.Context, id string) (*entity.Order, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *fakeOrderStore) FindByCheckoutSessionID(_ context.Context, sessionID string) (*entity.Order, error) {
	for _, item := range r.items {
		if item.CheckoutSessionID == sessionID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakeOrderStore) FindByPaymentIntentID(_ context.Context, intentID string) (*entity.Order, error) {
	for _, item := range r.items {
		if item.PaymentIntentID != nil && *item.PaymentIntentID == intentID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakeOrderStore) List(_ context.Context, filter repository.OrderFilter) ([]*entity.Order, error) {
	items := make([]*entity.Order, 0)
	for _, item := range r.items {
		if filter.Status != "" && string(item.Status) != filter.Status {
			continue
		}
		if filter.BuyerID != "" && item.BuyerID != filter.BuyerID {
			continue
		}
		if filter.SellerID != "" && item.SellerID != filter.SellerID {
			continue
		}
		if filter.AdminHold != nil && item.AdminHold != *filter.AdminHold {
			continue
		}
		if filter.NeedsReview != nil && item.NeedsManualReview != *filter.NeedsReview {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r *fakeOrderStore) ListDueEscrowRelease(_ context.Context, now time.Time, _ int32) ([]*entity.Order, error) {
	items := make([]*entity.Order, 0)
	for _, item := range r.items {
		if item.Status != entity.OrderStatusPaidHeld || item.AdminHold {
			continue
		}
		if item.DisputeDeadlineAt == nil || item.DisputeDeadlineAt.After(now) {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	return items, nil
}

func (r *fakeOrderStore) ListStaleAwaiting(_ context.Context, before time.Time, _ int32) ([]*entity.Order, error) {
	items := make([]*entity.Order, 0)
	for _, item := range r.items {
		if item.Status != entity.OrderStatusAwaitingBankTransfer && item.Status != entity.OrderStatusAwaitingWire {
			continue
		}
		if item.CreatedAt.After(before) {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	return items, nil
}

type fakeListingStore struct {
	items map[string]*entity.Listing
}

func (r *fakeListingStore) FindByID(_ context.Context, id string) (*entity.Listing, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *fakeListingStore) Reserve(_ context.Context, listingID, orderID, buyerID string, until time.Time) error {
	item, ok := r.items[listingID]
	if !ok {
		return repository.ErrListingNotFound
	}
	item.Status = entity.ListingStatusReserved
	item.PurchaseReservedByOrderID = &orderID
	item.PurchaseReservedByUserID = &buyerID
	item.PurchaseReservedUntil = &until
	return nil
}

func (r *fakeListingStore) MarkSold(_ context.Context, listingID string, saleType entity.SaleType, priceCents int64, soldAt time.Time) error {
	item, ok := r.items[listingID]
	if !ok {
		return repository.ErrListingNotFound
	}
	item.Status = entity.ListingStatusSold
	item.PurchaseReservedByOrderID = nil
	item.PurchaseReservedByUserID = nil
	item.PurchaseReservedUntil = nil
	item.SoldAt = &soldAt
	item.SoldPriceCents = &priceCents
	item.SaleType = &saleType
	return nil
}

func (r *fakeListingStore) Release(_ context.Context, listingID, expectedOrderID string) error {
	item, ok := r.items[listingID]
	if !ok {
		return nil
	}
	if item.PurchaseReservedByOrderID == nil || *item.PurchaseReservedByOrderID != expectedOrderID {
		return nil
	}
	item.Status = entity.ListingStatusActive
	item.PurchaseReservedByOrderID = nil
	item.PurchaseReservedByUserID = nil
	item.PurchaseReservedUntil = nil
	return nil
}

type fakeDisputeStore struct {
	items map[string]*entity.Dispute
}

func (r *fakeDisputeStore) Create(_ context.Context, dispute *entity.Dispute) error {
	if _, ok := r.items[dispute.ID]; ok {
		return repository.ErrDisputeAlreadyExists
	}
	copyItem := *dispute
	r.items[dispute.ID] = &copyItem
	return nil
}

func (r *fakeDisputeStore) Update(_ context.Context, dispute *entity.Dispute) error {
	if _, ok := r.items[dispute.ID]; !ok {
		return repository.ErrDisputeNotFound
	}
	copyItem := *dispute
	r.items[dispute.ID] = &copyItem
	return nil
}

func (r *fakeDisputeStore) FindByID(_ context.Context, id string) (*entity.Dispute, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

type fakeWebhookEventStore struct {
	seen      map[string]bool
	recordErr error
}

func (r *fakeWebhookEventStore) RecordIfNew(_ context.Context, event *entity.WebhookEvent) (bool, error) {
	if r.recordErr != nil {
		return false, r.recordErr
	}
	if r.seen[event.EventID] {
		return false, nil
	}
	r.seen[event.EventID] = true
	return true, nil
}

func (r *fakeWebhookEventStore) Exists(_ context.Context, eventID string) (bool, error) {
	return r.seen[eventID], nil
}

type fakeOutboxStore struct {
	items  []*entity.OutboxTask
	nextID uint64
}

func (r *fakeOutboxStore) Enqueue(_ context.Context, task *entity.OutboxTask) error {
	r.nextID++
	copyItem := *task
	copyItem.ID = r.nextID
	r.items = append(r.items, &copyItem)
	task.ID = r.nextID
	return nil
}

func (r *fakeOutboxStore) ListDue(_ context.Context, now time.Time, _ int32) ([]*entity.OutboxTask, error) {
	due := make([]*entity.OutboxTask, 0)
	for _, item := range r.items {
		if item.Status != entity.OutboxStatusPending {
			continue
		}
		if item.NextAttemptAt != nil && item.NextAttemptAt.After(now) {
			continue
		}
		copyItem := *item
		due = append(due, &copyItem)
	}
	return due, nil
}

func (r *fakeOutboxStore) Update(_ context.Context, task *entity.OutboxTask) error {
	for i, item := range r.items {
		if item.ID == task.ID {
			copyItem := *task
			r.items[i] = &copyItem
			return nil
		}
	}
	return repository.ErrOutboxTaskNotFound
}

func (r *fakeOutboxStore) byKind(kind entity.OutboxKind) []*entity.OutboxTask {
	matched := make([]*entity.OutboxTask, 0)
	for _, item := range r.items {
		if item.Kind == kind {
			matched = append(matched, item)
		}
	}
	return matched
}

type fakeAuditStore struct {
	items map[string]*entity.AuditRecord
}

func (r *fakeAuditStore) Create(_ context.Context, record *entity.AuditRecord) error {
	if _, ok := r.items[record.ID]; ok {
		return nil
	}
	copyItem := *record
	r.items[record.ID] = &copyItem
	return nil
}

func (r *fakeAuditStore) ListByOrderID(_ context.Context, orderID string) ([]*entity.AuditRecord, error) {
	items := make([]*entity.AuditRecord, 0)
	for _, item := range r.items {
		if item.OrderID != nil && *item.OrderID == orderID {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	return items, nil
}

type fakeTimelineStore struct {
	items []*entity.TimelineEntry
	seen  map[string]bool
}

func (r *fakeTimelineStore) Append(_ context.Context, entry *entity.TimelineEntry) error {
	key := entry.OrderID + "/" + entry.EntryID
	if r.seen[key] {
		return nil
	}
	r.seen[key] = true
	copyItem := *entry
	r.items = append(r.items, &copyItem)
	return nil
}

func (r *fakeTimelineStore) ListByOrderID(_ context.Context, orderID string) ([]*entity.TimelineEntry, error) {
	items := make([]*entity.TimelineEntry, 0)
	for _, item := range r.items {
		if item.OrderID == orderID {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	return items, nil
}

type fakeProvider struct {
	events    map[string]*provider.Event
	refunds   []string
	refundKey []string
	refundErr error
	intent    *provider.PaymentIntent
	intentErr error
}

func (p *fakeProvider) Name() string { return "stripe" }

func (p *fakeProvider) VerifyAndParseEvent(_ context.Context, payload []byte, signature string) (*provider.Event, error) {
	if signature == "bad" {
		return nil, errors.New("signature mismatch")
	}
	event, ok := p.events[string(payload)]
	if !ok {
		return nil, errors.New("unknown payload")
	}
	return event, nil
}

func (p *fakeProvider) RefundPayment(_ context.Context, paymentIntentID, _, idempotencyKey string) error {
	if p.refundErr != nil {
		return p.refundErr
	}
	p.refunds = append(p.refunds, paymentIntentID)
	p.refundKey = append(p.refundKey, idempotencyKey)
	return nil
}

func (p *fakeProvider) GetPaymentIntent(_ context.Context, id string) (*provider.PaymentIntent, error) {
	if p.intentErr != nil {
		return nil, p.intentErr
	}
	if p.intent != nil && p.intent.ID == id {
		copyItem := *p.intent
		return &copyItem, nil
	}
	return nil, errors.New("intent not found")
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{ServiceName: "orders", APIKey: "test-api-key"},
		Orders: config.OrdersConfig{
			DisputeWindow:      72 * time.Hour,
			ReservationWindow:  168 * time.Hour,
			PlatformFeePercent: 0.08,
		},
		Compliance: config.ComplianceConfig{
			RestrictedCategories: []string{"firearms"},
			PermitCategories:     []string{"firearms"},
			AllowedRegion:        "CA",
			IntentLookupTimeout:  time.Second,
		},
		Notifications: config.NotificationsConfig{HTTPTimeout: time.Second},
		Outbox: config.OutboxConfig{
			MaxAttempts:   3,
			RetryInterval: time.Minute,
			BatchSize:     50,
		},
	}
}

func newTestService(stores *fakeStores, prov *fakeProvider, cfg *config.Config) *OrderService {
	return newTestServiceWithRunner(&fakeTxRunner{stores: stores}, stores, prov, cfg)
}

func newTestServiceWithRunner(runner repository.TxRunner, stores *fakeStores, prov *fakeProvider, cfg *config.Config) *OrderService {
	if cfg == nil {
		cfg = testConfig()
	}
	return NewOrderService(
		runner,
		stores.orders,
		stores.disputes,
		stores.outbox,
		stores.audit,
		stores.timeline,
		provider.NewRegistry(prov),
		cfg,
	)
}

func activeListing(id string) *entity.Listing {
	return &entity.Listing{
		ID:       id,
		SellerID: "seller-1",
		Title:    "Vintage synthesizer",
		Category: "electronics",
		Type:     entity.ListingTypeFixed,
		Status:   entity.ListingStatusActive,
	}
}

func checkoutEvent(eventID, sessionID string, mutate func(*provider.CheckoutSession)) *provider.Event {
	session := &provider.CheckoutSession{
		ID:               sessionID,
		PaymentIntentID:  "pi_" + strings.TrimPrefix(sessionID, "cs_"),
		PaymentStatus:    "paid",
		PaymentMethod:    "card",
		AmountTotalCents: 10000,
		Currency:         "USD",
		BillingAddress:   &provider.Address{Line1: "1 Main St", City: "Oakland", State: "CA", Country: "US"},
		Metadata: map[string]string{
			"listing_id":         "listing-1",
			"buyer_id":           "buyer-1",
			"platform_fee_cents": "800",
		},
	}
	if mutate != nil {
		mutate(session)
	}
	return &provider.Event{
		ID:      eventID,
		Kind:    provider.EventCheckoutCompleted,
		Session: session,
	}
}
