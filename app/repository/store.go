package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-orders/app/entity"
)

type OrderStore interface {
	Create(ctx context.Context, order *entity.Order) error
	Update(ctx context.Context, order *entity.Order) error
	FindByID(ctx context.Context, id string) (*entity.Order, error)
	FindByCheckoutSessionID(ctx context.Context, sessionID string) (*entity.Order, error)
	FindByPaymentIntentID(ctx context.Context, intentID string) (*entity.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]*entity.Order, error)
	ListDueEscrowRelease(ctx context.Context, now time.Time, limit int32) ([]*entity.Order, error)
	ListStaleAwaiting(ctx context.Context, before time.Time, limit int32) ([]*entity.Order, error)
}

type ListingStore interface {
	FindByID(ctx context.Context, id string) (*entity.Listing, error)
	Reserve(ctx context.Context, listingID, orderID, buyerID string, until time.Time) error
	MarkSold(ctx context.Context, listingID string, saleType entity.SaleType, priceCents int64, soldAt time.Time) error
	Release(ctx context.Context, listingID, expectedOrderID string) error
}

type DisputeStore interface {
	Create(ctx context.Context, dispute *entity.Dispute) error
	Update(ctx context.Context, dispute *entity.Dispute) error
	FindByID(ctx context.Context, id string) (*entity.Dispute, error)
}

type WebhookEventStore interface {
	RecordIfNew(ctx context.Context, event *entity.WebhookEvent) (bool, error)
	Exists(ctx context.Context, eventID string) (bool, error)
}

type OutboxStore interface {
	Enqueue(ctx context.Context, task *entity.OutboxTask) error
	ListDue(ctx context.Context, now time.Time, limit int32) ([]*entity.OutboxTask, error)
	Update(ctx context.Context, task *entity.OutboxTask) error
}

type AuditLogStore interface {
	Create(ctx context.Context, record *entity.AuditRecord) error
	ListByOrderID(ctx context.Context, orderID string) ([]*entity.AuditRecord, error)
}

type TimelineStore interface {
	Append(ctx context.Context, entry *entity.TimelineEntry) error
	ListByOrderID(ctx context.Context, orderID string) ([]*entity.TimelineEntry, error)
}

// TxRepos exposes the stores participating in one transaction. Reads done
// through it take row locks, so a transition's read-modify-write is atomic
// against concurrent deliveries of the same event.
type TxRepos interface {
	Orders() OrderStore
	Listings() ListingStore
	Disputes() DisputeStore
	WebhookEvents() WebhookEventStore
	Outbox() OutboxStore
}

type TxRunner interface {
	WithinTx(ctx context.Context, fn func(tx TxRepos) error) error
}

type txRepos struct {
	orders        OrderStore
	listings      ListingStore
	disputes      DisputeStore
	webhookEvents WebhookEventStore
	outbox        OutboxStore
}

func (r *txRepos) Orders() OrderStore               { return r.orders }
func (r *txRepos) Listings() ListingStore           { return r.listings }
func (r *txRepos) Disputes() DisputeStore           { return r.disputes }
func (r *txRepos) WebhookEvents() WebhookEventStore { return r.webhookEvents }
func (r *txRepos) Outbox() OutboxStore              { return r.outbox }

type Runner struct {
	db *sql.DB
}

func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

func (r *Runner) WithinTx(ctx context.Context, fn func(tx TxRepos) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	repos := &txRepos{
		orders:        &OrderRepository{db: tx, lockReads: true},
		listings:      &ListingRepository{db: tx},
		disputes:      &DisputeRepository{db: tx, lockReads: true},
		webhookEvents: NewWebhookEventRepository(tx),
		outbox:        &OutboxRepository{db: tx},
	}

	if err := fn(repos); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
