package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-orders/app/entity"
)

// WebhookEventRepository is the idempotency ledger. RecordIfNew is a single
// INSERT against the primary key, so two concurrent deliveries of the same
// event race on the database's uniqueness guarantee, not on application code.
type WebhookEventRepository struct {
	db DBTX
}

func NewWebhookEventRepository(db DBTX) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

func (r *WebhookEventRepository) RecordIfNew(ctx context.Context, event *entity.WebhookEvent) (bool, error) {
	query := `
		INSERT INTO webhook_events (
			event_id, event_type, checkout_session_id, payment_intent_id, dispute_id, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.EventID,
		event.EventType,
		nullableStringValue(event.CheckoutSessionID),
		nullableStringValue(event.PaymentIntentID),
		nullableStringValue(event.DisputeID),
		event.CreatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *WebhookEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var found string
	err := r.db.QueryRowContext(ctx, `SELECT event_id FROM webhook_events WHERE event_id = ?`, eventID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
