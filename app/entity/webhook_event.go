package entity

import "time"

// WebhookEvent is the idempotency ledger row for one provider event ID.
// Rows are written exactly once and never updated or deleted.
type WebhookEvent struct {
	EventID   string
	EventType string

	CheckoutSessionID *string
	PaymentIntentID   *string
	DisputeID         *string

	CreatedAt time.Time
}
