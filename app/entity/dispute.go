package entity

import "time"

type DisputeStatus string

const (
	DisputeStatusOpen DisputeStatus = "open"
	DisputeStatusWon  DisputeStatus = "won"
	DisputeStatusLost DisputeStatus = "lost"
)

// Dispute is keyed by the provider's dispute ID and linked to exactly one
// order through the payment intent.
type Dispute struct {
	ID string

	PaymentIntentID string
	OrderID         *string

	Status      DisputeStatus
	AmountCents int64
	Currency    string
	Reason      string

	FundsWithdrawnAt  *time.Time
	FundsReinstatedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
