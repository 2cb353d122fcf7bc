package provider

import "context"

type EventKind string

const (
	EventCheckoutCompleted      EventKind = "checkout_completed"
	EventAsyncPaymentSucceeded  EventKind = "async_payment_succeeded"
	EventAsyncPaymentFailed     EventKind = "async_payment_failed"
	EventCheckoutExpired        EventKind = "checkout_expired"
	EventPaymentIntentSucceeded EventKind = "payment_intent_succeeded"
	EventPaymentIntentCanceled  EventKind = "payment_intent_canceled"
	EventDisputeCreated         EventKind = "dispute_created"
	EventDisputeUpdated         EventKind = "dispute_updated"
	EventDisputeClosed          EventKind = "dispute_closed"
	EventDisputeFundsWithdrawn  EventKind = "dispute_funds_withdrawn"
	EventDisputeFundsReinstated EventKind = "dispute_funds_reinstated"
	EventAccountUpdated         EventKind = "account_updated"
	EventUnknown                EventKind = "unknown"
)

type Address struct {
	Line1      string
	City       string
	State      string
	PostalCode string
	Country    string
}

type CheckoutSession struct {
	ID              string
	PaymentIntentID string

	// PaymentStatus is the provider's funds state at delivery time:
	// "paid" means settled, "unpaid" means an async rail is still clearing.
	PaymentStatus string

	PaymentMethod    string
	AmountTotalCents int64
	Currency         string

	BillingAddress  *Address
	ShippingAddress *Address

	Metadata map[string]string
}

type PaymentIntent struct {
	ID          string
	Status      string
	AmountCents int64
	Currency    string

	PaymentMethodTypes []string

	BillingAddress  *Address
	ShippingAddress *Address

	Metadata map[string]string
}

type Dispute struct {
	ID              string
	PaymentIntentID string
	Status          string
	Reason          string
	AmountCents     int64
	Currency        string
}

// Event is the tagged union produced at the ingestion boundary. Exactly one
// of Session, Intent, Dispute is set, matching Kind. Payloads missing their
// correlating ID fail parsing instead of flowing downstream half-empty.
type Event struct {
	ID   string
	Kind EventKind

	Session *CheckoutSession
	Intent  *PaymentIntent
	Dispute *Dispute
}

type PaymentProvider interface {
	Name() string
	VerifyAndParseEvent(ctx context.Context, payload []byte, signature string) (*Event, error)
	RefundPayment(ctx context.Context, paymentIntentID, reason, idempotencyKey string) error
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error)
}
