package entity

import "time"

type OrderStatus string

const (
	OrderStatusPending              OrderStatus = "pending"
	OrderStatusAwaitingBankTransfer OrderStatus = "awaiting_bank_transfer"
	OrderStatusAwaitingWire         OrderStatus = "awaiting_wire"
	OrderStatusPaidHeld             OrderStatus = "paid_held"
	OrderStatusPaid                 OrderStatus = "paid"
	OrderStatusCompleted            OrderStatus = "completed"
	OrderStatusRefunded             OrderStatus = "refunded"
	OrderStatusCancelled            OrderStatus = "cancelled"
)

// FundsConfirmed reports whether s means the buyer's money has settled.
// Transitions guard on this: once confirmed, only an explicit refund path
// may move the order, and disputes layer flags on top instead of touching it.
func (s OrderStatus) FundsConfirmed() bool {
	switch s {
	case OrderStatusPaidHeld, OrderStatusPaid, OrderStatusCompleted:
		return true
	default:
		return false
	}
}

func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusRefunded, OrderStatusCancelled, OrderStatusCompleted:
		return true
	default:
		return false
	}
}

type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodACHDebit     PaymentMethod = "ach_debit"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodWire         PaymentMethod = "wire"
)

// Async reports whether funds confirmation arrives via a separate, later
// event than the checkout completion itself.
func (m PaymentMethod) Async() bool {
	switch m {
	case PaymentMethodACHDebit, PaymentMethodBankTransfer, PaymentMethodWire:
		return true
	default:
		return false
	}
}

type PayoutHoldReason string

const (
	PayoutHoldNone             PayoutHoldReason = "none"
	PayoutHoldProtectionWindow PayoutHoldReason = "protection_window"
	PayoutHoldChargeback       PayoutHoldReason = "chargeback"
)

type ChargebackStatus string

const (
	ChargebackNone ChargebackStatus = "none"
	ChargebackOpen ChargebackStatus = "open"
	ChargebackWon  ChargebackStatus = "won"
	ChargebackLost ChargebackStatus = "lost"
)

type TransferPermitStatus string

const (
	TransferPermitNone     TransferPermitStatus = "none"
	TransferPermitPending  TransferPermitStatus = "pending"
	TransferPermitApproved TransferPermitStatus = "approved"
)

type Order struct {
	ID string

	CheckoutSessionID string
	PaymentIntentID   *string

	ListingID       string
	ListingTitle    string
	ListingCategory string
	SellerID        string
	BuyerID         string
	OfferID         *string

	PaymentMethod PaymentMethod
	Currency      string

	// Money fields are snapshots captured at checkout. Fee schedule changes
	// never retroactively alter them.
	AmountCents       int64
	PlatformFeeCents  int64
	SellerAmountCents int64

	Status            OrderStatus
	PaidAt            *time.Time
	DisputeDeadlineAt *time.Time

	AdminHold         bool
	NeedsManualReview bool
	PayoutHoldReason  PayoutHoldReason
	ChargebackStatus  ChargebackStatus

	ComplianceViolation    bool
	TransferPermitRequired bool
	TransferPermitStatus   TransferPermitStatus
	BuyerRegion            *string

	Metadata map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}
