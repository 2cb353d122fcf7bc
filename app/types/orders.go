package types

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type HandleProviderWebhookRequest struct {
	Provider  string
	Signature string
	Payload   []byte
}

func NewHandleProviderWebhookRequestFromContext(ctx echo.Context) (*HandleProviderWebhookRequest, error) {
	provider := strings.TrimSpace(strings.ToLower(ctx.Param("provider")))

	signature := strings.TrimSpace(ctx.Request().Header.Get("Stripe-Signature"))
	if signature == "" {
		signature = strings.TrimSpace(ctx.Request().Header.Get("X-Provider-Signature"))
	}

	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	return &HandleProviderWebhookRequest{
		Provider:  provider,
		Signature: signature,
		Payload:   rawBody,
	}, nil
}

func (r *HandleProviderWebhookRequest) Validate() error {
	if r.Provider == "" {
		return errors.New("provider is required")
	}
	if r.Signature == "" {
		return errors.New("signature header is required")
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

type ListOrdersRequest struct {
	Status      string
	BuyerID     string
	SellerID    string
	AdminHold   *bool
	NeedsReview *bool
	Limit       int32
	Offset      int32
}

func NewListOrdersRequestFromContext(ctx echo.Context) (*ListOrdersRequest, error) {
	req := &ListOrdersRequest{
		Status:   strings.TrimSpace(ctx.QueryParam("status")),
		BuyerID:  strings.TrimSpace(ctx.QueryParam("buyer_id")),
		SellerID: strings.TrimSpace(ctx.QueryParam("seller_id")),
		Limit:    100,
		Offset:   0,
	}

	if raw := strings.TrimSpace(ctx.QueryParam("admin_hold")); raw != "" {
		hold, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, err
		}
		req.AdminHold = &hold
	}

	if raw := strings.TrimSpace(ctx.QueryParam("needs_review")); raw != "" {
		review, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, err
		}
		req.NeedsReview = &review
	}

	if raw := strings.TrimSpace(ctx.QueryParam("limit")); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Limit = int32(limit)
	}

	if raw := strings.TrimSpace(ctx.QueryParam("offset")); raw != "" {
		offset, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Offset = int32(offset)
	}

	return req, nil
}

func (r *ListOrdersRequest) Validate() error {
	if r.Limit <= 0 || r.Limit > 500 {
		return errors.New("limit must be between 1 and 500")
	}
	if r.Offset < 0 {
		return errors.New("offset must be >= 0")
	}
	return nil
}

type GetOrderRequest struct {
	ID string
}

func NewGetOrderRequestFromContext(ctx echo.Context) (*GetOrderRequest, error) {
	return &GetOrderRequest{ID: strings.TrimSpace(ctx.Param("id"))}, nil
}

func (r *GetOrderRequest) Validate() error {
	if r.ID == "" {
		return errors.New("invalid order id")
	}
	return nil
}

type GetDisputeRequest struct {
	ID string
}

func NewGetDisputeRequestFromContext(ctx echo.Context) (*GetDisputeRequest, error) {
	return &GetDisputeRequest{ID: strings.TrimSpace(ctx.Param("id"))}, nil
}

func (r *GetDisputeRequest) Validate() error {
	if r.ID == "" {
		return errors.New("invalid dispute id")
	}
	return nil
}

// OrderActionRequest covers the admin mutations addressed by order ID. The
// acting admin is taken from the authenticated token, never from the body.
type OrderActionRequest struct {
	ID      string
	AdminID string
}

func NewOrderActionRequestFromContext(ctx echo.Context) (*OrderActionRequest, error) {
	adminID, _ := ctx.Get("admin_id").(string)
	return &OrderActionRequest{
		ID:      strings.TrimSpace(ctx.Param("id")),
		AdminID: strings.TrimSpace(adminID),
	}, nil
}

func (r *OrderActionRequest) Validate() error {
	if r.ID == "" {
		return errors.New("invalid order id")
	}
	if r.AdminID == "" {
		return errors.New("admin identity is required")
	}
	return nil
}

type OrderResponse struct {
	ID                string  `json:"id"`
	CheckoutSessionID string  `json:"checkout_session_id"`
	PaymentIntentID   *string `json:"payment_intent_id,omitempty"`

	ListingID       string  `json:"listing_id"`
	ListingTitle    string  `json:"listing_title"`
	ListingCategory string  `json:"listing_category"`
	SellerID        string  `json:"seller_id"`
	BuyerID         string  `json:"buyer_id"`
	OfferID         *string `json:"offer_id,omitempty"`

	PaymentMethod     string `json:"payment_method"`
	Currency          string `json:"currency"`
	AmountCents       int64  `json:"amount_cents"`
	PlatformFeeCents  int64  `json:"platform_fee_cents"`
	SellerAmountCents int64  `json:"seller_amount_cents"`

	Status            string     `json:"status"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	DisputeDeadlineAt *time.Time `json:"dispute_deadline_at,omitempty"`

	AdminHold         bool   `json:"admin_hold"`
	NeedsManualReview bool   `json:"needs_manual_review"`
	PayoutHoldReason  string `json:"payout_hold_reason"`
	ChargebackStatus  string `json:"chargeback_status"`

	ComplianceViolation    bool    `json:"compliance_violation"`
	TransferPermitRequired bool    `json:"transfer_permit_required"`
	TransferPermitStatus   string  `json:"transfer_permit_status"`
	BuyerRegion            *string `json:"buyer_region,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TimelineEntryResponse struct {
	EntryID    string    `json:"entry_id"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

type AuditRecordResponse struct {
	ID        string            `json:"id"`
	Actor     string            `json:"actor"`
	Action    string            `json:"action"`
	OldStatus *string           `json:"old_status,omitempty"`
	NewStatus *string           `json:"new_status,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type DisputeResponse struct {
	ID                string     `json:"id"`
	PaymentIntentID   string     `json:"payment_intent_id"`
	OrderID           *string    `json:"order_id,omitempty"`
	Status            string     `json:"status"`
	AmountCents       int64      `json:"amount_cents"`
	Currency          string     `json:"currency"`
	Reason            string     `json:"reason,omitempty"`
	FundsWithdrawnAt  *time.Time `json:"funds_withdrawn_at,omitempty"`
	FundsReinstatedAt *time.Time `json:"funds_reinstated_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type OrderEnvelopeResponse struct {
	Order *OrderResponse `json:"order"`
}

type OrderDetailsResponse struct {
	Order    *OrderResponse           `json:"order"`
	Timeline []*TimelineEntryResponse `json:"timeline"`
	Audit    []*AuditRecordResponse   `json:"audit"`
}

type ListOrdersResponse struct {
	Orders []*OrderResponse `json:"orders"`
}

type DisputeEnvelopeResponse struct {
	Dispute *DisputeResponse `json:"dispute"`
}
