package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var ErrMissingCorrelationID = errors.New("event payload is missing its correlating id")

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

type StripeProvider struct {
	cfg    StripeConfig
	client *http.Client
}

func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tolerance := cfg.SignatureToleranceSeconds
	if tolerance <= 0 {
		tolerance = 300
	}
	cfg.SignatureToleranceSeconds = tolerance

	return &StripeProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *StripeProvider) Name() string {
	return "stripe"
}

func (p *StripeProvider) VerifyAndParseEvent(_ context.Context, payload []byte, signature string) (*Event, error) {
	if strings.TrimSpace(p.cfg.WebhookSecret) == "" {
		return nil, errors.New("stripe webhook secret is not configured")
	}
	if !verifyStripeSignature(payload, signature, p.cfg.WebhookSecret, p.cfg.SignatureToleranceSeconds) {
		return nil, errors.New("invalid stripe signature")
	}

	var envelope struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, err
	}
	eventID := strings.TrimSpace(envelope.ID)
	if eventID == "" {
		return nil, errors.New("event id is missing")
	}

	event := &Event{ID: eventID, Kind: mapEventKind(envelope.Type)}

	switch event.Kind {
	case EventCheckoutCompleted, EventAsyncPaymentSucceeded, EventAsyncPaymentFailed, EventCheckoutExpired:
		session, err := parseCheckoutSession(envelope.Data.Object)
		if err != nil {
			return nil, err
		}
		event.Session = session
	case EventPaymentIntentSucceeded, EventPaymentIntentCanceled:
		intent, err := parsePaymentIntent(envelope.Data.Object)
		if err != nil {
			return nil, err
		}
		event.Intent = intent
	case EventDisputeCreated, EventDisputeUpdated, EventDisputeClosed,
		EventDisputeFundsWithdrawn, EventDisputeFundsReinstated:
		dispute, err := parseDispute(envelope.Data.Object)
		if err != nil {
			return nil, err
		}
		event.Dispute = dispute
	}

	return event, nil
}

func (p *StripeProvider) RefundPayment(ctx context.Context, paymentIntentID, reason, idempotencyKey string) error {
	if strings.TrimSpace(paymentIntentID) == "" {
		return errors.New("payment intent id is required for refund")
	}

	values := url.Values{}
	values.Set("payment_intent", paymentIntentID)
	if strings.TrimSpace(reason) != "" {
		values.Set("metadata[reason]", reason)
	}

	_, err := p.postForm(ctx, "/v1/refunds", values, idempotencyKey)
	return err
}

func (p *StripeProvider) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error) {
	if strings.TrimSpace(paymentIntentID) == "" {
		return nil, ErrMissingCorrelationID
	}

	endpoint := "https://api.stripe.com/v1/payment_intents/" + url.PathEscape(paymentIntentID) + "?expand[]=latest_charge"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("stripe get payment intent failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	return parsePaymentIntent(body)
}

func (p *StripeProvider) postForm(ctx context.Context, path string, values url.Values, idempotencyKey string) ([]byte, error) {
	if strings.TrimSpace(p.cfg.SecretKey) == "" {
		return nil, errors.New("stripe secret key is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.stripe.com"+path, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if strings.TrimSpace(idempotencyKey) != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("stripe request failed: path=%s status=%d body=%s", path, resp.StatusCode, string(body))
	}

	return body, nil
}

func mapEventKind(eventType string) EventKind {
	switch strings.TrimSpace(eventType) {
	case "checkout.session.completed":
		return EventCheckoutCompleted
	case "checkout.session.async_payment_succeeded":
		return EventAsyncPaymentSucceeded
	case "checkout.session.async_payment_failed":
		return EventAsyncPaymentFailed
	case "checkout.session.expired":
		return EventCheckoutExpired
	case "payment_intent.succeeded":
		return EventPaymentIntentSucceeded
	case "payment_intent.canceled":
		return EventPaymentIntentCanceled
	case "charge.dispute.created":
		return EventDisputeCreated
	case "charge.dispute.updated":
		return EventDisputeUpdated
	case "charge.dispute.closed":
		return EventDisputeClosed
	case "charge.dispute.funds_withdrawn":
		return EventDisputeFundsWithdrawn
	case "charge.dispute.funds_reinstated":
		return EventDisputeFundsReinstated
	case "account.updated":
		return EventAccountUpdated
	default:
		return EventUnknown
	}
}

type stripeAddress struct {
	Line1      string `json:"line1"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (a *stripeAddress) toAddress() *Address {
	if a == nil {
		return nil
	}
	addr := &Address{
		Line1:      strings.TrimSpace(a.Line1),
		City:       strings.TrimSpace(a.City),
		State:      strings.ToUpper(strings.TrimSpace(a.State)),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(a.Country)),
	}
	if addr.Line1 == "" && addr.City == "" && addr.State == "" && addr.PostalCode == "" && addr.Country == "" {
		return nil
	}
	return addr
}

func parseCheckoutSession(payload json.RawMessage) (*CheckoutSession, error) {
	var object struct {
		ID            string      `json:"id"`
		PaymentIntent interface{} `json:"payment_intent"`
		PaymentStatus string      `json:"payment_status"`
		AmountTotal   int64       `json:"amount_total"`
		Currency      string      `json:"currency"`

		PaymentMethodTypes []string `json:"payment_method_types"`

		CustomerDetails struct {
			Address *stripeAddress `json:"address"`
		} `json:"customer_details"`
		CollectedInformation struct {
			ShippingDetails struct {
				Address *stripeAddress `json:"address"`
			} `json:"shipping_details"`
		} `json:"collected_information"`

		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(payload, &object); err != nil {
		return nil, err
	}

	sessionID := strings.TrimSpace(object.ID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: checkout session id", ErrMissingCorrelationID)
	}

	session := &CheckoutSession{
		ID:               sessionID,
		PaymentIntentID:  parseStringish(object.PaymentIntent),
		PaymentStatus:    strings.TrimSpace(object.PaymentStatus),
		AmountTotalCents: object.AmountTotal,
		Currency:         strings.ToUpper(strings.TrimSpace(object.Currency)),
		BillingAddress:   object.CustomerDetails.Address.toAddress(),
		ShippingAddress:  object.CollectedInformation.ShippingDetails.Address.toAddress(),
		Metadata:         object.Metadata,
	}
	if len(object.PaymentMethodTypes) > 0 {
		session.PaymentMethod = strings.TrimSpace(object.PaymentMethodTypes[0])
	}
	if session.Metadata == nil {
		session.Metadata = map[string]string{}
	}

	return session, nil
}

func parsePaymentIntent(payload json.RawMessage) (*PaymentIntent, error) {
	var object struct {
		ID                 string   `json:"id"`
		Status             string   `json:"status"`
		Amount             int64    `json:"amount"`
		Currency           string   `json:"currency"`
		PaymentMethodTypes []string `json:"payment_method_types"`

		Shipping struct {
			Address *stripeAddress `json:"address"`
		} `json:"shipping"`
		LatestCharge struct {
			BillingDetails struct {
				Address *stripeAddress `json:"address"`
			} `json:"billing_details"`
		} `json:"latest_charge"`

		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(payload, &object); err != nil {
		return nil, err
	}

	intentID := strings.TrimSpace(object.ID)
	if intentID == "" {
		return nil, fmt.Errorf("%w: payment intent id", ErrMissingCorrelationID)
	}

	intent := &PaymentIntent{
		ID:                 intentID,
		Status:             strings.TrimSpace(object.Status),
		AmountCents:        object.Amount,
		Currency:           strings.ToUpper(strings.TrimSpace(object.Currency)),
		PaymentMethodTypes: object.PaymentMethodTypes,
		ShippingAddress:    object.Shipping.Address.toAddress(),
		BillingAddress:     object.LatestCharge.BillingDetails.Address.toAddress(),
		Metadata:           object.Metadata,
	}
	if intent.Metadata == nil {
		intent.Metadata = map[string]string{}
	}

	return intent, nil
}

func parseDispute(payload json.RawMessage) (*Dispute, error) {
	var object struct {
		ID            string      `json:"id"`
		PaymentIntent interface{} `json:"payment_intent"`
		Status        string      `json:"status"`
		Reason        string      `json:"reason"`
		Amount        int64       `json:"amount"`
		Currency      string      `json:"currency"`
	}
	if err := json.Unmarshal(payload, &object); err != nil {
		return nil, err
	}

	disputeID := strings.TrimSpace(object.ID)
	if disputeID == "" {
		return nil, fmt.Errorf("%w: dispute id", ErrMissingCorrelationID)
	}
	intentID := parseStringish(object.PaymentIntent)
	if intentID == "" {
		return nil, fmt.Errorf("%w: dispute payment intent id", ErrMissingCorrelationID)
	}

	return &Dispute{
		ID:              disputeID,
		PaymentIntentID: intentID,
		Status:          strings.TrimSpace(object.Status),
		Reason:          strings.TrimSpace(object.Reason),
		AmountCents:     object.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(object.Currency)),
	}, nil
}

func verifyStripeSignature(payload []byte, signatureHeader string, webhookSecret string, toleranceSeconds int64) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" || strings.TrimSpace(webhookSecret) == "" {
		return false
	}

	parts := strings.Split(signatureHeader, ",")
	var ts string
	v1 := make([]string, 0, 1)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "t=") {
			ts = strings.TrimSpace(strings.TrimPrefix(part, "t="))
		}
		if strings.HasPrefix(part, "v1=") {
			v1 = append(v1, strings.TrimSpace(strings.TrimPrefix(part, "v1=")))
		}
	}
	if ts == "" || len(v1) == 0 {
		return false
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	now := time.Now().Unix()
	if now-tsUnix > toleranceSeconds || tsUnix-now > toleranceSeconds {
		return false
	}

	signedPayload := []byte(ts + "." + string(payload))
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = mac.Write(signedPayload)
	expected := mac.Sum(nil)

	for _, sig := range v1 {
		candidate, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(candidate, expected) {
			return true
		}
	}

	return false
}

func parseStringish(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		if raw, ok := t["id"]; ok {
			if s, ok := raw.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
