package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"
)

func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	signed := fmt.Sprintf("%d.%s", ts, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signed))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyStripeSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	header := signPayload(payload, secret)

	if !verifyStripeSignature(payload, header, secret, 300) {
		t.Fatal("expected signature to validate")
	}
	if verifyStripeSignature(payload, header, "wrong-secret", 300) {
		t.Fatal("expected signature with wrong secret to fail")
	}
	if verifyStripeSignature([]byte(`{"id":"evt_2"}`), header, secret, 300) {
		t.Fatal("expected signature over different payload to fail")
	}
}

func TestVerifyStripeSignatureRejectsStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	ts := time.Now().Add(-time.Hour).Unix()
	signed := fmt.Sprintf("%d.%s", ts, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signed))
	header := fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	if verifyStripeSignature(payload, header, secret, 300) {
		t.Fatal("expected stale timestamp to fail")
	}
}

func TestMapEventKind(t *testing.T) {
	tests := []struct {
		eventType string
		want      EventKind
	}{
		{"checkout.session.completed", EventCheckoutCompleted},
		{"checkout.session.async_payment_succeeded", EventAsyncPaymentSucceeded},
		{"checkout.session.async_payment_failed", EventAsyncPaymentFailed},
		{"checkout.session.expired", EventCheckoutExpired},
		{"payment_intent.succeeded", EventPaymentIntentSucceeded},
		{"payment_intent.canceled", EventPaymentIntentCanceled},
		{"charge.dispute.created", EventDisputeCreated},
		{"charge.dispute.updated", EventDisputeUpdated},
		{"charge.dispute.closed", EventDisputeClosed},
		{"charge.dispute.funds_withdrawn", EventDisputeFundsWithdrawn},
		{"charge.dispute.funds_reinstated", EventDisputeFundsReinstated},
		{"account.updated", EventAccountUpdated},
		{"invoice.paid", EventUnknown},
	}
	for _, tt := range tests {
		if got := mapEventKind(tt.eventType); got != tt.want {
			t.Fatalf("mapEventKind(%q) = %q, want %q", tt.eventType, got, tt.want)
		}
	}
}

func TestVerifyAndParseCheckoutSessionEvent(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"payment_intent": "pi_1",
			"payment_status": "paid",
			"amount_total": 10000,
			"currency": "usd",
			"payment_method_types": ["card"],
			"customer_details": {"address": {"line1": "1 Main St", "city": "Oakland", "state": "ca", "country": "us"}},
			"metadata": {"listing_id": "listing-1", "buyer_id": "buyer-1", "platform_fee_cents": "800"}
		}}
	}`)
	p := NewStripeProvider(StripeConfig{WebhookSecret: secret})

	event, err := p.VerifyAndParseEvent(context.Background(), payload, signPayload(payload, secret))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.ID != "evt_1" || event.Kind != EventCheckoutCompleted {
		t.Fatalf("unexpected event envelope: %+v", event)
	}
	session := event.Session
	if session == nil {
		t.Fatal("expected checkout session")
	}
	if session.ID != "cs_1" || session.PaymentIntentID != "pi_1" {
		t.Fatalf("unexpected session ids: %+v", session)
	}
	if session.PaymentStatus != "paid" || session.AmountTotalCents != 10000 || session.Currency != "USD" {
		t.Fatalf("unexpected session payment fields: %+v", session)
	}
	if session.PaymentMethod != "card" {
		t.Fatalf("unexpected payment method: %s", session.PaymentMethod)
	}
	if session.BillingAddress == nil || session.BillingAddress.State != "CA" || session.BillingAddress.Country != "US" {
		t.Fatalf("expected normalized billing address, got %+v", session.BillingAddress)
	}
	if session.Metadata["listing_id"] != "listing-1" {
		t.Fatalf("unexpected metadata: %+v", session.Metadata)
	}
}

func TestVerifyAndParseExpandedPaymentIntent(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{
		"id": "evt_2",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_2",
			"status": "succeeded",
			"amount": 250000,
			"currency": "usd",
			"latest_charge": {"billing_details": {"address": {"state": "CA", "country": "US"}}},
			"metadata": {"wire_order_id": "order-1"}
		}}
	}`)
	p := NewStripeProvider(StripeConfig{WebhookSecret: secret})

	event, err := p.VerifyAndParseEvent(context.Background(), payload, signPayload(payload, secret))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	intent := event.Intent
	if intent == nil || intent.ID != "pi_2" || intent.AmountCents != 250000 {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	if intent.BillingAddress == nil || intent.BillingAddress.State != "CA" {
		t.Fatalf("expected billing address from latest charge, got %+v", intent.BillingAddress)
	}
	if intent.Metadata["wire_order_id"] != "order-1" {
		t.Fatalf("unexpected metadata: %+v", intent.Metadata)
	}
}

func TestVerifyAndParseDisputeRequiresIDs(t *testing.T) {
	secret := "whsec_test"
	p := NewStripeProvider(StripeConfig{WebhookSecret: secret})

	payload := []byte(`{
		"id": "evt_3",
		"type": "charge.dispute.created",
		"data": {"object": {"id": "dp_1", "payment_intent": {"id": "pi_3"}, "status": "needs_response", "amount": 10000, "currency": "usd"}}
	}`)
	event, err := p.VerifyAndParseEvent(context.Background(), payload, signPayload(payload, secret))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Dispute == nil || event.Dispute.ID != "dp_1" || event.Dispute.PaymentIntentID != "pi_3" {
		t.Fatalf("unexpected dispute: %+v", event.Dispute)
	}

	missing := []byte(`{
		"id": "evt_4",
		"type": "charge.dispute.created",
		"data": {"object": {"id": "dp_2", "status": "needs_response"}}
	}`)
	if _, err := p.VerifyAndParseEvent(context.Background(), missing, signPayload(missing, secret)); err == nil {
		t.Fatal("expected error for dispute without payment intent")
	}
}

func TestParseStringish(t *testing.T) {
	if got := parseStringish("pi_1 "); got != "pi_1" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := parseStringish(map[string]interface{}{"id": "pi_2"}); got != "pi_2" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := parseStringish(nil); got != "" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestRegistry(t *testing.T) {
	p := NewStripeProvider(StripeConfig{WebhookSecret: "whsec_test"})
	reg := NewRegistry(p)

	if _, err := reg.Get("STRIPE"); err != nil {
		t.Fatalf("expected case-insensitive lookup, got %v", err)
	}
	if _, err := reg.Get("paypal"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
