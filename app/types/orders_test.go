package types

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newEchoContext(method, target, body string, headers map[string]string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestNewHandleProviderWebhookRequestFromContext(t *testing.T) {
	ctx := newEchoContext("POST", "/webhooks/providers/stripe", `{"id":"evt_1"}`, map[string]string{
		"Stripe-Signature": "t=1,v1=abc",
	})
	ctx.SetParamNames("provider")
	ctx.SetParamValues("Stripe")

	req, err := NewHandleProviderWebhookRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Provider != "stripe" {
		t.Fatalf("expected lowercased provider, got %q", req.Provider)
	}
	if req.Signature != "t=1,v1=abc" {
		t.Fatalf("unexpected signature: %q", req.Signature)
	}
	if string(req.Payload) != `{"id":"evt_1"}` {
		t.Fatalf("unexpected payload: %s", req.Payload)
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestWebhookRequestFallsBackToGenericSignatureHeader(t *testing.T) {
	ctx := newEchoContext("POST", "/webhooks/providers/stripe", `{}`, map[string]string{
		"X-Provider-Signature": "sig-1",
	})
	ctx.SetParamNames("provider")
	ctx.SetParamValues("stripe")

	req, err := NewHandleProviderWebhookRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Signature != "sig-1" {
		t.Fatalf("unexpected signature: %q", req.Signature)
	}
}

func TestWebhookRequestValidate(t *testing.T) {
	req := &HandleProviderWebhookRequest{}
	if err := req.Validate(); err == nil {
		t.Fatal("expected error for empty request")
	}
	req.Provider = "stripe"
	if err := req.Validate(); err == nil {
		t.Fatal("expected error without signature")
	}
	req.Signature = "sig"
	if err := req.Validate(); err == nil {
		t.Fatal("expected error without payload")
	}
	req.Payload = []byte("{}")
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestNewListOrdersRequestFromContext(t *testing.T) {
	ctx := newEchoContext("GET", "/admin/orders?status=paid_held&buyer_id=buyer-1&admin_hold=true&limit=25&offset=5", "", nil)

	req, err := NewListOrdersRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != "paid_held" || req.BuyerID != "buyer-1" {
		t.Fatalf("unexpected filters: %+v", req)
	}
	if req.AdminHold == nil || !*req.AdminHold {
		t.Fatal("expected admin_hold filter")
	}
	if req.NeedsReview != nil {
		t.Fatal("expected needs_review to be unset")
	}
	if req.Limit != 25 || req.Offset != 5 {
		t.Fatalf("unexpected paging: limit=%d offset=%d", req.Limit, req.Offset)
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestListOrdersRequestValidate(t *testing.T) {
	req := &ListOrdersRequest{Limit: 0}
	if err := req.Validate(); err == nil {
		t.Fatal("expected error for zero limit")
	}
	req = &ListOrdersRequest{Limit: 501}
	if err := req.Validate(); err == nil {
		t.Fatal("expected error for oversize limit")
	}
	req = &ListOrdersRequest{Limit: 100, Offset: -1}
	if err := req.Validate(); err == nil {
		t.Fatal("expected error for negative offset")
	}
}

func TestOrderActionRequestRequiresAdminIdentity(t *testing.T) {
	ctx := newEchoContext("POST", "/admin/orders/order-1/release-hold", "", nil)
	ctx.SetParamNames("id")
	ctx.SetParamValues("order-1")

	req, err := NewOrderActionRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := req.Validate(); err == nil {
		t.Fatal("expected error without admin identity")
	}

	ctx.Set("admin_id", "admin-1")
	req, _ = NewOrderActionRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
	if req.AdminID != "admin-1" {
		t.Fatalf("unexpected admin id: %q", req.AdminID)
	}
}
