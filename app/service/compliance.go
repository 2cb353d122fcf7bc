package service

import (
	"context"
	"strings"

	"github.com/vibast-solutions/ms-go-orders/app/provider"
)

type Decision string

const (
	DecisionPass  Decision = "pass"
	DecisionBlock Decision = "block"
	DecisionDefer Decision = "defer"
)

type ComplianceRules struct {
	RestrictedCategories []string
	PermitCategories     []string
	AllowedRegion        string
}

func (r ComplianceRules) Restricted(category string) bool {
	category = strings.ToLower(strings.TrimSpace(category))
	for _, c := range r.RestrictedCategories {
		if c == category {
			return true
		}
	}
	return false
}

func (r ComplianceRules) PermitRequired(category string) bool {
	category = strings.ToLower(strings.TrimSpace(category))
	for _, c := range r.PermitCategories {
		if c == category {
			return true
		}
	}
	return false
}

// EvaluateCompliance decides whether a restricted-category sale may proceed.
//
// Asynchronous rails defer the decision: funds have not settled yet, so an
// immediate refund is neither possible nor auditable, and the check reruns
// once the async-success event confirms the money. On instant rails the gate
// fails closed: no resolvable address, or an address outside the allowed
// region, blocks the sale.
func EvaluateCompliance(rules ComplianceRules, category string, addr *provider.Address, asyncRail bool) Decision {
	if !rules.Restricted(category) {
		return DecisionPass
	}
	if asyncRail {
		return DecisionDefer
	}
	if addr == nil || strings.TrimSpace(addr.State) == "" {
		return DecisionBlock
	}
	if !strings.EqualFold(strings.TrimSpace(addr.State), rules.AllowedRegion) {
		return DecisionBlock
	}
	return DecisionPass
}

// resolveBuyerAddress walks the resolution chain: session billing address,
// session shipping address, then the expanded payment intent. A lookup
// failure resolves to nil, which the gate treats as BLOCK.
func (s *OrderService) resolveBuyerAddress(ctx context.Context, client provider.PaymentProvider, session *provider.CheckoutSession) *provider.Address {
	if session.BillingAddress != nil {
		return session.BillingAddress
	}
	if session.ShippingAddress != nil {
		return session.ShippingAddress
	}
	if strings.TrimSpace(session.PaymentIntentID) == "" {
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.complianceCfg.IntentLookupTimeout)
	defer cancel()

	intent, err := client.GetPaymentIntent(lookupCtx, session.PaymentIntentID)
	if err != nil {
		s.log.WithError(err).WithField("payment_intent_id", session.PaymentIntentID).
			Warn("Payment intent lookup for address resolution failed")
		return nil
	}
	return addressFromIntent(intent)
}

func addressFromIntent(intent *provider.PaymentIntent) *provider.Address {
	if intent == nil {
		return nil
	}
	if intent.ShippingAddress != nil {
		return intent.ShippingAddress
	}
	return intent.BillingAddress
}
