package service

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-orders/app/entity"
	"github.com/vibast-solutions/ms-go-orders/app/provider"
	"github.com/vibast-solutions/ms-go-orders/app/repository"
)

// Transition functions implement the order state machine. Every one of them
// re-reads the current persisted order under a row lock and guards on it, so
// redelivered or reordered events converge instead of duplicating effects.
// The "already funds confirmed" guard is the commutativity device: whichever
// of two racing confirmation events lands second becomes a no-op.

func (s *OrderService) applyCheckoutCompleted(ctx context.Context, tx repository.TxRepos, client provider.PaymentProvider, session *provider.CheckoutSession, now time.Time) error {
	order, err := tx.Orders().FindByCheckoutSessionID(ctx, session.ID)
	if err != nil {
		return err
	}
	if order != nil && (order.Status.FundsConfirmed() || order.Status.Terminal()) {
		return nil
	}

	listingID := strings.TrimSpace(session.Metadata["listing_id"])
	buyerID := strings.TrimSpace(session.Metadata["buyer_id"])
	if listingID == "" || buyerID == "" {
		s.log.WithField("checkout_session_id", session.ID).
			Info("Checkout session without marketplace metadata, nothing to do")
		return nil
	}

	listing, err := tx.Listings().FindByID(ctx, listingID)
	if err != nil {
		return err
	}
	if listing == nil {
		s.log.WithField("listing_id", listingID).Warn("Checkout session references unknown listing")
		return nil
	}

	created := false
	if order == nil {
		order = s.newOrderFromSession(session, listing, buyerID, now)
		created = true
	}
	mergeSessionIntoOrder(order, session)

	fundsConfirmed := session.PaymentStatus == "paid"
	asyncRail := !fundsConfirmed

	var addr *provider.Address
	if s.rules.Restricted(listing.Category) && !asyncRail {
		addr = s.resolveBuyerAddress(ctx, client, session)
		stampBuyerRegion(order, addr)
	}
	decision := EvaluateCompliance(s.rules, listing.Category, addr, asyncRail)

	switch decision {
	case DecisionBlock:
		return s.blockAndRefund(ctx, tx, client, order, session.ID, created, now)
	case DecisionDefer:
		s.log.WithField("order_id", order.ID).
			Info("Compliance decision deferred until funds confirmation")
	}

	if fundsConfirmed {
		return s.confirmFunds(ctx, tx, order, listing, session.ID, created, now)
	}

	order.Status = awaitingStatusFor(order.PaymentMethod)
	order.UpdatedAt = now
	if err := s.persistOrder(ctx, tx, order, created); err != nil {
		return err
	}
	if err := tx.Listings().Reserve(ctx, listing.ID, order.ID, order.BuyerID, now.Add(s.ordersCfg.ReservationWindow)); err != nil {
		return err
	}

	if err := s.enqueueTimeline(ctx, tx, order.ID, "checkout_completed", session.ID, "Checkout session completed, awaiting funds", now); err != nil {
		return err
	}
	if err := s.enqueueAudit(ctx, tx, order.ID, "provider", "order.awaiting_funds", nil, &order.Status, correlating(session.ID, order.PaymentIntentID), now); err != nil {
		return err
	}
	return s.enqueueNotification(ctx, tx, order.ID, order.BuyerID, "Order.AwaitingPayment", nil, now)
}

func (s *OrderService) applyAsyncPaymentSucceeded(ctx context.Context, tx repository.TxRepos, client provider.PaymentProvider, session *provider.CheckoutSession, now time.Time) error {
	order, err := tx.Orders().FindByCheckoutSessionID(ctx, session.ID)
	if err != nil {
		return err
	}
	if order == nil {
		// The checkout-completed event was never applied. Backfill through
		// that path with the funds state this event asserts.
		backfill := *session
		backfill.PaymentStatus = "paid"
		return s.applyCheckoutCompleted(ctx, tx, client, &backfill, now)
	}
	if order.Status.FundsConfirmed() || order.Status.Terminal() {
		return nil
	}
	mergeSessionIntoOrder(order, session)

	listing, err := tx.Listings().FindByID(ctx, order.ListingID)
	if err != nil {
		return err
	}

	// Deferred compliance evaluation reruns now that funds are settled.
	if s.rules.Restricted(order.ListingCategory) {
		addr := s.resolveBuyerAddress(ctx, client, session)
		stampBuyerRegion(order, addr)
		if EvaluateCompliance(s.rules, order.ListingCategory, addr, false) == DecisionBlock {
			if listing != nil {
				if err := tx.Listings().Release(ctx, listing.ID, order.ID); err != nil {
					return err
				}
			}
			return s.blockAndRefund(ctx, tx, client, order, session.ID, false, now)
		}
	}

	return s.confirmFunds(ctx, tx, order, listing, session.ID, false, now)
}

func (s *OrderService) applyCheckoutAbandoned(ctx context.Context, tx repository.TxRepos, session *provider.CheckoutSession, kind string, now time.Time) error {
	order, err := tx.Orders().FindByCheckoutSessionID(ctx, session.ID)
	if err != nil {
		return err
	}
	if order == nil {
		return nil
	}
	if order.Status.FundsConfirmed() || order.Status.Terminal() {
		return nil
	}

	return s.cancelOrder(ctx, tx, order, kind, session.ID, now)
}

func (s *OrderService) applyWireIntentSucceeded(ctx context.Context, tx repository.TxRepos, client provider.PaymentProvider, intent *provider.PaymentIntent, now time.Time) error {
	order, err := s.findWireOrder(ctx, tx, intent)
	if err != nil || order == nil {
		return err
	}
	if order.Status.FundsConfirmed() || order.Status.Terminal() {
		return nil
	}
	if order.PaymentIntentID == nil {
		intentID := intent.ID
		order.PaymentIntentID = &intentID
	}

	listing, err := tx.Listings().FindByID(ctx, order.ListingID)
	if err != nil {
		return err
	}

	if s.rules.Restricted(order.ListingCategory) {
		addr := addressFromIntent(intent)
		stampBuyerRegion(order, addr)
		if EvaluateCompliance(s.rules, order.ListingCategory, addr, false) == DecisionBlock {
			if listing != nil {
				if err := tx.Listings().Release(ctx, listing.ID, order.ID); err != nil {
					return err
				}
			}
			return s.blockAndRefund(ctx, tx, client, order, order.CheckoutSessionID, false, now)
		}
	}

	return s.confirmFunds(ctx, tx, order, listing, intent.ID, false, now)
}

func (s *OrderService) applyWireIntentCanceled(ctx context.Context, tx repository.TxRepos, intent *provider.PaymentIntent, now time.Time) error {
	order, err := s.findWireOrder(ctx, tx, intent)
	if err != nil || order == nil {
		return err
	}
	if order.Status.FundsConfirmed() || order.Status.Terminal() {
		return nil
	}

	return s.cancelOrder(ctx, tx, order, "wire_canceled", intent.ID, now)
}

// findWireOrder honors the wire guard: only intents this system created and
// tagged are eligible. Lookup goes by the order-ID tag first, then by the
// intent ID itself.
func (s *OrderService) findWireOrder(ctx context.Context, tx repository.TxRepos, intent *provider.PaymentIntent) (*entity.Order, error) {
	orderID := strings.TrimSpace(intent.Metadata["wire_order_id"])
	if orderID == "" {
		return nil, nil
	}

	order, err := tx.Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		order, err = tx.Orders().FindByPaymentIntentID(ctx, intent.ID)
		if err != nil {
			return nil, err
		}
	}
	if order == nil {
		s.log.WithField("payment_intent_id", intent.ID).Info("Wire intent without a matching order, nothing to do")
	}
	return order, nil
}

// confirmFunds is the shared funds-settled transition: escrow hold begins,
// the listing is sold, and the protection window clock starts.
func (s *OrderService) confirmFunds(ctx context.Context, tx repository.TxRepos, order *entity.Order, listing *entity.Listing, correlatingID string, created bool, now time.Time) error {
	oldStatus := order.Status
	deadline := now.Add(s.ordersCfg.DisputeWindow)

	order.Status = entity.OrderStatusPaidHeld
	order.PaidAt = &now
	order.DisputeDeadlineAt = &deadline
	if order.PayoutHoldReason == entity.PayoutHoldNone {
		order.PayoutHoldReason = entity.PayoutHoldProtectionWindow
	}
	order.UpdatedAt = now

	if err := s.persistOrder(ctx, tx, order, created); err != nil {
		return err
	}

	if listing != nil {
		if err := tx.Listings().MarkSold(ctx, listing.ID, saleTypeFor(order, listing), order.AmountCents, now); err != nil {
			return err
		}
	} else {
		s.log.WithField("order_id", order.ID).Warn("Funds confirmed for order whose listing is missing")
	}

	intentID := correlatingID
	if order.PaymentIntentID != nil {
		intentID = *order.PaymentIntentID
	}
	if err := s.enqueueTimeline(ctx, tx, order.ID, "payment_authorized", intentID, "Payment authorized", now); err != nil {
		return err
	}
	if err := s.enqueueTimeline(ctx, tx, order.ID, "funds_held", order.ID, "Funds held in escrow", now); err != nil {
		return err
	}
	if err := s.enqueueAudit(ctx, tx, order.ID, "provider", "order.funds_confirmed", &oldStatus, &order.Status, correlating(correlatingID, order.PaymentIntentID), now); err != nil {
		return err
	}
	if err := s.enqueueNotification(ctx, tx, order.ID, order.BuyerID, "Order.Confirmed", nil, now); err != nil {
		return err
	}
	return s.enqueueNotification(ctx, tx, order.ID, order.SellerID, "Order.Sold", nil, now)
}

func (s *OrderService) cancelOrder(ctx context.Context, tx repository.TxRepos, order *entity.Order, kind, correlatingID string, now time.Time) error {
	oldStatus := order.Status
	order.Status = entity.OrderStatusCancelled
	order.UpdatedAt = now

	if err := s.persistOrder(ctx, tx, order, false); err != nil {
		return err
	}
	if err := tx.Listings().Release(ctx, order.ListingID, order.ID); err != nil {
		return err
	}

	if err := s.enqueueTimeline(ctx, tx, order.ID, kind, correlatingID, "Order cancelled", now); err != nil {
		return err
	}
	if err := s.enqueueAudit(ctx, tx, order.ID, "provider", "order.cancelled", &oldStatus, &order.Status, map[string]string{"cause": kind}, now); err != nil {
		return err
	}
	return s.enqueueNotification(ctx, tx, order.ID, order.BuyerID, "Order.Cancelled", map[string]string{"cause": kind}, now)
}

// blockAndRefund is the compliance BLOCK path on an instant rail. The refund
// is keyed deterministically off the checkout session so a redelivered event
// can never refund twice. A refund failure parks the order for an operator
// instead of completing the sale.
func (s *OrderService) blockAndRefund(ctx context.Context, tx repository.TxRepos, client provider.PaymentProvider, order *entity.Order, sessionID string, created bool, now time.Time) error {
	oldStatus := order.Status
	order.ComplianceViolation = true
	order.UpdatedAt = now

	var refundErr error
	if client == nil || order.PaymentIntentID == nil {
		refundErr = ErrInvalidRequest
	} else {
		refundErr = client.RefundPayment(ctx, *order.PaymentIntentID, "compliance_block", "compliance-refund-"+sessionID)
	}

	if refundErr != nil {
		s.log.WithError(refundErr).WithField("order_id", order.ID).
			Error("Automated compliance refund failed, parking order for manual review")
		order.NeedsManualReview = true
		order.AdminHold = true
		if err := s.persistOrder(ctx, tx, order, created); err != nil {
			return err
		}
		return s.enqueueAudit(ctx, tx, order.ID, "compliance-gate", "compliance.refund_failed", &oldStatus, &order.Status, correlating(sessionID, order.PaymentIntentID), now)
	}

	order.Status = entity.OrderStatusRefunded
	if err := s.persistOrder(ctx, tx, order, created); err != nil {
		return err
	}

	if err := s.enqueueTimeline(ctx, tx, order.ID, "compliance_refund", sessionID, "Payment refunded by compliance gate", now); err != nil {
		return err
	}
	if err := s.enqueueAudit(ctx, tx, order.ID, "compliance-gate", "compliance.blocked_refunded", &oldStatus, &order.Status, correlating(sessionID, order.PaymentIntentID), now); err != nil {
		return err
	}
	return s.enqueueNotification(ctx, tx, order.ID, order.BuyerID, "Order.Refunded", map[string]string{"cause": "compliance_block"}, now)
}

func (s *OrderService) persistOrder(ctx context.Context, tx repository.TxRepos, order *entity.Order, created bool) error {
	if created {
		return tx.Orders().Create(ctx, order)
	}
	return tx.Orders().Update(ctx, order)
}

func (s *OrderService) newOrderFromSession(session *provider.CheckoutSession, listing *entity.Listing, buyerID string, now time.Time) *entity.Order {
	amount := session.AmountTotalCents
	fee := s.platformFeeCents(session, amount)

	order := &entity.Order{
		ID:                   uuid.NewString(),
		CheckoutSessionID:    session.ID,
		ListingID:            listing.ID,
		ListingTitle:         listing.Title,
		ListingCategory:      listing.Category,
		SellerID:             listing.SellerID,
		BuyerID:              buyerID,
		PaymentMethod:        paymentMethodFromSession(session),
		Currency:             session.Currency,
		AmountCents:          amount,
		PlatformFeeCents:     fee,
		SellerAmountCents:    amount - fee,
		Status:               entity.OrderStatusPending,
		PayoutHoldReason:     entity.PayoutHoldNone,
		ChargebackStatus:     entity.ChargebackNone,
		TransferPermitStatus: entity.TransferPermitNone,
		Metadata:             map[string]string{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if offerID := strings.TrimSpace(session.Metadata["offer_id"]); offerID != "" {
		order.OfferID = &offerID
	}
	if s.rules.PermitRequired(listing.Category) {
		order.TransferPermitRequired = true
		order.TransferPermitStatus = entity.TransferPermitPending
	}

	return order
}

func mergeSessionIntoOrder(order *entity.Order, session *provider.CheckoutSession) {
	if order.PaymentIntentID == nil {
		if intentID := strings.TrimSpace(session.PaymentIntentID); intentID != "" {
			order.PaymentIntentID = &intentID
		}
	}
}

// platformFeeCents prefers the per-checkout snapshot carried in event
// metadata; the configured percentage is only a fallback.
func (s *OrderService) platformFeeCents(session *provider.CheckoutSession, amountCents int64) int64 {
	if raw := strings.TrimSpace(session.Metadata["platform_fee_cents"]); raw != "" {
		if fee, err := strconv.ParseInt(raw, 10, 64); err == nil && fee >= 0 && fee <= amountCents {
			return fee
		}
	}
	return int64(math.Round(float64(amountCents) * s.ordersCfg.PlatformFeePercent))
}

func paymentMethodFromSession(session *provider.CheckoutSession) entity.PaymentMethod {
	switch strings.ToLower(strings.TrimSpace(session.PaymentMethod)) {
	case "us_bank_account", "ach_debit":
		return entity.PaymentMethodACHDebit
	case "customer_balance", "bank_transfer":
		return entity.PaymentMethodBankTransfer
	case "wire":
		return entity.PaymentMethodWire
	default:
		return entity.PaymentMethodCard
	}
}

func awaitingStatusFor(method entity.PaymentMethod) entity.OrderStatus {
	if method == entity.PaymentMethodWire {
		return entity.OrderStatusAwaitingWire
	}
	return entity.OrderStatusAwaitingBankTransfer
}

func saleTypeFor(order *entity.Order, listing *entity.Listing) entity.SaleType {
	if order.OfferID != nil {
		return entity.SaleTypeOffer
	}
	switch listing.Type {
	case entity.ListingTypeAuction:
		return entity.SaleTypeAuction
	case entity.ListingTypeClassified:
		return entity.SaleTypeClassified
	default:
		return entity.SaleTypeBuyNow
	}
}

func stampBuyerRegion(order *entity.Order, addr *provider.Address) {
	if addr == nil || strings.TrimSpace(addr.State) == "" {
		return
	}
	region := strings.ToUpper(strings.TrimSpace(addr.State))
	order.BuyerRegion = &region
}

func correlating(sessionID string, intentID *string) map[string]string {
	metadata := map[string]string{"checkout_session_id": sessionID}
	if intentID != nil {
		metadata["payment_intent_id"] = *intentID
	}
	return metadata
}
