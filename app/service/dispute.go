package service

import (
	"context"
	"time"

	"github.com/vibast-solutions/ms-go-orders/app/entity"
	"github.com/vibast-solutions/ms-go-orders/app/provider"
	"github.com/vibast-solutions/ms-go-orders/app/repository"
)

// Dispute handlers upsert by the provider's dispute ID, so created/updated
// events apply the same way regardless of arrival order. The chargeback hold
// they place on the order is sticky: even a dispute resolved in the seller's
// favor leaves the hold for an operator to lift.

func (s *OrderService) applyDisputeCreated(ctx context.Context, tx repository.TxRepos, incoming *provider.Dispute, now time.Time) error {
	return s.upsertDispute(ctx, tx, incoming, now)
}

func (s *OrderService) applyDisputeUpdated(ctx context.Context, tx repository.TxRepos, incoming *provider.Dispute, now time.Time) error {
	return s.upsertDispute(ctx, tx, incoming, now)
}

// applyDisputeClosed records the final verdict on the dispute itself. The
// order keeps whatever hold the open dispute placed on it.
func (s *OrderService) applyDisputeClosed(ctx context.Context, tx repository.TxRepos, incoming *provider.Dispute, now time.Time) error {
	return s.upsertDispute(ctx, tx, incoming, now)
}

func (s *OrderService) applyDisputeFunds(ctx context.Context, tx repository.TxRepos, incoming *provider.Dispute, withdrawn bool, now time.Time) error {
	dispute, created, err := s.loadOrStartDispute(ctx, tx, incoming, now)
	if err != nil {
		return err
	}

	if withdrawn {
		if dispute.FundsWithdrawnAt == nil {
			dispute.FundsWithdrawnAt = &now
		}
	} else {
		if dispute.FundsReinstatedAt == nil {
			dispute.FundsReinstatedAt = &now
		}
	}
	dispute.UpdatedAt = now

	if created {
		if err := tx.Disputes().Create(ctx, dispute); err != nil {
			return err
		}
		return s.holdOrderForDispute(ctx, tx, dispute, now)
	}
	return tx.Disputes().Update(ctx, dispute)
}

func (s *OrderService) upsertDispute(ctx context.Context, tx repository.TxRepos, incoming *provider.Dispute, now time.Time) error {
	dispute, created, err := s.loadOrStartDispute(ctx, tx, incoming, now)
	if err != nil {
		return err
	}

	dispute.Status = normalizeDisputeStatus(incoming.Status)
	if incoming.AmountCents > 0 {
		dispute.AmountCents = incoming.AmountCents
	}
	if incoming.Currency != "" {
		dispute.Currency = incoming.Currency
	}
	if incoming.Reason != "" {
		dispute.Reason = incoming.Reason
	}
	dispute.UpdatedAt = now

	if created {
		if err := tx.Disputes().Create(ctx, dispute); err != nil {
			return err
		}
	} else if err := tx.Disputes().Update(ctx, dispute); err != nil {
		return err
	}

	return s.holdOrderForDispute(ctx, tx, dispute, now)
}

// loadOrStartDispute fetches the tracked dispute or builds a fresh record
// linked to the order behind the payment intent, when one exists.
func (s *OrderService) loadOrStartDispute(ctx context.Context, tx repository.TxRepos, incoming *provider.Dispute, now time.Time) (*entity.Dispute, bool, error) {
	dispute, err := tx.Disputes().FindByID(ctx, incoming.ID)
	if err != nil {
		return nil, false, err
	}
	if dispute != nil {
		return dispute, false, nil
	}

	dispute = &entity.Dispute{
		ID:              incoming.ID,
		PaymentIntentID: incoming.PaymentIntentID,
		Status:          normalizeDisputeStatus(incoming.Status),
		AmountCents:     incoming.AmountCents,
		Currency:        incoming.Currency,
		Reason:          incoming.Reason,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	order, err := tx.Orders().FindByPaymentIntentID(ctx, incoming.PaymentIntentID)
	if err != nil {
		return nil, false, err
	}
	if order != nil {
		orderID := order.ID
		dispute.OrderID = &orderID
	} else {
		s.log.WithField("dispute_id", incoming.ID).
			WithField("payment_intent_id", incoming.PaymentIntentID).
			Warn("Dispute references a payment intent with no order on record")
	}
	return dispute, true, nil
}

// holdOrderForDispute mirrors the dispute state onto the order. It only ever
// tightens: the admin hold and chargeback payout hold are applied when the
// dispute surfaces and are never released here, whatever the verdict.
func (s *OrderService) holdOrderForDispute(ctx context.Context, tx repository.TxRepos, dispute *entity.Dispute, now time.Time) error {
	if dispute.OrderID == nil {
		return nil
	}
	order, err := tx.Orders().FindByID(ctx, *dispute.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		return nil
	}

	newHold := !order.AdminHold
	oldChargeback := order.ChargebackStatus

	order.AdminHold = true
	order.PayoutHoldReason = entity.PayoutHoldChargeback
	order.ChargebackStatus = entity.ChargebackStatus(dispute.Status)
	order.UpdatedAt = now

	if err := tx.Orders().Update(ctx, order); err != nil {
		return err
	}

	if oldChargeback == order.ChargebackStatus && !newHold {
		return nil
	}

	if err := s.enqueueTimeline(ctx, tx, order.ID, "dispute_"+string(order.ChargebackStatus), dispute.ID, "Payment dispute "+string(order.ChargebackStatus), now); err != nil {
		return err
	}
	if err := s.enqueueAudit(ctx, tx, order.ID, "provider", "order.chargeback_"+string(order.ChargebackStatus), nil, nil, map[string]string{
		"dispute_id":        dispute.ID,
		"payment_intent_id": dispute.PaymentIntentID,
	}, now); err != nil {
		return err
	}
	if oldChargeback == entity.ChargebackNone {
		return s.enqueueNotification(ctx, tx, order.ID, order.SellerID, "Order.DisputeOpened", map[string]string{"dispute_id": dispute.ID}, now)
	}
	return nil
}

func normalizeDisputeStatus(raw string) entity.DisputeStatus {
	switch raw {
	case "won":
		return entity.DisputeStatusWon
	case "lost", "charge_refunded":
		return entity.DisputeStatusLost
	default:
		return entity.DisputeStatusOpen
	}
}
