package service

import (
	"context"
	"time"

	"github.com/vibast-solutions/ms-go-orders/app/entity"
	"github.com/vibast-solutions/ms-go-orders/app/repository"
)

// OrderDetails bundles an order with its delivered timeline and audit trail
// for the admin surface.
type OrderDetails struct {
	Order    *entity.Order
	Timeline []*entity.TimelineEntry
	Audit    []*entity.AuditRecord
}

func (s *OrderService) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]*entity.Order, error) {
	if filter.Limit <= 0 || filter.Limit > defaultListLimit {
		filter.Limit = defaultListLimit
	}
	return s.orders.List(ctx, filter)
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*OrderDetails, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	timeline, err := s.timeline.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	audit, err := s.audit.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return &OrderDetails{Order: order, Timeline: timeline, Audit: audit}, nil
}

func (s *OrderService) GetDispute(ctx context.Context, disputeID string) (*entity.Dispute, error) {
	dispute, err := s.disputes.FindByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute == nil {
		return nil, ErrDisputeNotFound
	}
	return dispute, nil
}

// ReleaseHold lifts the administrative hold on an order. A hold backed by an
// open chargeback cannot be lifted until the dispute is resolved.
func (s *OrderService) ReleaseHold(ctx context.Context, orderID, adminID string) (*entity.Order, error) {
	var released *entity.Order
	err := s.tx.WithinTx(ctx, func(tx repository.TxRepos) error {
		order, err := tx.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotFound
		}
		if order.ChargebackStatus == entity.ChargebackOpen {
			return ErrChargebackOpen
		}

		now := time.Now().UTC()
		order.AdminHold = false
		order.NeedsManualReview = false
		if order.PayoutHoldReason == entity.PayoutHoldChargeback {
			// Resolved chargeback: fall back to the protection window when
			// it is still running, otherwise clear the hold entirely.
			if order.Status == entity.OrderStatusPaidHeld && order.DisputeDeadlineAt != nil && order.DisputeDeadlineAt.After(now) {
				order.PayoutHoldReason = entity.PayoutHoldProtectionWindow
			} else {
				order.PayoutHoldReason = entity.PayoutHoldNone
			}
		}
		order.UpdatedAt = now

		if err := tx.Orders().Update(ctx, order); err != nil {
			return err
		}
		if err := s.enqueueAudit(ctx, tx, order.ID, adminID, "admin.hold_released", nil, nil, nil, now); err != nil {
			return err
		}
		released = order
		return nil
	})
	return released, err
}

// CompleteOrder marks a payable order as completed, for example after the
// buyer confirms receipt. Only orders past escrow release qualify.
func (s *OrderService) CompleteOrder(ctx context.Context, orderID, adminID string) (*entity.Order, error) {
	var completed *entity.Order
	err := s.tx.WithinTx(ctx, func(tx repository.TxRepos) error {
		order, err := tx.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotFound
		}
		if order.Status != entity.OrderStatusPaid {
			return ErrInvalidStatus
		}

		now := time.Now().UTC()
		oldStatus := order.Status
		order.Status = entity.OrderStatusCompleted
		order.UpdatedAt = now

		if err := tx.Orders().Update(ctx, order); err != nil {
			return err
		}
		if err := s.enqueueTimeline(ctx, tx, order.ID, "order_completed", order.ID, "Order completed", now); err != nil {
			return err
		}
		if err := s.enqueueAudit(ctx, tx, order.ID, adminID, "admin.order_completed", &oldStatus, &order.Status, nil, now); err != nil {
			return err
		}
		completed = order
		return nil
	})
	return completed, err
}
