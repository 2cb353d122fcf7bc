package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vibast-solutions/ms-go-orders/app/entity"
	"github.com/vibast-solutions/ms-go-orders/app/repository"
)

// RunDispatchOutboxBatch delivers due outbox tasks. Each task is retried on
// its own schedule and dead-lettered after the configured attempt budget, so
// one stuck notification endpoint cannot wedge the rest of the batch.
func (s *OrderService) RunDispatchOutboxBatch(ctx context.Context) error {
	now := time.Now().UTC()

	tasks, err := s.outbox.ListDue(ctx, now, s.outboxCfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list due outbox tasks: %w", err)
	}

	var firstErr error
	for _, task := range tasks {
		deliverErr := s.deliverOutboxTask(ctx, task)
		if deliverErr == nil {
			task.Status = entity.OutboxStatusSucceeded
			task.NextAttemptAt = nil
			task.LastError = nil
		} else {
			task.Attempts++
			msg := deliverErr.Error()
			task.LastError = &msg
			if task.Attempts >= s.outboxCfg.MaxAttempts {
				task.Status = entity.OutboxStatusDead
				task.NextAttemptAt = nil
				s.log.WithError(deliverErr).
					WithField("task_id", task.ID).
					WithField("kind", task.Kind).
					Error("Outbox task exhausted its attempts, dead-lettering")
			} else {
				retryAt := now.Add(s.outboxCfg.RetryInterval)
				task.NextAttemptAt = &retryAt
				s.log.WithError(deliverErr).
					WithField("task_id", task.ID).
					WithField("kind", task.Kind).
					Warn("Outbox task delivery failed, will retry")
			}
			if firstErr == nil {
				firstErr = deliverErr
			}
		}
		task.UpdatedAt = now

		if err := s.outbox.Update(ctx, task); err != nil {
			s.log.WithError(err).WithField("task_id", task.ID).Error("Failed to persist outbox task state")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *OrderService) deliverOutboxTask(ctx context.Context, task *entity.OutboxTask) error {
	switch task.Kind {
	case entity.OutboxKindTimeline:
		var payload timelinePayload
		if err := json.Unmarshal([]byte(task.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("decode timeline payload: %w", err)
		}
		return s.timeline.Append(ctx, &entity.TimelineEntry{
			OrderID:    payload.OrderID,
			EntryID:    payload.EntryID,
			Kind:       payload.Kind,
			Message:    payload.Message,
			OccurredAt: payload.OccurredAt,
			CreatedAt:  time.Now().UTC(),
		})
	case entity.OutboxKindAudit:
		var payload auditPayload
		if err := json.Unmarshal([]byte(task.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("decode audit payload: %w", err)
		}
		record := &entity.AuditRecord{
			ID:        payload.RecordID,
			Actor:     payload.Actor,
			Action:    payload.Action,
			OldStatus: payload.OldStatus,
			NewStatus: payload.NewStatus,
			Metadata:  payload.Metadata,
			CreatedAt: time.Now().UTC(),
		}
		if payload.OrderID != "" {
			orderID := payload.OrderID
			record.OrderID = &orderID
		}
		return s.audit.Create(ctx, record)
	case entity.OutboxKindNotification:
		return s.postNotification(ctx, task.PayloadJSON)
	default:
		return fmt.Errorf("unknown outbox kind %q", task.Kind)
	}
}

func (s *OrderService) postNotification(ctx context.Context, payloadJSON string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.notifyCfg.EndpointURL, bytes.NewBufferString(payloadJSON))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", s.appAPIKey)

	resp, err := s.notifyHTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// RunReleaseEscrowBatch moves orders whose protection window has elapsed
// from held to payable. Each order transitions in its own transaction under
// a row lock, and the hold flags are re-checked there.
func (s *OrderService) RunReleaseEscrowBatch(ctx context.Context) error {
	now := time.Now().UTC()

	due, err := s.orders.ListDueEscrowRelease(ctx, now, s.outboxCfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list due escrow releases: %w", err)
	}

	var firstErr error
	for _, candidate := range due {
		err := s.tx.WithinTx(ctx, func(tx repository.TxRepos) error {
			order, err := tx.Orders().FindByID(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if order == nil || order.Status != entity.OrderStatusPaidHeld || order.AdminHold {
				return nil
			}
			if order.DisputeDeadlineAt == nil || order.DisputeDeadlineAt.After(now) {
				return nil
			}

			oldStatus := order.Status
			order.Status = entity.OrderStatusPaid
			if order.PayoutHoldReason == entity.PayoutHoldProtectionWindow {
				order.PayoutHoldReason = entity.PayoutHoldNone
			}
			order.UpdatedAt = now

			if err := tx.Orders().Update(ctx, order); err != nil {
				return err
			}
			if err := s.enqueueTimeline(ctx, tx, order.ID, "escrow_released", order.ID, "Escrow released, funds payable to seller", now); err != nil {
				return err
			}
			if err := s.enqueueAudit(ctx, tx, order.ID, "escrow-release-job", "order.escrow_released", &oldStatus, &order.Status, nil, now); err != nil {
				return err
			}
			return s.enqueueNotification(ctx, tx, order.ID, order.SellerID, "Order.EscrowReleased", nil, now)
		})
		if err != nil {
			s.log.WithError(err).WithField("order_id", candidate.ID).Error("Escrow release failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// RunExpireReservationsBatch cancels orders stuck awaiting an async payment
// past the reservation window and puts their listings back on the market.
func (s *OrderService) RunExpireReservationsBatch(ctx context.Context) error {
	now := time.Now().UTC()

	stale, err := s.orders.ListStaleAwaiting(ctx, now.Add(-s.ordersCfg.ReservationWindow), s.outboxCfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list stale awaiting orders: %w", err)
	}

	var firstErr error
	for _, candidate := range stale {
		err := s.tx.WithinTx(ctx, func(tx repository.TxRepos) error {
			order, err := tx.Orders().FindByID(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if order == nil || order.Status.FundsConfirmed() || order.Status.Terminal() {
				return nil
			}
			return s.cancelOrder(ctx, tx, order, "reservation_expired", order.CheckoutSessionID, now)
		})
		if err != nil {
			s.log.WithError(err).WithField("order_id", candidate.ID).Error("Reservation expiry failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
