package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-orders/app/entity"
	"github.com/vibast-solutions/ms-go-orders/app/repository"
)

// Side-effect intents are committed as outbox tasks in the same transaction
// as the order mutation. Delivery happens in the dispatch job, so a timeline
// or notification failure can never roll back money-relevant state.

type timelinePayload struct {
	OrderID    string    `json:"order_id"`
	EntryID    string    `json:"entry_id"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

type auditPayload struct {
	RecordID  string            `json:"record_id"`
	OrderID   string            `json:"order_id"`
	Actor     string            `json:"actor"`
	Action    string            `json:"action"`
	OldStatus *string           `json:"old_status,omitempty"`
	NewStatus *string           `json:"new_status,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type notificationPayload struct {
	RecipientID string            `json:"recipient_id"`
	Template    string            `json:"template"`
	OrderID     string            `json:"order_id"`
	Data        map[string]string `json:"data,omitempty"`
}

// enqueueTimeline records a timeline intent. The entry ID is a deterministic
// composite of kind and correlating ID, so a replay appends nothing.
func (s *OrderService) enqueueTimeline(ctx context.Context, tx repository.TxRepos, orderID, kind, correlatingID, message string, now time.Time) error {
	return s.enqueueTask(ctx, tx, entity.OutboxKindTimeline, orderID, timelinePayload{
		OrderID:    orderID,
		EntryID:    kind + ":" + correlatingID,
		Kind:       kind,
		Message:    message,
		OccurredAt: now,
	}, now)
}

func (s *OrderService) enqueueAudit(ctx context.Context, tx repository.TxRepos, orderID, actor, action string, oldStatus, newStatus *entity.OrderStatus, metadata map[string]string, now time.Time) error {
	payload := auditPayload{
		RecordID: uuid.NewString(),
		OrderID:  orderID,
		Actor:    actor,
		Action:   action,
		Metadata: metadata,
	}
	if oldStatus != nil {
		v := string(*oldStatus)
		payload.OldStatus = &v
	}
	if newStatus != nil {
		v := string(*newStatus)
		payload.NewStatus = &v
	}
	return s.enqueueTask(ctx, tx, entity.OutboxKindAudit, orderID, payload, now)
}

func (s *OrderService) enqueueNotification(ctx context.Context, tx repository.TxRepos, orderID, recipientID, template string, data map[string]string, now time.Time) error {
	return s.enqueueTask(ctx, tx, entity.OutboxKindNotification, orderID, notificationPayload{
		RecipientID: recipientID,
		Template:    template,
		OrderID:     orderID,
		Data:        data,
	}, now)
}

func (s *OrderService) enqueueTask(ctx context.Context, tx repository.TxRepos, kind entity.OutboxKind, orderID string, payload interface{}, now time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	nextAttempt := now
	task := &entity.OutboxTask{
		Kind:          kind,
		OrderID:       &orderID,
		PayloadJSON:   string(body),
		Status:        entity.OutboxStatusPending,
		NextAttemptAt: &nextAttempt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return tx.Outbox().Enqueue(ctx, task)
}
