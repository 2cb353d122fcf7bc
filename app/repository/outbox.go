package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-orders/app/entity"
)

var ErrOutboxTaskNotFound = errors.New("outbox task not found")

type OutboxRepository struct {
	db DBTX
}

func NewOutboxRepository(db DBTX) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, task *entity.OutboxTask) error {
	query := `
		INSERT INTO outbox_tasks (
			kind, order_id, payload_json, status, attempts, next_attempt_at, last_error, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		string(task.Kind),
		nullableStringValue(task.OrderID),
		task.PayloadJSON,
		task.Status,
		task.Attempts,
		nullableTimeValue(task.NextAttemptAt),
		nullableStringValue(task.LastError),
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	task.ID = uint64(id)
	return nil
}

func (r *OutboxRepository) ListDue(ctx context.Context, now time.Time, limit int32) ([]*entity.OutboxTask, error) {
	query := `
		SELECT id, kind, order_id, payload_json, status, attempts, next_attempt_at, last_error, created_at, updated_at
		FROM outbox_tasks
		WHERE status = ? AND next_attempt_at IS NOT NULL AND next_attempt_at <= ?
		ORDER BY next_attempt_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.OutboxStatusPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.OutboxTask, 0)
	for rows.Next() {
		var (
			task          entity.OutboxTask
			kind          string
			orderID       sql.NullString
			nextAttemptAt sql.NullTime
			lastError     sql.NullString
		)
		err := rows.Scan(
			&task.ID,
			&kind,
			&orderID,
			&task.PayloadJSON,
			&task.Status,
			&task.Attempts,
			&nextAttemptAt,
			&lastError,
			&task.CreatedAt,
			&task.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		task.Kind = entity.OutboxKind(kind)
		task.OrderID = stringPtrFromNull(orderID)
		task.NextAttemptAt = timePtrFromNull(nextAttemptAt)
		task.LastError = stringPtrFromNull(lastError)
		items = append(items, &task)
	}
	return items, rows.Err()
}

func (r *OutboxRepository) Update(ctx context.Context, task *entity.OutboxTask) error {
	query := `
		UPDATE outbox_tasks SET
			status = ?,
			attempts = ?,
			next_attempt_at = ?,
			last_error = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		task.Status,
		task.Attempts,
		nullableTimeValue(task.NextAttemptAt),
		nullableStringValue(task.LastError),
		task.UpdatedAt,
		task.ID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOutboxTaskNotFound
	}
	return nil
}
