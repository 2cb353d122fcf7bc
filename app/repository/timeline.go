package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-orders/app/entity"
)

type TimelineRepository struct {
	db DBTX
}

func NewTimelineRepository(db DBTX) *TimelineRepository {
	return &TimelineRepository{db: db}
}

// Append inserts one timeline entry. Entry IDs are deterministic, so a
// duplicate key means the logical event is already on the timeline and the
// append counts as done.
func (r *TimelineRepository) Append(ctx context.Context, entry *entity.TimelineEntry) error {
	query := `
		INSERT INTO timeline_entries (
			order_id, entry_id, kind, message, occurred_at, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		entry.OrderID,
		entry.EntryID,
		entry.Kind,
		entry.Message,
		entry.OccurredAt,
		entry.CreatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return nil
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = uint64(id)
	return nil
}

func (r *TimelineRepository) ListByOrderID(ctx context.Context, orderID string) ([]*entity.TimelineEntry, error) {
	query := `
		SELECT id, order_id, entry_id, kind, message, occurred_at, created_at
		FROM timeline_entries
		WHERE order_id = ?
		ORDER BY occurred_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.TimelineEntry, 0)
	for rows.Next() {
		var entry entity.TimelineEntry
		err := rows.Scan(
			&entry.ID,
			&entry.OrderID,
			&entry.EntryID,
			&entry.Kind,
			&entry.Message,
			&entry.OccurredAt,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, &entry)
	}
	return items, rows.Err()
}
