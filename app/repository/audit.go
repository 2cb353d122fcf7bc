package repository

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-orders/app/entity"
)

type AuditLogRepository struct {
	db DBTX
}

func NewAuditLogRepository(db DBTX) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Create(ctx context.Context, record *entity.AuditRecord) error {
	metadataJSON, err := serializeMetadata(record.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_records (
			id, order_id, actor, action, old_status, new_status, metadata_json, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		nullableStringValue(record.OrderID),
		record.Actor,
		record.Action,
		nullableStringValue(record.OldStatus),
		nullableStringValue(record.NewStatus),
		metadataJSON,
		record.CreatedAt,
	)
	if err != nil {
		// A replayed outbox task re-inserts the same record ID. That is a
		// completed delivery, not a failure.
		if isDuplicateEntryError(err) {
			return nil
		}
		return err
	}
	return nil
}

func (r *AuditLogRepository) ListByOrderID(ctx context.Context, orderID string) ([]*entity.AuditRecord, error) {
	query := `
		SELECT id, order_id, actor, action, old_status, new_status, metadata_json, created_at
		FROM audit_records
		WHERE order_id = ?
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.AuditRecord, 0)
	for rows.Next() {
		record, err := scanAuditRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, record)
	}
	return items, rows.Err()
}

func scanAuditRecord(row rowScanner) (*entity.AuditRecord, error) {
	var (
		record       entity.AuditRecord
		orderID      sql.NullString
		oldStatus    sql.NullString
		newStatus    sql.NullString
		metadataJSON string
	)
	err := row.Scan(
		&record.ID,
		&orderID,
		&record.Actor,
		&record.Action,
		&oldStatus,
		&newStatus,
		&metadataJSON,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.OrderID = stringPtrFromNull(orderID)
	record.OldStatus = stringPtrFromNull(oldStatus)
	record.NewStatus = stringPtrFromNull(newStatus)

	metadata, err := parseMetadata(metadataJSON)
	if err != nil {
		return nil, err
	}
	record.Metadata = metadata
	return &record, nil
}
