package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-orders/app/entity"
)

var (
	ErrDisputeNotFound      = errors.New("dispute not found")
	ErrDisputeAlreadyExists = errors.New("dispute already exists")
)

type DisputeRepository struct {
	db        DBTX
	lockReads bool
}

func NewDisputeRepository(db DBTX) *DisputeRepository {
	return &DisputeRepository{db: db}
}

func (r *DisputeRepository) Create(ctx context.Context, dispute *entity.Dispute) error {
	query := `
		INSERT INTO disputes (
			id, payment_intent_id, order_id, status, amount_cents, currency, reason,
			funds_withdrawn_at, funds_reinstated_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		dispute.ID,
		dispute.PaymentIntentID,
		nullableStringValue(dispute.OrderID),
		string(dispute.Status),
		dispute.AmountCents,
		dispute.Currency,
		dispute.Reason,
		nullableTimeValue(dispute.FundsWithdrawnAt),
		nullableTimeValue(dispute.FundsReinstatedAt),
		dispute.CreatedAt,
		dispute.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrDisputeAlreadyExists
		}
		return err
	}
	return nil
}

func (r *DisputeRepository) Update(ctx context.Context, dispute *entity.Dispute) error {
	query := `
		UPDATE disputes SET
			order_id = ?,
			status = ?,
			amount_cents = ?,
			currency = ?,
			reason = ?,
			funds_withdrawn_at = ?,
			funds_reinstated_at = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableStringValue(dispute.OrderID),
		string(dispute.Status),
		dispute.AmountCents,
		dispute.Currency,
		dispute.Reason,
		nullableTimeValue(dispute.FundsWithdrawnAt),
		nullableTimeValue(dispute.FundsReinstatedAt),
		dispute.UpdatedAt,
		dispute.ID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDisputeNotFound
	}
	return nil
}

func (r *DisputeRepository) FindByID(ctx context.Context, id string) (*entity.Dispute, error) {
	query := `
		SELECT id, payment_intent_id, order_id, status, amount_cents, currency, reason,
			funds_withdrawn_at, funds_reinstated_at, created_at, updated_at
		FROM disputes
		WHERE id = ?
	`
	if r.lockReads {
		query += " FOR UPDATE"
	}

	var (
		dispute           entity.Dispute
		orderID           sql.NullString
		status            string
		fundsWithdrawnAt  sql.NullTime
		fundsReinstatedAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&dispute.ID,
		&dispute.PaymentIntentID,
		&orderID,
		&status,
		&dispute.AmountCents,
		&dispute.Currency,
		&dispute.Reason,
		&fundsWithdrawnAt,
		&fundsReinstatedAt,
		&dispute.CreatedAt,
		&dispute.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dispute.OrderID = stringPtrFromNull(orderID)
	dispute.Status = entity.DisputeStatus(status)
	dispute.FundsWithdrawnAt = timePtrFromNull(fundsWithdrawnAt)
	dispute.FundsReinstatedAt = timePtrFromNull(fundsReinstatedAt)

	return &dispute, nil
}
