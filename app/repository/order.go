package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-orders/app/entity"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyExists = errors.New("order already exists")
)

type OrderFilter struct {
	Status      string
	BuyerID     string
	SellerID    string
	AdminHold   *bool
	NeedsReview *bool
	Limit       int32
	Offset      int32
}

type OrderRepository struct {
	db        DBTX
	lockReads bool
}

func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `
	id, checkout_session_id, payment_intent_id,
	listing_id, listing_title, listing_category, seller_id, buyer_id, offer_id,
	payment_method, currency, amount_cents, platform_fee_cents, seller_amount_cents,
	status, paid_at, dispute_deadline_at,
	admin_hold, needs_manual_review, payout_hold_reason, chargeback_status,
	compliance_violation, transfer_permit_required, transfer_permit_status, buyer_region,
	metadata_json, created_at, updated_at
`

func (r *OrderRepository) Create(ctx context.Context, order *entity.Order) error {
	metadataJSON, err := serializeMetadata(order.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		order.ID,
		order.CheckoutSessionID,
		nullableStringValue(order.PaymentIntentID),
		order.ListingID,
		order.ListingTitle,
		order.ListingCategory,
		order.SellerID,
		order.BuyerID,
		nullableStringValue(order.OfferID),
		string(order.PaymentMethod),
		order.Currency,
		order.AmountCents,
		order.PlatformFeeCents,
		order.SellerAmountCents,
		string(order.Status),
		nullableTimeValue(order.PaidAt),
		nullableTimeValue(order.DisputeDeadlineAt),
		order.AdminHold,
		order.NeedsManualReview,
		string(order.PayoutHoldReason),
		string(order.ChargebackStatus),
		order.ComplianceViolation,
		order.TransferPermitRequired,
		string(order.TransferPermitStatus),
		nullableStringValue(order.BuyerRegion),
		metadataJSON,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrOrderAlreadyExists
		}
		return err
	}
	return nil
}

func (r *OrderRepository) Update(ctx context.Context, order *entity.Order) error {
	metadataJSON, err := serializeMetadata(order.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE orders SET
			payment_intent_id = ?,
			payment_method = ?,
			status = ?,
			paid_at = ?,
			dispute_deadline_at = ?,
			admin_hold = ?,
			needs_manual_review = ?,
			payout_hold_reason = ?,
			chargeback_status = ?,
			compliance_violation = ?,
			transfer_permit_required = ?,
			transfer_permit_status = ?,
			buyer_region = ?,
			metadata_json = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableStringValue(order.PaymentIntentID),
		string(order.PaymentMethod),
		string(order.Status),
		nullableTimeValue(order.PaidAt),
		nullableTimeValue(order.DisputeDeadlineAt),
		order.AdminHold,
		order.NeedsManualReview,
		string(order.PayoutHoldReason),
		string(order.ChargebackStatus),
		order.ComplianceViolation,
		order.TransferPermitRequired,
		string(order.TransferPermitStatus),
		nullableStringValue(order.BuyerRegion),
		metadataJSON,
		order.UpdatedAt,
		order.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?` + r.lockClause()
	return r.findOne(ctx, query, id)
}

func (r *OrderRepository) FindByCheckoutSessionID(ctx context.Context, sessionID string) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE checkout_session_id = ?` + r.lockClause()
	return r.findOne(ctx, query, sessionID)
}

func (r *OrderRepository) FindByPaymentIntentID(ctx context.Context, intentID string) (*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE payment_intent_id = ?` + r.lockClause()
	return r.findOne(ctx, query, intentID)
}

func (r *OrderRepository) List(ctx context.Context, filter OrderFilter) ([]*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := make([]interface{}, 0, 8)

	if strings.TrimSpace(filter.Status) != "" {
		query += " AND status = ?"
		args = append(args, strings.TrimSpace(filter.Status))
	}
	if strings.TrimSpace(filter.BuyerID) != "" {
		query += " AND buyer_id = ?"
		args = append(args, strings.TrimSpace(filter.BuyerID))
	}
	if strings.TrimSpace(filter.SellerID) != "" {
		query += " AND seller_id = ?"
		args = append(args, strings.TrimSpace(filter.SellerID))
	}
	if filter.AdminHold != nil {
		query += " AND admin_hold = ?"
		args = append(args, *filter.AdminHold)
	}
	if filter.NeedsReview != nil {
		query += " AND needs_manual_review = ?"
		args = append(args, *filter.NeedsReview)
	}

	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	return r.findMany(ctx, query, args...)
}

func (r *OrderRepository) ListDueEscrowRelease(ctx context.Context, now time.Time, limit int32) ([]*entity.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = ? AND dispute_deadline_at IS NOT NULL AND dispute_deadline_at <= ? AND admin_hold = FALSE
		ORDER BY dispute_deadline_at ASC
		LIMIT ?
	`
	return r.findMany(ctx, query, string(entity.OrderStatusPaidHeld), now, limit)
}

func (r *OrderRepository) ListStaleAwaiting(ctx context.Context, before time.Time, limit int32) ([]*entity.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status IN (?, ?) AND created_at <= ?
		ORDER BY created_at ASC
		LIMIT ?
	`
	return r.findMany(ctx, query,
		string(entity.OrderStatusAwaitingBankTransfer),
		string(entity.OrderStatusAwaitingWire),
		before,
		limit,
	)
}

func (r *OrderRepository) lockClause() string {
	if r.lockReads {
		return " FOR UPDATE"
	}
	return ""
}

func (r *OrderRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.Order, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *OrderRepository) findMany(ctx context.Context, query string, args ...interface{}) ([]*entity.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, order)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*entity.Order, error) {
	var (
		order                entity.Order
		paymentIntentID      sql.NullString
		offerID              sql.NullString
		paymentMethod        string
		status               string
		paidAt               sql.NullTime
		disputeDeadlineAt    sql.NullTime
		payoutHoldReason     string
		chargebackStatus     string
		transferPermitStatus string
		buyerRegion          sql.NullString
		metadataJSON         string
	)

	err := row.Scan(
		&order.ID,
		&order.CheckoutSessionID,
		&paymentIntentID,
		&order.ListingID,
		&order.ListingTitle,
		&order.ListingCategory,
		&order.SellerID,
		&order.BuyerID,
		&offerID,
		&paymentMethod,
		&order.Currency,
		&order.AmountCents,
		&order.PlatformFeeCents,
		&order.SellerAmountCents,
		&status,
		&paidAt,
		&disputeDeadlineAt,
		&order.AdminHold,
		&order.NeedsManualReview,
		&payoutHoldReason,
		&chargebackStatus,
		&order.ComplianceViolation,
		&order.TransferPermitRequired,
		&transferPermitStatus,
		&buyerRegion,
		&metadataJSON,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.PaymentIntentID = stringPtrFromNull(paymentIntentID)
	order.OfferID = stringPtrFromNull(offerID)
	order.PaymentMethod = entity.PaymentMethod(paymentMethod)
	order.Status = entity.OrderStatus(status)
	order.PaidAt = timePtrFromNull(paidAt)
	order.DisputeDeadlineAt = timePtrFromNull(disputeDeadlineAt)
	order.PayoutHoldReason = entity.PayoutHoldReason(payoutHoldReason)
	order.ChargebackStatus = entity.ChargebackStatus(chargebackStatus)
	order.TransferPermitStatus = entity.TransferPermitStatus(transferPermitStatus)
	order.BuyerRegion = stringPtrFromNull(buyerRegion)

	metadata, err := parseMetadata(metadataJSON)
	if err != nil {
		return nil, err
	}
	order.Metadata = metadata

	return &order, nil
}
