package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-orders/app/entity"
)

var ErrListingNotFound = errors.New("listing not found")

type ListingRepository struct {
	db DBTX
}

func NewListingRepository(db DBTX) *ListingRepository {
	return &ListingRepository{db: db}
}

func (r *ListingRepository) FindByID(ctx context.Context, id string) (*entity.Listing, error) {
	query := `
		SELECT id, seller_id, title, category, type, price_cents, currency, status,
			purchase_reserved_by_order_id, purchase_reserved_by_user_id, purchase_reserved_until,
			sold_at, sold_price_cents, sale_type, created_at, updated_at
		FROM listings
		WHERE id = ?
	`

	var (
		listing         entity.Listing
		listingType     string
		status          string
		reservedByOrder sql.NullString
		reservedByUser  sql.NullString
		reservedUntil   sql.NullTime
		soldAt          sql.NullTime
		soldPriceCents  sql.NullInt64
		saleType        sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&listing.ID,
		&listing.SellerID,
		&listing.Title,
		&listing.Category,
		&listingType,
		&listing.PriceCents,
		&listing.Currency,
		&status,
		&reservedByOrder,
		&reservedByUser,
		&reservedUntil,
		&soldAt,
		&soldPriceCents,
		&saleType,
		&listing.CreatedAt,
		&listing.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	listing.Type = entity.ListingType(listingType)
	listing.Status = entity.ListingStatus(status)
	listing.PurchaseReservedByOrderID = stringPtrFromNull(reservedByOrder)
	listing.PurchaseReservedByUserID = stringPtrFromNull(reservedByUser)
	listing.PurchaseReservedUntil = timePtrFromNull(reservedUntil)
	listing.SoldAt = timePtrFromNull(soldAt)
	listing.SoldPriceCents = int64PtrFromNull(soldPriceCents)
	if saleType.Valid {
		st := entity.SaleType(saleType.String)
		listing.SaleType = &st
	}

	return &listing, nil
}

func (r *ListingRepository) Reserve(ctx context.Context, listingID, orderID, buyerID string, until time.Time) error {
	query := `
		UPDATE listings SET
			status = ?,
			purchase_reserved_by_order_id = ?,
			purchase_reserved_by_user_id = ?,
			purchase_reserved_until = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(entity.ListingStatusReserved),
		orderID,
		buyerID,
		until,
		time.Now().UTC(),
		listingID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrListingNotFound
	}
	return nil
}

func (r *ListingRepository) MarkSold(ctx context.Context, listingID string, saleType entity.SaleType, priceCents int64, soldAt time.Time) error {
	query := `
		UPDATE listings SET
			status = ?,
			purchase_reserved_by_order_id = NULL,
			purchase_reserved_by_user_id = NULL,
			purchase_reserved_until = NULL,
			sold_at = ?,
			sold_price_cents = ?,
			sale_type = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(entity.ListingStatusSold),
		soldAt,
		priceCents,
		string(saleType),
		time.Now().UTC(),
		listingID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrListingNotFound
	}
	return nil
}

// Release is a no-op when the reservation no longer points at
// expectedOrderID. A newer order may have re-reserved the listing between
// the cancel decision and this write.
func (r *ListingRepository) Release(ctx context.Context, listingID, expectedOrderID string) error {
	query := `
		UPDATE listings SET
			status = ?,
			purchase_reserved_by_order_id = NULL,
			purchase_reserved_by_user_id = NULL,
			purchase_reserved_until = NULL,
			updated_at = ?
		WHERE id = ? AND purchase_reserved_by_order_id = ?
	`

	_, err := r.db.ExecContext(ctx, query,
		string(entity.ListingStatusActive),
		time.Now().UTC(),
		listingID,
		expectedOrderID,
	)
	return err
}
