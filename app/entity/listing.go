package entity

import "time"

type ListingStatus string

const (
	ListingStatusActive   ListingStatus = "active"
	ListingStatusReserved ListingStatus = "reserved"
	ListingStatusSold     ListingStatus = "sold"
)

type ListingType string

const (
	ListingTypeFixed      ListingType = "fixed"
	ListingTypeAuction    ListingType = "auction"
	ListingTypeClassified ListingType = "classified"
)

type SaleType string

const (
	SaleTypeOffer      SaleType = "offer"
	SaleTypeBuyNow     SaleType = "buy_now"
	SaleTypeAuction    SaleType = "auction"
	SaleTypeClassified SaleType = "classified"
)

// Listing is owned by this service only through its reservation and sale
// fields. The full listing lifecycle lives elsewhere.
type Listing struct {
	ID       string
	SellerID string

	Title      string
	Category   string
	Type       ListingType
	PriceCents int64
	Currency   string

	Status ListingStatus

	PurchaseReservedByOrderID *string
	PurchaseReservedByUserID  *string
	PurchaseReservedUntil     *time.Time

	SoldAt         *time.Time
	SoldPriceCents *int64
	SaleType       *SaleType

	CreatedAt time.Time
	UpdatedAt time.Time
}
