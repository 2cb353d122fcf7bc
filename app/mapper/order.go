package mapper

import (
	"github.com/vibast-solutions/ms-go-orders/app/entity"
	"github.com/vibast-solutions/ms-go-orders/app/types"
)

func OrderToResponse(item *entity.Order) *types.OrderResponse {
	if item == nil {
		return nil
	}

	return &types.OrderResponse{
		ID:                item.ID,
		CheckoutSessionID: item.CheckoutSessionID,
		PaymentIntentID:   item.PaymentIntentID,

		ListingID:       item.ListingID,
		ListingTitle:    item.ListingTitle,
		ListingCategory: item.ListingCategory,
		SellerID:        item.SellerID,
		BuyerID:         item.BuyerID,
		OfferID:         item.OfferID,

		PaymentMethod:     string(item.PaymentMethod),
		Currency:          item.Currency,
		AmountCents:       item.AmountCents,
		PlatformFeeCents:  item.PlatformFeeCents,
		SellerAmountCents: item.SellerAmountCents,

		Status:            string(item.Status),
		PaidAt:            item.PaidAt,
		DisputeDeadlineAt: item.DisputeDeadlineAt,

		AdminHold:         item.AdminHold,
		NeedsManualReview: item.NeedsManualReview,
		PayoutHoldReason:  string(item.PayoutHoldReason),
		ChargebackStatus:  string(item.ChargebackStatus),

		ComplianceViolation:    item.ComplianceViolation,
		TransferPermitRequired: item.TransferPermitRequired,
		TransferPermitStatus:   string(item.TransferPermitStatus),
		BuyerRegion:            item.BuyerRegion,

		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

func OrdersToResponse(items []*entity.Order) []*types.OrderResponse {
	result := make([]*types.OrderResponse, 0, len(items))
	for _, item := range items {
		result = append(result, OrderToResponse(item))
	}
	return result
}

func TimelineToResponse(items []*entity.TimelineEntry) []*types.TimelineEntryResponse {
	result := make([]*types.TimelineEntryResponse, 0, len(items))
	for _, item := range items {
		result = append(result, &types.TimelineEntryResponse{
			EntryID:    item.EntryID,
			Kind:       item.Kind,
			Message:    item.Message,
			OccurredAt: item.OccurredAt,
		})
	}
	return result
}

func AuditTrailToResponse(items []*entity.AuditRecord) []*types.AuditRecordResponse {
	result := make([]*types.AuditRecordResponse, 0, len(items))
	for _, item := range items {
		result = append(result, &types.AuditRecordResponse{
			ID:        item.ID,
			Actor:     item.Actor,
			Action:    item.Action,
			OldStatus: item.OldStatus,
			NewStatus: item.NewStatus,
			Metadata:  item.Metadata,
			CreatedAt: item.CreatedAt,
		})
	}
	return result
}

func DisputeToResponse(item *entity.Dispute) *types.DisputeResponse {
	if item == nil {
		return nil
	}

	return &types.DisputeResponse{
		ID:                item.ID,
		PaymentIntentID:   item.PaymentIntentID,
		OrderID:           item.OrderID,
		Status:            string(item.Status),
		AmountCents:       item.AmountCents,
		Currency:          item.Currency,
		Reason:            item.Reason,
		FundsWithdrawnAt:  item.FundsWithdrawnAt,
		FundsReinstatedAt: item.FundsReinstatedAt,
		CreatedAt:         item.CreatedAt,
		UpdatedAt:         item.UpdatedAt,
	}
}
