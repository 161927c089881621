package mapper

import (
	"time"

	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/entity"
	"github.com/ngocnhu100/bus-ticket-booking-system-sub006/app/types"
)

func PaymentToResponse(item *entity.PaymentIntent) *types.Payment {
	if item == nil {
		return nil
	}

	return &types.Payment{
		PaymentID:    item.PaymentID,
		BookingID:    item.BookingID,
		Provider:     item.Gateway,
		GatewayTxnID: derefString(item.GatewayTxnID),
		Amount:       item.Amount,
		Currency:     item.Currency,
		Status:       item.Status,
		PayURL:       derefString(item.PayURL),
		CreatedAt:    item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
