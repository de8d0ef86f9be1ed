package http

import (
	"card-order-service/internal/domain"

	"github.com/shopspring/decimal"
)

type OrderLineRequest struct {
	ItemID   uint64 `json:"item_id" binding:"required"`
	Quantity int64  `json:"quantity" binding:"required,min=1,max=10000"`
}

type CreateOrderRequest struct {
	Items           []OrderLineRequest `json:"items" binding:"required,min=1,dive"`
	ShippingAddress string             `json:"shipping_address" binding:"required"`
	PaymentMethod   string             `json:"payment_method" binding:"required"`
	ShippingMethod  string             `json:"shipping_method" binding:"required"`
}

func (r CreateOrderRequest) lines() []domain.OrderLine {
	out := make([]domain.OrderLine, len(r.Items))
	for i, it := range r.Items {
		out[i] = domain.OrderLine{StudyCardID: it.ItemID, Quantity: it.Quantity}
	}
	return out
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type InitiatePaymentRequest struct {
	OrderID       uint64          `json:"order_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
}

type WebhookAckResponse struct {
	Status  string `json:"status"`
	Outcome string `json:"outcome,omitempty"`
}
