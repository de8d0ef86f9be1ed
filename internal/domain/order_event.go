package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated         = "order.created"
	EventOrderStatusChanged   = "order.status_changed"
	EventPaymentStatusChanged = "payment.status_changed"
)

type OrderCreatedEvent struct {
	OrderID     uint64          `json:"orderId"`
	UserID      uint64          `json:"userId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Items       []OrderLine     `json:"items"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type OrderStatusChangedEvent struct {
	OrderID   uint64      `json:"orderId"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	ChangedBy uint64      `json:"changedBy"`
	ChangedAt time.Time   `json:"changedAt"`
}

type PaymentStatusChangedEvent struct {
	PaymentID    uint64         `json:"paymentId"`
	OrderID      uint64         `json:"orderId"`
	ExternalID   string         `json:"externalId"`
	Status       PaymentStatus  `json:"status"`
	RefundStatus *PaymentStatus `json:"refundStatus,omitempty"`
	Source       string         `json:"source"`
	ChangedAt    time.Time      `json:"changedAt"`
}
