package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// orderTransitions is the complete set of legal moves. Statuses missing as
// keys are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
}

// ParseOrderStatus accepts only the exact lowercase status names.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatusValue, s)
}

func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Cancellable reports whether stock reserved by the order may still be
// returned to the ledger.
func (s OrderStatus) Cancellable() bool {
	return s.CanTransitionTo(StatusCancelled)
}

type Order struct {
	ID              uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID          uint64          `json:"userId" gorm:"not null;index"`
	TotalAmount     decimal.Decimal `json:"totalAmount" gorm:"type:decimal(10,2);not null"`
	Status          OrderStatus     `json:"status" gorm:"type:enum('pending','processing','shipped','delivered','cancelled');default:'pending';not null;index"`
	ShippingAddress string          `json:"shippingAddress" gorm:"type:varchar(512);not null"`
	ShippingMethod  string          `json:"shippingMethod" gorm:"type:varchar(64);not null"`
	PaymentMethod   string          `json:"paymentMethod" gorm:"type:varchar(64);not null"`
	Items           []OrderItem     `json:"items" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time       `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt       time.Time       `json:"updatedAt" gorm:"autoUpdateTime"`
}

// OrderItem is immutable once written. UnitPrice is the card price captured
// when the order was placed.
type OrderItem struct {
	ID          uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID     uint64          `json:"orderId" gorm:"not null;index"`
	StudyCardID uint64          `json:"studyCardId" gorm:"not null;index"`
	Quantity    int64           `json:"quantity" gorm:"not null"`
	UnitPrice   decimal.Decimal `json:"unitPrice" gorm:"type:decimal(10,2);not null"`
	CreatedAt   time.Time       `json:"createdAt" gorm:"autoCreateTime"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// OrderLine is a requested {item, quantity} pair before pricing.
type OrderLine struct {
	StudyCardID uint64
	Quantity    int64
}

type ShippingDetails struct {
	Address        string
	ShippingMethod string
	PaymentMethod  string
}

// NewOrder builds a pending order from priced items. The total is fixed here
// and never recomputed.
func NewOrder(userID uint64, shipping ShippingDetails, items []OrderItem) *Order {
	o := &Order{
		UserID:          userID,
		Status:          StatusPending,
		ShippingAddress: shipping.Address,
		ShippingMethod:  shipping.ShippingMethod,
		PaymentMethod:   shipping.PaymentMethod,
		Items:           items,
	}
	o.TotalAmount = o.ItemsTotal()
	return o
}

func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Subtotal())
	}
	return total.Round(2)
}

func (o *Order) OwnedBy(p Principal) bool {
	return o.UserID == p.UserID
}

// OrderDetails is the read model served by GET /orders/:id.
type OrderDetails struct {
	Order    Order     `json:"order"`
	Payments []Payment `json:"payments"`
}
