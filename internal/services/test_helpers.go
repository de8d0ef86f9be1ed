package services

import (
	"card-order-service/internal/domain"
	"card-order-service/internal/repository/memory"

	"github.com/shopspring/decimal"
)

const (
	TestUserID  = uint64(7)
	TestOtherID = uint64(8)
	TestAdminID = uint64(1)

	TestCardA = uint64(1)
	TestCardB = uint64(2)
)

var (
	TestCustomer = domain.Principal{UserID: TestUserID}
	TestStranger = domain.Principal{UserID: TestOtherID}
	TestAdmin    = domain.Principal{UserID: TestAdminID, Roles: []string{domain.RoleAdmin}}
)

func CreateMockCard(id uint64, title, price string, qty int64) domain.StudyCard {
	return domain.StudyCard{
		ID:       id,
		Title:    title,
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
		Active:   true,
	}
}

// NewSeededStore returns a store holding card A (stock 5, 12.50) and card B
// (stock 2, 3.99).
func NewSeededStore() *memory.Store {
	store := memory.NewStore()
	store.PutCard(CreateMockCard(TestCardA, "Kanji N5", "12.50", 5))
	store.PutCard(CreateMockCard(TestCardB, "Organic Chemistry", "3.99", 2))
	return store
}

func CreateOrderRequest(lines ...domain.OrderLine) CreateOrderInput {
	return CreateOrderInput{
		Items:           lines,
		ShippingAddress: "221B Baker Street, London",
		PaymentMethod:   "bank_card",
		ShippingMethod:  "courier",
	}
}

func Line(id uint64, qty int64) domain.OrderLine {
	return domain.OrderLine{StudyCardID: id, Quantity: qty}
}
