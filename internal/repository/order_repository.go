package repository

import (
	"context"
	"time"

	"card-order-service/internal/domain"
)

// Lookups return (nil, nil) when the row does not exist.

type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uint64) (*domain.Order, error)
	// UpdateStatusIf moves the order to `to` only while it is still in `from`.
	UpdateStatusIf(ctx context.Context, id uint64, from, to domain.OrderStatus) (bool, error)
}

// StockRepository is the stock ledger. Reserve and Release are the only
// writers of study_cards.quantity.
type StockRepository interface {
	FindByIDs(ctx context.Context, ids []uint64) (map[uint64]*domain.StudyCard, error)
	// Reserve decrements quantity when at least qty is available and fails
	// with domain.ErrInsufficientStock otherwise.
	Reserve(ctx context.Context, id uint64, qty int64) error
	Release(ctx context.Context, id uint64, qty int64) error
}

type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	FindByID(ctx context.Context, id uint64) (*domain.Payment, error)
	FindByOrderID(ctx context.Context, orderID uint64) ([]domain.Payment, error)
	// FindByExternalIDForUpdate matches either the payment or its refund
	// external id and holds a row lock until the unit of work ends.
	FindByExternalIDForUpdate(ctx context.Context, externalID string) (*domain.Payment, error)
	FindPendingCreatedBefore(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error)
	Update(ctx context.Context, p *domain.Payment) error
}

type Repositories interface {
	Orders() OrderRepository
	Stock() StockRepository
	Payments() PaymentRepository
}

// UnitOfWork runs fn atomically. A non-nil error from fn rolls back every
// write made through repos.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
