package mysql

import (
	"context"

	"card-order-service/internal/repository"

	"gorm.io/gorm"
)

type unitOfWork struct {
	db *gorm.DB
}

// NewUnitOfWork returns a UnitOfWork backed by one gorm transaction per Do.
func NewUnitOfWork(db *gorm.DB) repository.UnitOfWork {
	return &unitOfWork{db: db}
}

func (u *unitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, txRepos{tx: tx})
	})
}

type txRepos struct {
	tx *gorm.DB
}

func (r txRepos) Orders() repository.OrderRepository     { return NewOrderRepository(r.tx) }
func (r txRepos) Stock() repository.StockRepository      { return NewStockRepository(r.tx) }
func (r txRepos) Payments() repository.PaymentRepository { return NewPaymentRepository(r.tx) }
