package mysql

import (
	"context"
	"fmt"

	"card-order-service/internal/domain"
	"card-order-service/internal/repository"

	"gorm.io/gorm"
)

type stockRepo struct {
	db *gorm.DB
}

func NewStockRepository(db *gorm.DB) repository.StockRepository {
	return &stockRepo{db: db}
}

func (r *stockRepo) FindByIDs(ctx context.Context, ids []uint64) (map[uint64]*domain.StudyCard, error) {
	out := make(map[uint64]*domain.StudyCard, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var cards []domain.StudyCard
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&cards).Error; err != nil {
		return nil, err
	}
	for i := range cards {
		out[cards[i].ID] = &cards[i]
	}
	return out, nil
}

// Reserve is a single conditional UPDATE; the row count is the stock check.
func (r *stockRepo) Reserve(ctx context.Context, id uint64, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: reserve quantity %d for study card %d", domain.ErrValidation, qty, id)
	}
	res := r.db.WithContext(ctx).
		Model(&domain.StudyCard{}).
		Where("id = ? AND quantity >= ?", id, qty).
		UpdateColumn("quantity", gorm.Expr("quantity - ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: study card %d", domain.ErrInsufficientStock, id)
	}
	return nil
}

func (r *stockRepo) Release(ctx context.Context, id uint64, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: release quantity %d for study card %d", domain.ErrValidation, qty, id)
	}
	res := r.db.WithContext(ctx).
		Model(&domain.StudyCard{}).
		Where("id = ?", id).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: study card %d", domain.ErrNotFound, id)
	}
	return nil
}
