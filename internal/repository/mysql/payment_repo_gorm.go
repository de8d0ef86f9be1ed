package mysql

import (
	"context"
	"errors"
	"time"

	"card-order-service/internal/domain"
	"card-order-service/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type paymentRepo struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) repository.PaymentRepository {
	return &paymentRepo{db: db}
}

func (r *paymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return err
	}
	if p.ID == 0 {
		return errors.New("failed to assign payment ID")
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, id uint64) (*domain.Payment, error) {
	var p domain.Payment
	return first(r.db.WithContext(ctx), &p, "id = ?", id)
}

func (r *paymentRepo) FindByOrderID(ctx context.Context, orderID uint64) ([]domain.Payment, error) {
	var out []domain.Payment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *paymentRepo) FindByExternalIDForUpdate(ctx context.Context, externalID string) (*domain.Payment, error) {
	var p domain.Payment
	db := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
	return first(db, &p, "external_id = ? OR refund_external_id = ?", externalID, externalID)
}

func (r *paymentRepo) FindPendingCreatedBefore(ctx context.Context, before time.Time, limit int) ([]domain.Payment, error) {
	var out []domain.Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.PaymentPending, before).
		Order("created_at").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update writes the reconciler-owned columns; amount and ids never change.
func (r *paymentRepo) Update(ctx context.Context, p *domain.Payment) error {
	return r.db.WithContext(ctx).
		Model(p).
		Select("status", "refund_status", "refund_external_id", "last_event").
		Updates(p).Error
}

func first(db *gorm.DB, p *domain.Payment, query string, args ...any) (*domain.Payment, error) {
	if err := db.Where(query, args...).First(p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}
