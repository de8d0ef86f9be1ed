package mysql

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"card-order-service/internal/domain"
	"card-order-service/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const reserveSQL = "UPDATE `study_cards` SET `quantity`=quantity - ? WHERE id = ? AND quantity >= ?"

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestStockRepo_Reserve(t *testing.T) {
	tests := []struct {
		name        string
		affected    int64
		expectedErr error
	}{
		{name: "enough stock", affected: 1},
		{name: "conditional update matched nothing", affected: 0, expectedErr: domain.ErrInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			mock.ExpectExec(regexp.QuoteMeta(reserveSQL)).
				WithArgs(int64(3), uint64(7), int64(3)).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := NewStockRepository(db).Reserve(context.Background(), 7, 3)

			if tt.expectedErr != nil {
				assert.True(t, errors.Is(err, tt.expectedErr), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStockRepo_NonPositiveQuantity(t *testing.T) {
	for _, qty := range []int64{0, -2} {
		db, mock := newMockDB(t)
		repo := NewStockRepository(db)

		err := repo.Reserve(context.Background(), 7, qty)
		assert.True(t, errors.Is(err, domain.ErrValidation), "reserve %d: got %v", qty, err)
		err = repo.Release(context.Background(), 7, qty)
		assert.True(t, errors.Is(err, domain.ErrValidation), "release %d: got %v", qty, err)

		// nothing may reach the database
		assert.NoError(t, mock.ExpectationsWereMet())
	}
}

func TestStockRepo_ReleaseMissingCard(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `study_cards` SET `quantity`=quantity + ? WHERE id = ?")).
		WithArgs(int64(2), uint64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewStockRepository(db).Release(context.Background(), 99, 2)

	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_RollsBackOnReserveFailure(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(reserveSQL)).
		WithArgs(int64(2), uint64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(reserveSQL)).
		WithArgs(int64(5), uint64(2), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := NewUnitOfWork(db).Do(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Stock().Reserve(ctx, 1, 2); err != nil {
			return err
		}
		return repos.Stock().Reserve(ctx, 2, 5)
	})

	assert.True(t, errors.Is(err, domain.ErrInsufficientStock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_UpdateStatusIf(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `orders` SET `status`=?,`updated_at`=? WHERE id = ? AND status = ?")).
		WithArgs(domain.StatusCancelled, sqlmock.AnyArg(), uint64(4), domain.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := NewOrderRepository(db).UpdateStatusIf(context.Background(), 4, domain.StatusPending, domain.StatusCancelled)

	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
