package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"ricemill/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func testBatch() *model.ProductionBatch {
	return &model.ProductionBatch{
		ID:           uuid.New(),
		BatchNumber:  "BATCH000007",
		PaddyVariety: "IR64",
		BatchDate:    time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		Shift:        model.ShiftMorning,
		Status:       model.BatchInProgress,
		Version:      3,
	}
}

func TestBatchUpdateVersionedBumpsVersion(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProductionBatchRepository(db)
	batch := testBatch()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "production_batches" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateVersioned(context.Background(), batch))
	assert.Equal(t, 4, batch.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchUpdateVersionedStale(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProductionBatchRepository(db)
	batch := testBatch()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "production_batches" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateVersioned(context.Background(), batch)
	assert.True(t, errors.Is(err, ErrStaleVersion), "got %v", err)
	assert.Equal(t, 3, batch.Version, "version is untouched when the write loses")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderUpdateVersionedStaleInsideTx(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProductionOrderRepository(db)
	tm := NewTransactionManager(db)
	order := &model.ProductionOrder{ID: uuid.New(), OrderNumber: "PO000001", Status: model.OrderScheduled, Version: 2}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "production_orders" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := tm.RunInTx(context.Background(), func(txCtx context.Context) error {
		return repo.UpdateVersioned(txCtx, order)
	})
	assert.True(t, errors.Is(err, ErrStaleVersion), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxJoinsOuterTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db)

	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := tm.RunInTx(context.Background(), func(outer context.Context) error {
		return tm.RunInTx(outer, func(inner context.Context) error {
			calls++
			assert.Same(t, outer.Value(txKey), inner.Value(txKey))
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}
