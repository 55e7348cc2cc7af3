package repository

import (
	"context"
	"errors"
	"testing"

	"ricemill/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.NumberSequence{}))
	return db
}

func TestSequenceNextIsPerName(t *testing.T) {
	repo := NewSequenceRepository(newSQLiteDB(t))
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := repo.Next(ctx, "PRODUCTION_ORDER")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := repo.Next(ctx, "PRODUCTION_BATCH")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestSequenceRolledBackWithTransaction(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewSequenceRepository(db)
	tm := NewTransactionManager(db)
	ctx := context.Background()
	boom := errors.New("insert failed")

	err := tm.RunInTx(ctx, func(txCtx context.Context) error {
		n, err := repo.Next(txCtx, "PRODUCTION_ORDER")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := repo.Next(ctx, "PRODUCTION_ORDER")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
