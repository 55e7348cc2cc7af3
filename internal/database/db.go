package database

import (
	"fmt"

	"ricemill/internal/config"
	"ricemill/internal/model"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Models lists every table owned by the service, in migration order.
func Models() []interface{} {
	return []interface{}{
		&model.Machine{},
		&model.Employee{},
		&model.NumberSequence{},
		&model.ProductionOrder{},
		&model.ProductionBatch{},
		&model.BatchInput{},
		&model.BatchOutput{},
		&model.YieldRecord{},
		&model.AuditLog{},
		&model.Permission{},
		&model.Role{},
	}
}

// NewConnection opens the PostgreSQL pool and migrates the schema.
func NewConnection(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	log.Info("database ready", zap.String("host", cfg.Host), zap.String("name", cfg.Name))

	return db, nil
}
