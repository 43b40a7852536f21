package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/erp/marketplace-ingest/internal/infrastructure/config"
	"github.com/erp/marketplace-ingest/internal/infrastructure/logger"
)

// Database is the gorm handle plus the pool it runs on
type Database struct {
	DB  *gorm.DB
	sql *sql.DB
}

// NewDatabase connects with SQL logged through zap at warn level and above
func NewDatabase(cfg *config.DatabaseConfig, zapLogger *zap.Logger) (*Database, error) {
	return NewDatabaseWithLogger(cfg, zapLogger, gormlogger.Warn)
}

// NewDatabaseWithLogger connects, sizes the pool and pings once.
// Prepared statements stay on: runs repeat the same handful of queries.
func NewDatabaseWithLogger(cfg *config.DatabaseConfig, zapLogger *zap.Logger, logLevel gormlogger.LogLevel) (*Database, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:                 logger.NewGormLogger(zapLogger.Named("gorm"), logLevel),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	d, err := wrap(db)
	if err != nil {
		return nil, err
	}

	d.sql.SetMaxOpenConns(cfg.MaxOpenConns)
	d.sql.SetMaxIdleConns(cfg.MaxIdleConns)
	d.sql.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	d.sql.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.sql.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database %s/%s: %w", cfg.Host, cfg.DBName, err)
	}
	return d, nil
}

func wrap(db *gorm.DB) (*Database, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return &Database{DB: db, sql: sqlDB}, nil
}

// SQL returns the pool, for golang-migrate and readiness checks
func (d *Database) SQL() *sql.DB {
	return d.sql
}

// PingContext reports whether the database answers
func (d *Database) PingContext(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

// PoolStats is read by the pool gauges on every metrics collection
func (d *Database) PoolStats() sql.DBStats {
	return d.sql.Stats()
}

// Close closes the pool. Repositories built on DB fail afterwards.
func (d *Database) Close() error {
	return d.sql.Close()
}
