// Package bootstrap assembles the ingestion engine from configuration.
// The server and the command line tools share it.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	appintegration "github.com/erp/marketplace-ingest/internal/application/integration"
	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/cache"
	"github.com/erp/marketplace-ingest/internal/infrastructure/config"
	"github.com/erp/marketplace-ingest/internal/infrastructure/errorsink"
	"github.com/erp/marketplace-ingest/internal/infrastructure/logger"
	"github.com/erp/marketplace-ingest/internal/infrastructure/messaging"
	"github.com/erp/marketplace-ingest/internal/infrastructure/migration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/persistence"
	"github.com/erp/marketplace-ingest/internal/infrastructure/resilience"
	"github.com/erp/marketplace-ingest/internal/infrastructure/schema"
	"github.com/erp/marketplace-ingest/internal/infrastructure/storage"
	"github.com/erp/marketplace-ingest/internal/infrastructure/telemetry"
	"github.com/erp/marketplace-ingest/migrations"
)

// MeterName is the instrumentation scope of the ingestion metrics
const MeterName = "github.com/erp/marketplace-ingest"

// Engine holds the assembled components
type Engine struct {
	Config       *config.Config
	DB           *persistence.Database
	SQL          *sql.DB
	Registry     *schema.Registry
	Credentials  *persistence.GormCredentialRepository
	Runs         *persistence.GormIngestionRunRepository
	Lines        *persistence.GormOrderLineRepository
	ErrorReports *persistence.GormErrorReportRepository
	Sink         integration.ErrorSink
	Tokens       *appintegration.TokenManager
	Service      *appintegration.IngestionService

	logger  *zap.Logger
	closers []func() error
}

// Option configures Build
type Option func(*options)

type options struct {
	meter       metric.Meter
	autoMigrate bool
	offline     bool
}

// WithMeter records ingestion metrics on meter instead of the global provider
func WithMeter(meter metric.Meter) Option {
	return func(o *options) { o.meter = meter }
}

// WithAutoMigrate applies the embedded migrations before anything else touches the database
func WithAutoMigrate() Option {
	return func(o *options) { o.autoMigrate = true }
}

// WithoutSideChannels skips the raw payload archive and the run event publisher
func WithoutSideChannels() Option {
	return func(o *options) { o.offline = true }
}

// Build opens the database and wires repositories, adapters, token renewal and
// the ingestion service. Close releases everything Build opened.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (_ *Engine, err error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.meter == nil {
		o.meter = otel.GetMeterProvider().Meter(MeterName)
	}

	e := &Engine{Config: cfg, logger: log}
	defer func() {
		if err != nil {
			_ = e.Close()
		}
	}()

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, log, logger.MapGormLogLevel(cfg.Log.Level))
	if err != nil {
		return nil, err
	}
	e.DB = db
	e.closers = append(e.closers, db.Close)

	e.SQL = db.SQL()
	if o.autoMigrate {
		if err := migrate(e.SQL, log); err != nil {
			return nil, err
		}
	}
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        "postgresql",
	}, log); err != nil {
		return nil, err
	}
	poolGauges, err := telemetry.RegisterPoolMetrics(o.meter, db.PoolStats)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, poolGauges.Unregister)

	e.Registry = schema.Default()
	e.Credentials = persistence.NewGormCredentialRepository(db.DB)
	e.Runs = persistence.NewGormIngestionRunRepository(db.DB)
	e.Lines = persistence.NewGormOrderLineRepository(db.DB)
	e.ErrorReports = persistence.NewGormErrorReportRepository(db.DB)
	e.Sink = errorsink.NewMultiSink(
		errorsink.NewZapSink(log),
		errorsink.NewRepositorySink(e.ErrorReports, log),
	)

	metrics, err := telemetry.NewIngestionMetrics(o.meter)
	if err != nil {
		return nil, err
	}
	engine := resilience.NewEngine(RetryPolicy(cfg.Ingestion.Retry), e.Sink, log, resilience.WithObserver(metrics))

	lock, closeLock, err := cache.NewRenewalLockFactory(cfg.Redis, cache.WithLogger(log)).CreateLock()
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, closeLock)

	sources, clients, err := marketplaceAdapters(cfg.Marketplaces, e.Registry, engine)
	if err != nil {
		return nil, err
	}
	e.Tokens = appintegration.NewTokenManager(e.Credentials, clients, lock, e.Sink, log,
		appintegration.WithTokenBuffer(cfg.Ingestion.TokenBuffer))

	mapper, err := appintegration.NewMapper(e.Registry)
	if err != nil {
		return nil, err
	}
	deps := appintegration.ServiceDeps{
		Registry: e.Registry,
		Sources:  sources,
		Tokens:   e.Tokens,
		Mapper:   mapper,
		Lines:    e.Lines,
		Runs:     e.Runs,
		Sellers:  SellerDirectory(cfg.Shops),
		Sink:     e.Sink,
	}
	if !o.offline {
		if err := e.sideChannels(ctx, &deps); err != nil {
			return nil, err
		}
	}

	e.Service, err = appintegration.NewIngestionService(deps, ServiceConfig(cfg.Ingestion), log)
	if err != nil {
		return nil, err
	}
	e.Service.SetMetrics(metrics)
	return e, nil
}

// sideChannels attaches the S3 archive and the Kafka publisher when enabled
func (e *Engine) sideChannels(ctx context.Context, deps *appintegration.ServiceDeps) error {
	cfg := e.Config
	if cfg.Storage.Enabled && cfg.Ingestion.ArchiveRaw {
		archiver, err := storage.NewS3Archiver(ctx, &cfg.Storage, storage.WithLogger(e.logger))
		if err != nil {
			return err
		}
		if err := archiver.EnsureBucket(ctx); err != nil {
			return err
		}
		deps.Archiver = archiver
		e.logger.Info("Raw payload archive enabled", zap.String("bucket", archiver.Bucket()))
	}
	if cfg.Kafka.Enabled {
		publisher, err := messaging.NewKafkaRunPublisher(cfg.Kafka, e.logger)
		if err != nil {
			return err
		}
		e.closers = append(e.closers, publisher.Close)
		deps.Publisher = publisher
		e.logger.Info("Run events enabled", zap.String("topic", cfg.Kafka.Topic))
	}
	return nil
}

// Close releases resources in reverse order of acquisition
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

func migrate(db *sql.DB, log *zap.Logger) error {
	m, err := migration.NewFromFS(db, migrations.FS, log)
	if err != nil {
		return err
	}
	return m.Up()
}
