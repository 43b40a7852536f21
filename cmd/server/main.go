package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/erp/marketplace-ingest/internal/bootstrap"
	"github.com/erp/marketplace-ingest/internal/infrastructure/auth"
	"github.com/erp/marketplace-ingest/internal/infrastructure/config"
	"github.com/erp/marketplace-ingest/internal/infrastructure/logger"
	"github.com/erp/marketplace-ingest/internal/infrastructure/scheduler"
	"github.com/erp/marketplace-ingest/internal/infrastructure/telemetry"
	"github.com/erp/marketplace-ingest/internal/interfaces/http/handler"
	"github.com/erp/marketplace-ingest/internal/interfaces/http/router"
)

//	@title						Marketplace Ingest Ops API
//	@version					1.0
//	@description				Operations API for marketplace order ingestion runs, shop credentials and schedules.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and the ops JWT.

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./config.toml or /app/config.toml)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry comes first so the log bridge and metrics cover startup
	providers, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	log = providers.BridgeLogger(log, zapcore.InfoLevel)

	profCfg := cfg.Telemetry.Profiling
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           profCfg.Enabled,
		ServerAddress:     profCfg.ServerAddress,
		ApplicationName:   profCfg.ApplicationName,
		BasicAuthUser:     profCfg.BasicAuthUser,
		BasicAuthPassword: profCfg.BasicAuthPassword,
		ProfileTypes:      profCfg.ProfileTypes,
		UploadRate:        profCfg.UploadRate,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profCfg.SpanProfiles && profiler.IsEnabled() && !providers.EnableSpanProfiles() {
		log.Warn("Span profiles need telemetry.enabled, skipping")
	}

	log.Info("Starting marketplace ingest",
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
		zap.Int("shops", len(cfg.EnabledShops())),
	)

	eng, err := bootstrap.Build(ctx, cfg, log,
		bootstrap.WithMeter(providers.Meter(bootstrap.MeterName)),
		bootstrap.WithAutoMigrate(),
	)
	if err != nil {
		log.Fatal("Failed to assemble ingestion engine", zap.Error(err))
	}
	log.Info("Database connected and migrated")

	// Worker pool plus interval trigger. The pool always runs so operators can
	// queue manual runs even with interval scheduling disabled.
	executor := scheduler.NewServiceExecutor(eng.Service, cfg.Shop, log)
	executor.SetTerminateOnFallback(cfg.Ingestion.Retry.TerminateOnFallback)

	ingestScheduler, err := scheduler.NewIngestionScheduler(
		scheduler.IngestionSchedulerConfigFrom(cfg.Scheduler), executor, log)
	if err != nil {
		log.Fatal("Failed to create ingestion scheduler", zap.Error(err))
	}
	if err := ingestScheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start ingestion scheduler", zap.Error(err))
	}

	triggerCfg := scheduler.DefaultIntervalTriggerConfig()
	triggerCfg.DefaultInterval = cfg.Scheduler.DefaultInterval
	trigger := scheduler.NewIntervalTrigger(triggerCfg, ingestScheduler, cfg.Shops, log)
	if cfg.Scheduler.Enabled {
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start interval trigger", zap.Error(err))
		}
	} else {
		log.Info("Interval scheduling disabled, manual runs only")
	}

	engine, err := router.NewOpsEngine(router.OpsDependencies{
		ServiceName:  cfg.Telemetry.ServiceName,
		HTTP:         cfg.HTTP,
		Swagger:      cfg.Swagger,
		Tokens:       auth.NewJWTService(cfg.JWT),
		Meter:        providers.Meter("github.com/erp/marketplace-ingest/http"),
		Tracing:      providers.IsEnabled(),
		Logger:       log,
		System:       handler.NewSystemHandler(cfg.App.Name, version, eng.DB),
		Ingestion:    handler.NewIngestionHandler(eng.Service, trigger),
		Credentials:  handler.NewCredentialHandler(eng.Credentials, eng.Tokens, cfg.Ingestion.TokenBuffer),
		Scheduler:    handler.NewSchedulerHandler(ingestScheduler, trigger),
		ErrorReports: handler.NewErrorReportHandler(eng.ErrorReports),
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down...")
	case err := <-serverErr:
		log.Error("Server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := trigger.Stop(shutdownCtx); err != nil {
		log.Error("Interval trigger did not stop cleanly", zap.Error(err))
	}
	// Cancelled runs fail as a whole; no partial lines are written
	if err := ingestScheduler.Stop(shutdownCtx); err != nil {
		log.Error("Ingestion scheduler did not stop cleanly", zap.Error(err))
	}
	if err := eng.Close(); err != nil {
		log.Error("Error releasing resources", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down telemetry", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
