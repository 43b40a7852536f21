package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	_ "github.com/erp/marketplace-ingest/docs"
	"github.com/erp/marketplace-ingest/internal/infrastructure/auth"
	"github.com/erp/marketplace-ingest/internal/infrastructure/config"
	"github.com/erp/marketplace-ingest/internal/infrastructure/logger"
	"github.com/erp/marketplace-ingest/internal/interfaces/http/handler"
	"github.com/erp/marketplace-ingest/internal/interfaces/http/middleware"
)

// Health endpoints served without a token
const (
	HealthPath = "/health"
	ReadyPath  = "/ready"
)

// SwaggerPath serves the ops API documentation when swagger.enabled
const SwaggerPath = "/swagger/*any"

// OpsDependencies are the handlers and settings of the ops API. Scheduler and
// ErrorReports may be nil; their routes are then not mounted.
type OpsDependencies struct {
	ServiceName string
	HTTP        config.HTTPConfig
	Swagger     config.SwaggerConfig
	Tokens      middleware.TokenValidator
	Meter       metric.Meter
	Tracing     bool
	Logger      *zap.Logger

	System       *handler.SystemHandler
	Ingestion    *handler.IngestionHandler
	Credentials  *handler.CredentialHandler
	Scheduler    *handler.SchedulerHandler
	ErrorReports *handler.ErrorReportHandler
}

// NewOpsEngine builds the gin engine of the ops API. Every /api/v1 route needs
// a bearer token; scopes gate reads, manual triggers and credential writes.
func NewOpsEngine(deps OpsDependencies) (*gin.Engine, error) {
	engine := gin.New()
	if err := engine.SetTrustedProxies(deps.HTTP.TrustedProxies); err != nil {
		return nil, err
	}

	httpMetrics, err := middleware.HTTPMetrics(deps.Meter, HealthPath, ReadyPath)
	if err != nil {
		return nil, err
	}
	engine.Use(
		logger.Recovery(deps.Logger),
		middleware.Tracing(middleware.TracingConfig{ServiceName: deps.ServiceName, Enabled: deps.Tracing}),
		logger.GinMiddleware(deps.Logger, logger.WithSkipPaths(HealthPath, ReadyPath)),
		httpMetrics,
		middleware.BodyLimit(deps.HTTP.MaxBodySize),
	)
	engine.GET(HealthPath, deps.System.Health)
	engine.GET(ReadyPath, deps.System.Ready)

	triggerLimit := middleware.RateLimit(middleware.NewRateLimiter(deps.HTTP.TriggerRateLimit, 1))

	system := NewDomainGroup("/system", auth.ScopeRunsRead).
		GET("/info", deps.System.GetSystemInfo)

	ingestion := NewDomainGroup("/ingestion", auth.ScopeRunsRead).
		GET("/runs", deps.Ingestion.ListRuns).
		GET("/runs/:id", deps.Ingestion.GetRun).
		Handle(http.MethodPost, "/shops/:code/runs", auth.ScopeRunsTrigger, triggerLimit, deps.Ingestion.TriggerRun)
	if deps.ErrorReports != nil {
		ingestion.GET("/errors", deps.ErrorReports.ListErrorReports)
	}

	credentials := NewDomainGroup("/credentials", auth.ScopeRunsRead).
		GET("", deps.Credentials.ListCredentials).
		GET("/:code", deps.Credentials.GetCredential).
		Handle(http.MethodPost, "/:code/authorize", auth.ScopeCredentialsWrite, deps.Credentials.Authorize)

	r := NewRouter(engine).Register(system).Register(ingestion).Register(credentials)
	if deps.Scheduler != nil {
		r.Register(NewDomainGroup("/scheduler", auth.ScopeRunsRead).
			GET("/stats", deps.Scheduler.GetStats).
			GET("/jobs", deps.Scheduler.ListJobs).
			GET("/schedules", deps.Scheduler.ListSchedules))
	}
	jwtAuth := middleware.JWTAuth(middleware.JWTMiddlewareConfig{Validator: deps.Tokens, Logger: deps.Logger})
	r.Setup(jwtAuth, middleware.SpanEnricher())

	if deps.Swagger.Enabled {
		var docs []gin.HandlerFunc
		if deps.Swagger.RequireAuth {
			docs = append(docs, jwtAuth, middleware.RequireScope(auth.ScopeRunsRead))
		}
		engine.GET(SwaggerPath, append(docs, ginSwagger.WrapHandler(swaggerFiles.Handler))...)
	}
	for _, route := range r.Routes() {
		deps.Logger.Debug("Ops route mounted",
			zap.String("method", route.Method),
			zap.String("path", route.Path),
			zap.String("scope", string(route.Scope)),
		)
	}
	return engine, nil
}
