package scheduler

import (
	"context"

	"go.uber.org/zap"

	appintegration "github.com/erp/marketplace-ingest/internal/application/integration"
	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/config"
)

// ---------------------------------------------------------------------------
// ServiceExecutor
// ---------------------------------------------------------------------------

// Ingester runs one ingestion. Satisfied by *appintegration.IngestionService.
type Ingester interface {
	Ingest(ctx context.Context, req appintegration.IngestRequest) (*integration.IngestionRun, error)
}

// ShopLookup returns the configuration of a shop
type ShopLookup func(code string) (config.ShopConfig, bool)

// ServiceExecutor implements IngestionExecutor on top of the ingestion service
type ServiceExecutor struct {
	ingester            Ingester
	shops               ShopLookup
	logger              *zap.Logger
	terminateOnFallback bool
}

var _ IngestionExecutor = (*ServiceExecutor)(nil)

// NewServiceExecutor creates a new executor. shops may be nil.
func NewServiceExecutor(ingester Ingester, shops ShopLookup, logger *zap.Logger) *ServiceExecutor {
	return &ServiceExecutor{
		ingester: ingester,
		shops:    shops,
		logger:   logger,
	}
}

// SetTerminateOnFallback makes every run stop the process once a marketplace
// stays unavailable after all retries
func (e *ServiceExecutor) SetTerminateOnFallback(terminate bool) {
	e.terminateOnFallback = terminate
}

// Execute runs the job and copies the run outcome onto it
func (e *ServiceExecutor) Execute(ctx context.Context, job *IngestionJob) error {
	req := appintegration.IngestRequest{
		ShopCode: job.ShopCode,
		Mode:     job.Mode,
		UserTag:  job.UserTag,
		From:     job.From,
		To:       job.To,

		TerminateOnFallback: e.terminateOnFallback,
	}
	if e.shops != nil {
		if shop, ok := e.shops(job.ShopCode); ok {
			req.Statuses = shop.Statuses
			if req.UserTag == "" {
				req.UserTag = shop.UserTag
			}
		}
	}

	run, err := e.ingester.Ingest(ctx, req)
	if run != nil {
		job.RunID = run.ID
		job.Stats = run.Stats
	}
	if err != nil {
		return err
	}
	job.Complete(run.ID, run.Stats)
	return nil
}
