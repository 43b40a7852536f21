// Package errorsink provides integration.ErrorSink implementations.
// Sinks never fail the caller: storage problems are logged and dropped.
package errorsink

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Zap
// ---------------------------------------------------------------------------

// ZapSink writes every report as a structured warning
type ZapSink struct {
	logger *zap.Logger
}

var _ integration.ErrorSink = (*ZapSink)(nil)

// NewZapSink creates a ZapSink
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger.Named("errorsink")}
}

// Report logs the report
func (s *ZapSink) Report(_ context.Context, r integration.ErrorReport) {
	fields := []zap.Field{
		zap.String("kind", string(r.Kind)),
		zap.String("endpoint", r.Endpoint),
		zap.String("shop_code", r.ShopCode),
		zap.String("message", r.Message),
	}
	if r.Method != "" {
		fields = append(fields, zap.String("method", r.Method))
	}
	if r.UserTag != "" {
		fields = append(fields, zap.String("user_tag", r.UserTag))
	}
	if r.RunID != uuid.Nil {
		fields = append(fields, zap.String("run_id", r.RunID.String()))
	}
	if len(r.Extra) > 0 {
		fields = append(fields, zap.Any("extra", r.Extra))
	}
	s.logger.Warn("Integration error reported", fields...)
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// ReportStore persists error reports
type ReportStore interface {
	Save(ctx context.Context, report integration.ErrorReport) error
}

// RepositorySink persists reports for the operational dashboard
type RepositorySink struct {
	store   ReportStore
	logger  *zap.Logger
	timeout time.Duration
}

var _ integration.ErrorSink = (*RepositorySink)(nil)

// NewRepositorySink creates a RepositorySink
func NewRepositorySink(store ReportStore, logger *zap.Logger) *RepositorySink {
	return &RepositorySink{
		store:   store,
		logger:  logger.Named("errorsink"),
		timeout: 5 * time.Second,
	}
}

// Report saves the report. A cancelled run still gets its failure recorded.
func (s *RepositorySink) Report(ctx context.Context, r integration.ErrorReport) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.OccurredAt.IsZero() {
		r.OccurredAt = time.Now()
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.store.Save(saveCtx, r); err != nil {
		s.logger.Error("Failed to persist error report",
			zap.String("kind", string(r.Kind)),
			zap.String("shop_code", r.ShopCode),
			zap.Error(err),
		)
	}
}

// ---------------------------------------------------------------------------
// Fan-out
// ---------------------------------------------------------------------------

// MultiSink forwards every report to each sink in order
type MultiSink []integration.ErrorSink

var _ integration.ErrorSink = MultiSink(nil)

// NewMultiSink drops nil sinks
func NewMultiSink(sinks ...integration.ErrorSink) MultiSink {
	out := make(MultiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Report forwards r
func (m MultiSink) Report(ctx context.Context, r integration.ErrorReport) {
	for _, s := range m {
		s.Report(ctx, r)
	}
}
