package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/logger"
	"github.com/erp/marketplace-ingest/internal/infrastructure/telemetry"
)

// ServiceConfig tunes an ingestion run
type ServiceConfig struct {
	PageSize        int
	PageCap         int
	DetailDelay     time.Duration
	InitialLookback time.Duration
	WindowOverlap   time.Duration
}

// DefaultServiceConfig returns the defaults used when a field is unset
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		PageSize:        100,
		PageCap:         integration.DefaultPageCap,
		DetailDelay:     300 * time.Millisecond,
		InitialLookback: 24 * time.Hour,
		WindowOverlap:   10 * time.Minute,
	}
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	d := DefaultServiceConfig()
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.PageCap <= 0 {
		c.PageCap = d.PageCap
	}
	if c.DetailDelay < 0 {
		c.DetailDelay = 0
	}
	if c.InitialLookback <= 0 {
		c.InitialLookback = d.InitialLookback
	}
	if c.WindowOverlap < 0 {
		c.WindowOverlap = 0
	}
	return c
}

// ServiceDeps are the collaborators of IngestionService.
// Archiver and Publisher are optional.
type ServiceDeps struct {
	Registry  integration.SchemaRegistry
	Sources   []integration.OrderSource
	Tokens    *TokenManager
	Mapper    *Mapper
	Fetcher   *Fetcher
	Lines     integration.OrderLineRepository
	Runs      integration.IngestionRunRepository
	Sellers   integration.SellerLookup
	Sink      integration.ErrorSink
	Archiver  integration.RawPayloadArchiver
	Publisher integration.RunPublisher
}

// IngestionService exposes the fetch entry points and the full ingestion run
type IngestionService struct {
	registry  integration.SchemaRegistry
	sources   map[integration.Marketplace]integration.OrderSource
	tokens    *TokenManager
	fetcher   *Fetcher
	mapper    *Mapper
	lines     integration.OrderLineRepository
	runs      integration.IngestionRunRepository
	sellers   integration.SellerLookup
	sink      integration.ErrorSink
	archiver  integration.RawPayloadArchiver
	publisher integration.RunPublisher
	metrics   *telemetry.IngestionMetrics
	logger    *zap.Logger
	cfg       ServiceConfig
	now       func() time.Time
}

// NewIngestionService creates an IngestionService
func NewIngestionService(deps ServiceDeps, cfg ServiceConfig, logger *zap.Logger) (*IngestionService, error) {
	if deps.Registry == nil || deps.Tokens == nil || deps.Mapper == nil {
		return nil, &integration.ConfigurationError{Key: "ingestion", Reason: "registry, token manager and mapper are required"}
	}
	if deps.Fetcher == nil {
		deps.Fetcher = NewFetcher(logger)
	}
	s := &IngestionService{
		registry:  deps.Registry,
		sources:   make(map[integration.Marketplace]integration.OrderSource, len(deps.Sources)),
		tokens:    deps.Tokens,
		fetcher:   deps.Fetcher,
		mapper:    deps.Mapper,
		lines:     deps.Lines,
		runs:      deps.Runs,
		sellers:   deps.Sellers,
		sink:      deps.Sink,
		archiver:  deps.Archiver,
		publisher: deps.Publisher,
		logger:    logger.Named("ingestion"),
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
	for _, src := range deps.Sources {
		s.sources[src.Marketplace()] = src
	}
	return s, nil
}

// SetMetrics attaches ingestion metrics
func (s *IngestionService) SetMetrics(metrics *telemetry.IngestionMetrics) {
	s.metrics = metrics
	s.tokens.SetMetrics(metrics)
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// GetNewOrders pages through the search results of a shop.
// Requested fields are validated before any network call.
func (s *IngestionService) GetNewOrders(ctx context.Context, shopCode string, criteria integration.SearchCriteria, fields []string) (*FetchResult, error) {
	cred, source, err := s.prepare(ctx, shopCode, fields)
	if err != nil {
		return nil, err
	}
	return s.fetchNew(ctx, source, s.liveAuth(cred), criteria, fields)
}

// DetailBatch holds decoded details in request order plus the rejected orders
type DetailBatch struct {
	Envelopes []*integration.OrderEnvelope
	Rejected  []integration.RejectedRecord
}

// GetOrderDetails fetches each order one at a time, paced by the detail delay.
// An order whose payload fails to decode is rejected and reported; any other error aborts.
func (s *IngestionService) GetOrderDetails(ctx context.Context, shopCode string, orderIDs []string, fields []string) (*DetailBatch, error) {
	cred, source, err := s.prepare(ctx, shopCode, fields)
	if err != nil {
		return nil, err
	}
	return s.fetchDetails(ctx, source, s.liveAuth(cred), orderIDs, s.detailFields(source, fields))
}

// prepare validates fields against the shop's marketplace, then makes the token usable
func (s *IngestionService) prepare(ctx context.Context, shopCode string, fields ...[]string) (*integration.Credential, integration.OrderSource, error) {
	cred, err := s.tokens.Credential(ctx, shopCode)
	if err != nil {
		return nil, nil, err
	}
	source, err := s.source(cred.Marketplace)
	if err != nil {
		return nil, nil, err
	}
	for _, f := range fields {
		if len(f) == 0 {
			continue
		}
		if err := s.registry.Validate(cred.Marketplace, f); err != nil {
			return nil, nil, err
		}
	}
	cred, err = s.tokens.Ensure(ctx, cred)
	if err != nil {
		return nil, nil, err
	}
	return cred, source, nil
}

func (s *IngestionService) source(m integration.Marketplace) (integration.OrderSource, error) {
	src, ok := s.sources[m]
	if !ok {
		return nil, &integration.ConfigurationError{Key: "marketplaces." + m.String(), Reason: "marketplace is not configured"}
	}
	return src, nil
}

func (s *IngestionService) detailFields(source integration.OrderSource, fields []string) []string {
	if len(fields) > 0 {
		return fields
	}
	return source.DefaultDetailFields()
}

// callCredential re-checks the credential before every marketplace call.
// A run can outlive the refresh buffer of the token it started with.
type callCredential struct {
	tokens *TokenManager
	cred   *integration.Credential
}

func (s *IngestionService) liveAuth(cred *integration.Credential) *callCredential {
	return &callCredential{tokens: s.tokens, cred: cred}
}

func (c *callCredential) shopCode() string {
	return c.cred.ShopCode
}

// next returns the auth for one call, renewing first when needed
func (c *callCredential) next(ctx context.Context) (integration.CallAuth, error) {
	cred, err := c.tokens.Ensure(ctx, c.cred)
	if err != nil {
		return integration.CallAuth{}, err
	}
	c.cred = cred
	return callAuth(cred), nil
}

func (s *IngestionService) fetchNew(
	ctx context.Context,
	source integration.OrderSource,
	creds *callCredential,
	criteria integration.SearchCriteria,
	fields []string,
) (*FetchResult, error) {
	pageSize := s.cfg.PageSize
	if limit := source.MaxPageSize(); limit > 0 && pageSize > limit {
		pageSize = limit
	}
	shopCode := creds.shopCode()

	fetch := func(ctx context.Context, pageIndex, pageSize int) (*integration.SearchPage, error) {
		auth, err := creds.next(ctx)
		if err != nil {
			return nil, err
		}
		page, err := source.SearchOrders(ctx, integration.SearchRequest{
			Auth:      auth,
			Criteria:  criteria,
			Fields:    fields,
			PageIndex: pageIndex,
			PageSize:  pageSize,
		})
		if err != nil {
			return nil, err
		}
		s.archive(ctx, shopCode, "search", fmt.Sprintf("page-%04d", pageIndex), page.Raw)
		for _, r := range page.Rejected {
			s.reportRejected(ctx, source.Marketplace(), "search", r)
		}
		s.metrics.RecordPage(ctx, shopCode, len(page.Records), len(page.Rejected))
		return page, nil
	}
	return s.fetcher.FetchAll(ctx, fetch, pageSize, s.cfg.PageCap)
}

func (s *IngestionService) fetchDetails(
	ctx context.Context,
	source integration.OrderSource,
	creds *callCredential,
	orderIDs []string,
	fields []string,
) (*DetailBatch, error) {
	shopCode := creds.shopCode()
	ctx, span := telemetry.StartSpan(ctx, "ingestion.fetch_details",
		telemetry.SpanAttrShopCode, shopCode,
		"orders", len(orderIDs),
	)
	defer span.End()

	limit := rate.Inf
	if s.cfg.DetailDelay > 0 {
		limit = rate.Every(s.cfg.DetailDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	batch := &DetailBatch{Envelopes: make([]*integration.OrderEnvelope, 0, len(orderIDs))}
	for i, id := range orderIDs {
		if err := limiter.Wait(ctx); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		auth, err := creds.next(ctx)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		res, err := source.GetOrderDetail(ctx, integration.DetailRequest{Auth: auth, OrderID: id, Fields: fields})
		if err != nil {
			var de *integration.DecodeError
			if errors.As(err, &de) {
				r := integration.RejectedRecord{OrderID: id, Position: i, Err: err}
				batch.Rejected = append(batch.Rejected, r)
				s.reportRejected(ctx, source.Marketplace(), "detail", r)
				continue
			}
			telemetry.RecordError(span, err)
			return nil, err
		}
		s.archive(ctx, shopCode, "detail", id, res.Raw)
		batch.Envelopes = append(batch.Envelopes, res.Envelope)
	}
	return batch, nil
}

// ---------------------------------------------------------------------------
// Full run
// ---------------------------------------------------------------------------

// IngestRequest describes one ingestion run
type IngestRequest struct {
	ShopCode string
	Mode     integration.RunMode
	UserTag  string
	// From and To bound order time; zero From continues from the last successful run
	From time.Time
	To   time.Time
	// TerminateOnFallback stops the process when a marketplace stays unavailable
	TerminateOnFallback bool
	// Statuses narrows the search to marketplace status codes; empty uses adapter defaults
	Statuses     []string
	SearchFields []string
	DetailFields []string
}

// Ingest searches new orders, fetches their details, maps them and appends the lines.
// Nothing is written unless the whole run succeeds.
func (s *IngestionService) Ingest(ctx context.Context, req IngestRequest) (*integration.IngestionRun, error) {
	if req.Mode == "" {
		req.Mode = integration.RunModeScheduled
	}
	cred, err := s.tokens.Credential(ctx, req.ShopCode)
	if err != nil {
		return nil, err
	}
	source, err := s.source(cred.Marketplace)
	if err != nil {
		return nil, err
	}

	from, to, err := s.window(ctx, req)
	if err != nil {
		return nil, err
	}
	now := s.now()
	run := integration.NewIngestionRun(req.ShopCode, cred.Marketplace, req.Mode, from, to, now)
	run.UserTag = req.UserTag
	if err := run.Start(now); err != nil {
		return nil, err
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("integration: create ingestion run: %w", err)
	}

	ctx = integration.WithRunInfo(ctx, integration.RunInfo{
		RunID:               run.ID,
		ShopCode:            req.ShopCode,
		Mode:                req.Mode,
		UserTag:             req.UserTag,
		TerminateOnFallback: req.TerminateOnFallback,
	})
	ctx, span := telemetry.StartSpan(ctx, "ingestion.run",
		telemetry.SpanAttrShopCode, req.ShopCode,
		telemetry.SpanAttrMarketplace, cred.Marketplace.String(),
		telemetry.SpanAttrRunID, run.ID.String(),
	)
	defer span.End()

	ctx, log := logger.WithRun(ctx, s.logger, req.ShopCode, cred.Marketplace.String(), run.ID.String())
	log = log.With(zap.String("mode", string(req.Mode)))
	log.Info("Ingestion run started", zap.Time("from", from), zap.Time("to", to))

	var stats integration.RunStats
	telemetry.WithProfilingLabels(ctx, map[string]string{
		telemetry.ProfileLabelShopCode:    req.ShopCode,
		telemetry.ProfileLabelRunID:       run.ID.String(),
		telemetry.ProfileLabelMarketplace: cred.Marketplace.String(),
		telemetry.ProfileLabelMode:        string(req.Mode),
	}, func(ctx context.Context) {
		stats, err = s.execute(ctx, run, cred, source, req)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.fail(ctx, log, run, stats, err)
		return run, err
	}

	if err := run.Succeed(stats, s.now()); err != nil {
		return run, err
	}
	if err := s.runs.Update(context.WithoutCancel(ctx), run); err != nil {
		log.Error("Failed to record run result", zap.Error(err))
	}
	s.metrics.RecordRun(ctx, run.ShopCode, string(run.Mode), string(run.Status), "", stats.Complete, run.Duration())
	s.publish(ctx, log, run)

	log.Info("Ingestion run succeeded",
		zap.Int("reported_total", stats.ReportedTotal),
		zap.Int("records", stats.RecordsFetched),
		zap.Int("rejected", stats.RecordsRejected),
		zap.Int("lines", stats.LinesWritten),
		zap.Int("row_errors", stats.RowErrors),
		zap.Bool("complete", stats.Complete),
		zap.Duration("duration", run.Duration()),
	)
	return run, nil
}

func (s *IngestionService) execute(
	ctx context.Context,
	run *integration.IngestionRun,
	cred *integration.Credential,
	source integration.OrderSource,
	req IngestRequest,
) (integration.RunStats, error) {
	var stats integration.RunStats

	detailFields := s.detailFields(source, req.DetailFields)
	for _, f := range [][]string{req.SearchFields, detailFields} {
		if len(f) == 0 {
			continue
		}
		if err := s.registry.Validate(cred.Marketplace, f); err != nil {
			return stats, err
		}
	}

	cred, err := s.tokens.Ensure(ctx, cred)
	if err != nil {
		return stats, err
	}

	criteria := integration.SearchCriteria{
		OrderTimeFrom: run.WindowFrom,
		OrderTimeTo:   run.WindowTo,
		Statuses:      req.Statuses,
	}
	creds := s.liveAuth(cred)
	found, err := s.fetchNew(ctx, source, creds, criteria, req.SearchFields)
	if err != nil {
		return stats, err
	}
	stats.ReportedTotal = found.Cursor.ReportedTotal
	stats.PagesFetched = found.Cursor.PageIndex
	stats.RecordsFetched = found.Cursor.Accumulated
	stats.RecordsRejected = len(found.Rejected)
	stats.Complete = found.Complete()

	details, err := s.fetchDetails(ctx, source, creds, found.OrderIDs(), detailFields)
	if err != nil {
		return stats, err
	}
	stats.DetailsFetched = len(details.Envelopes)
	stats.RecordsRejected += len(details.Rejected)

	lines, rowErrors := s.mapper.Map(details.Envelopes, s.sellerLookup(cred))
	for _, rowErr := range rowErrors {
		s.report(ctx, integration.ErrorKindRowMapping, "mapper", rowErr, map[string]any{
			"order_id": rowErr.OrderID,
			"line_id":  rowErr.LineID,
			"field":    string(rowErr.Field),
		})
	}
	stats.RowErrors = len(rowErrors)

	ingestedAt := s.now()
	for i := range lines {
		lines[i].RunID = run.ID
		lines[i].IngestedAt = ingestedAt
	}
	if len(lines) > 0 {
		if err := s.lines.AppendBatch(ctx, lines); err != nil {
			return stats, fmt.Errorf("integration: append order lines: %w", err)
		}
	}
	stats.LinesWritten = len(lines)
	s.metrics.RecordLines(ctx, run.ShopCode, len(lines), len(rowErrors))
	return stats, nil
}

func (s *IngestionService) fail(ctx context.Context, log *zap.Logger, run *integration.IngestionRun, stats integration.RunStats, err error) {
	run.Fail(err, stats, s.now())
	kind := integration.KindOf(err)
	log.Error("Ingestion run failed", zap.String("error_kind", kind.String()), zap.Error(err))

	// Expired authorization and exhausted retries were already reported where they happened.
	if kind != integration.ErrorKindAuthExpired && kind != integration.ErrorKindTransientHTTP {
		s.report(ctx, kind, "ingestion.run", err, map[string]any{"phase": "run"})
	}
	if uerr := s.runs.Update(context.WithoutCancel(ctx), run); uerr != nil {
		log.Error("Failed to record run result", zap.Error(uerr))
	}
	s.metrics.RecordRun(ctx, run.ShopCode, string(run.Mode), string(run.Status), kind.String(), false, run.Duration())
	s.publish(ctx, log, run)
}

// window resolves the order-time window, continuing from the last successful run
func (s *IngestionService) window(ctx context.Context, req IngestRequest) (time.Time, time.Time, error) {
	to := req.To
	if to.IsZero() {
		to = s.now()
	}
	from := req.From
	if from.IsZero() {
		last, err := s.runs.LastSucceeded(ctx, req.ShopCode)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if last != nil {
			from = last.WindowTo.Add(-s.cfg.WindowOverlap)
		} else {
			from = to.Add(-s.cfg.InitialLookback)
		}
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, &integration.ConfigurationError{Key: "window", Reason: "from must be before to"}
	}
	return from, to, nil
}

// sellerLookup prefers the configured directory and falls back to the credential's own seller
func (s *IngestionService) sellerLookup(cred *integration.Credential) integration.SellerLookup {
	return integration.SellerLookupFunc(func(sellerID string) (string, bool) {
		if s.sellers != nil {
			if shop, ok := s.sellers.ShopForSeller(sellerID); ok {
				return shop, true
			}
		}
		if cred.SellerID != "" && cred.SellerID == sellerID {
			return cred.ShopCode, true
		}
		return "", false
	})
}

// ---------------------------------------------------------------------------
// Run queries
// ---------------------------------------------------------------------------

// GetRun returns one run
func (s *IngestionService) GetRun(ctx context.Context, id uuid.UUID) (*integration.IngestionRun, error) {
	return s.runs.FindByID(ctx, id)
}

// ListRuns returns the most recent runs, optionally for one shop
func (s *IngestionService) ListRuns(ctx context.Context, shopCode string, limit int) ([]integration.IngestionRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.runs.FindRecent(ctx, shopCode, limit)
}

// ---------------------------------------------------------------------------
// Side channels
// ---------------------------------------------------------------------------

func (s *IngestionService) report(ctx context.Context, kind integration.ErrorKind, endpoint string, err error, extra map[string]any) {
	if s.sink == nil {
		return
	}
	s.sink.Report(ctx, integration.NewErrorReport(ctx, kind, endpoint, "", err, extra))
}

func (s *IngestionService) reportRejected(ctx context.Context, m integration.Marketplace, level string, r integration.RejectedRecord) {
	extra := map[string]any{
		"order_id": r.OrderID,
		"position": r.Position,
		"level":    level,
	}
	var de *integration.DecodeError
	if errors.As(r.Err, &de) {
		extra["group"] = de.Group
		extra["field"] = de.Field
		extra["raw"] = de.Raw
	}
	s.report(ctx, integration.ErrorKindDecode, m.String()+"."+level, r.Err, extra)
}

func (s *IngestionService) archive(ctx context.Context, shopCode, kind, key string, body []byte) {
	if s.archiver == nil || len(body) == 0 {
		return
	}
	payload := integration.RawPayload{ShopCode: shopCode, Kind: kind, Key: key, Body: body}
	if info, ok := integration.RunInfoFrom(ctx); ok {
		payload.RunID = info.RunID
	}
	if err := s.archiver.Archive(ctx, payload); err != nil {
		s.logger.Warn("Failed to archive raw payload",
			zap.String("shop_code", shopCode),
			zap.String("kind", kind),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

func (s *IngestionService) publish(ctx context.Context, log *zap.Logger, run *integration.IngestionRun) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRunCompleted(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("Failed to publish run completion", zap.Error(err))
	}
}

func callAuth(cred *integration.Credential) integration.CallAuth {
	return integration.CallAuth{
		ShopCode:    cred.ShopCode,
		SellerID:    cred.SellerID,
		AccessToken: cred.AccessToken,
	}
}
