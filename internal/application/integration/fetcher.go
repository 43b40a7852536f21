package integration

import (
	"context"

	"go.uber.org/zap"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/telemetry"
)

// PageFunc fetches one search page; pageIndex starts at 1
type PageFunc func(ctx context.Context, pageIndex, pageSize int) (*integration.SearchPage, error)

// FetchResult is the outcome of a paginated fetch
type FetchResult struct {
	Records  []*integration.OrderEnvelope
	Rejected []integration.RejectedRecord
	Cursor   integration.PageCursor
}

// Complete reports whether every record of the reported total was fetched
func (r *FetchResult) Complete() bool {
	return r.Cursor.Complete
}

// OrderIDs returns the distinct order ids of the fetched records in wire order
func (r *FetchResult) OrderIDs() []string {
	seen := make(map[string]bool, len(r.Records))
	ids := make([]string, 0, len(r.Records))
	for _, rec := range r.Records {
		if rec.OrderID == "" || seen[rec.OrderID] {
			continue
		}
		seen[rec.OrderID] = true
		ids = append(ids, rec.OrderID)
	}
	return ids
}

// Fetcher drives sequential multi-page retrieval
type Fetcher struct {
	logger *zap.Logger
}

// NewFetcher creates a Fetcher
func NewFetcher(logger *zap.Logger) *Fetcher {
	return &Fetcher{logger: logger.Named("fetcher")}
}

// FetchAll reads the total from the first page and fetches the remaining pages in order.
// It stops at cap with Complete=false when the total exceeds it, and fails with
// *integration.FatalConsistencyError when the pages do not add up to the expected count.
// Rejected records count toward the accumulated total.
func (f *Fetcher) FetchAll(ctx context.Context, fetch PageFunc, pageSize, maxRecords int) (*FetchResult, error) {
	if pageSize <= 0 {
		return nil, &integration.ConfigurationError{Key: "ingestion.page_size", Reason: "must be positive"}
	}
	if maxRecords <= 0 {
		maxRecords = integration.DefaultPageCap
	}

	ctx, span := telemetry.StartSpan(ctx, "fetcher.fetch_all")
	defer span.End()

	result := &FetchResult{Cursor: integration.PageCursor{PageIndex: 1, PageSize: pageSize}}
	first, err := fetch(ctx, 1, pageSize)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	result.Cursor.ReportedTotal = first.Total
	capped := first.Total > maxRecords
	limit := result.Cursor.Limit(maxRecords)
	lastPage := result.Cursor.LastPage(maxRecords)

	f.accumulate(result, first, limit, capped)

	for page := 2; page <= lastPage && result.Cursor.Accumulated < limit; page++ {
		next, err := fetch(ctx, page, pageSize)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		result.Cursor.PageIndex = page
		if next.WireCount() == 0 {
			break
		}
		f.accumulate(result, next, limit, capped)
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrPage, result.Cursor.PageIndex,
		"reported_total", result.Cursor.ReportedTotal,
		"accumulated", result.Cursor.Accumulated,
	)

	if result.Cursor.Accumulated != limit {
		err := &integration.FatalConsistencyError{
			Total:       result.Cursor.ReportedTotal,
			Expected:    limit,
			Accumulated: result.Cursor.Accumulated,
			Pages:       result.Cursor.PageIndex,
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	result.Cursor.Complete = !capped
	if capped {
		f.logger.Warn("Fetch stopped at cap",
			zap.Int("reported_total", result.Cursor.ReportedTotal),
			zap.Int("cap", maxRecords),
			zap.Int("pages", result.Cursor.PageIndex),
		)
	}
	return result, nil
}

// accumulate appends a page. Only a capped fetch truncates; otherwise surplus
// records are kept so the consistency check sees them.
func (f *Fetcher) accumulate(result *FetchResult, page *integration.SearchPage, limit int, capped bool) {
	wire := page.WireCount()
	if capped && result.Cursor.Accumulated+wire > limit {
		keep := limit - result.Cursor.Accumulated
		records, rejected := truncatePage(page, keep)
		result.Records = append(result.Records, records...)
		result.Rejected = append(result.Rejected, rejected...)
		result.Cursor.Accumulated += keep
		return
	}
	result.Records = append(result.Records, page.Records...)
	result.Rejected = append(result.Rejected, page.Rejected...)
	result.Cursor.Accumulated += wire
}

// truncatePage keeps the first keep wire positions of a page
func truncatePage(page *integration.SearchPage, keep int) ([]*integration.OrderEnvelope, []integration.RejectedRecord) {
	rejectedAt := make(map[int]bool, len(page.Rejected))
	var rejected []integration.RejectedRecord
	for _, r := range page.Rejected {
		rejectedAt[r.Position] = true
		if r.Position < keep {
			rejected = append(rejected, r)
		}
	}
	records := make([]*integration.OrderEnvelope, 0, keep)
	next := 0
	for pos := 0; pos < keep && next < len(page.Records); pos++ {
		if rejectedAt[pos] {
			continue
		}
		records = append(records, page.Records[next])
		next++
	}
	return records, rejected
}
