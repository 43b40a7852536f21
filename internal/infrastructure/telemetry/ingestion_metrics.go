package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// IngestionMetrics tracks paging, decoding, mapping and token activity of ingestion runs.
// A nil *IngestionMetrics is valid and records nothing.
type IngestionMetrics struct {
	pagesFetched    *Counter
	recordsFetched  *Counter
	recordsRejected *Counter
	linesWritten    *Counter
	rowErrors       *Counter
	tokenRenewals   *Counter
	retries         *Counter
	fallbacks       *Counter
	runs            *Counter
	runDuration     *Histogram
}

// NewIngestionMetrics registers the ingestion instruments on meter
func NewIngestionMetrics(meter metric.Meter) (*IngestionMetrics, error) {
	m := &IngestionMetrics{}
	counters := []struct {
		target **Counter
		name   string
		desc   string
		unit   string
	}{
		{&m.pagesFetched, "ingest_pages_fetched_total", "Search result pages fetched", "{page}"},
		{&m.recordsFetched, "ingest_records_fetched_total", "Order records received from search pages", "{record}"},
		{&m.recordsRejected, "ingest_records_rejected_total", "Order records rejected by the decoder", "{record}"},
		{&m.linesWritten, "ingest_order_lines_written_total", "Canonical order lines persisted", "{line}"},
		{&m.rowErrors, "ingest_row_errors_total", "Rows skipped during canonical mapping", "{row}"},
		{&m.tokenRenewals, "ingest_token_renewals_total", "Access token renewals by kind", "{renewal}"},
		{&m.retries, "ingest_http_retries_total", "Marketplace calls retried after a transient failure", "{retry}"},
		{&m.fallbacks, "ingest_http_fallbacks_total", "Marketplace calls that exhausted their retries", "{call}"},
		{&m.runs, "ingest_runs_total", "Finished ingestion runs by status", "{run}"},
	}
	for _, c := range counters {
		counter, err := NewCounter(meter, c.name, c.desc, c.unit)
		if err != nil {
			return nil, err
		}
		*c.target = counter
	}

	h, err := NewHistogram(meter, HistogramOpts{
		Name:        "ingest_run_duration_seconds",
		Description: "Wall-clock duration of ingestion runs",
		Unit:        "s",
		Boundaries:  []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})
	if err != nil {
		return nil, err
	}
	m.runDuration = h
	return m, nil
}

// RecordPage records one fetched search page with its record counts
func (m *IngestionMetrics) RecordPage(ctx context.Context, shop string, records, rejected int) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrShopCode.String(shop)}
	m.pagesFetched.Inc(ctx, attrs...)
	m.recordsFetched.Add(ctx, int64(records), attrs...)
	m.recordsRejected.Add(ctx, int64(rejected), attrs...)
}

// RecordLines records persisted lines and skipped rows
func (m *IngestionMetrics) RecordLines(ctx context.Context, shop string, written, skipped int) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrShopCode.String(shop)}
	m.linesWritten.Add(ctx, int64(written), attrs...)
	m.rowErrors.Add(ctx, int64(skipped), attrs...)
}

// RecordTokenRenewal records an authorize or refresh exchange
func (m *IngestionMetrics) RecordTokenRenewal(ctx context.Context, shop, renewal string) {
	if m == nil {
		return
	}
	m.tokenRenewals.Inc(ctx, AttrShopCode.String(shop), AttrRenewal.String(renewal))
}

// RecordRetry records a retried marketplace call
func (m *IngestionMetrics) RecordRetry(ctx context.Context, endpoint, method string) {
	if m == nil {
		return
	}
	m.retries.Inc(ctx, AttrEndpoint.String(endpoint), AttrHTTPMethod.String(method))
}

// RecordFallback records a marketplace call that gave up
func (m *IngestionMetrics) RecordFallback(ctx context.Context, endpoint, method string) {
	if m == nil {
		return
	}
	m.fallbacks.Inc(ctx, AttrEndpoint.String(endpoint), AttrHTTPMethod.String(method))
}

// RecordRun records a finished run
func (m *IngestionMetrics) RecordRun(ctx context.Context, shop, mode, status, errorKind string, complete bool, d time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		AttrShopCode.String(shop),
		AttrRunMode.String(mode),
		AttrRunStatus.String(status),
		AttrComplete.Bool(complete),
	}
	if errorKind != "" {
		attrs = append(attrs, AttrErrorKind.String(errorKind))
	}
	m.runs.Inc(ctx, attrs...)
	m.runDuration.RecordDuration(ctx, d, attrs...)
}
