package telemetry

import (
	"context"
	"sort"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"github.com/grafana/pyroscope-go"
	"go.opentelemetry.io/otel/trace"
)

// Profile label keys attached to ingestion work.
const (
	ProfileLabelShopCode    = "shop_code"
	ProfileLabelRunID       = "run_id"
	ProfileLabelMarketplace = "marketplace"
	ProfileLabelMode        = "mode"
)

// MaxLabelValueLength caps label values so a malformed key cannot blow up profile storage.
const MaxLabelValueLength = 128

// WithProfilingLabels runs fn with pprof labels attached to the goroutine.
// Empty keys and values are dropped and long values truncated.
// Labels propagate to goroutines started from the ctx passed to fn.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// sanitizeLabels returns key/value pairs sorted by key.
func sanitizeLabels(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k, v := range labels {
		if k == "" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		v := labels[k]
		if len(v) > MaxLabelValueLength {
			v = v[:MaxLabelValueLength]
		}
		pairs = append(pairs, k, v)
	}
	return pairs
}

// WrapSpanProfiles makes every sampled span tag CPU samples with its root span_id,
// linking Pyroscope profiles to traces.
func WrapSpanProfiles(tp trace.TracerProvider) trace.TracerProvider {
	return otelpyroscope.NewTracerProvider(tp)
}
