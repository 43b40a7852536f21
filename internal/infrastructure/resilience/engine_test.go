package resilience

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
)

type recordingSink struct {
	mu      sync.Mutex
	reports []integration.ErrorReport
}

func (s *recordingSink) Report(_ context.Context, r integration.ErrorReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
}

func (s *recordingSink) phases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.reports))
	for i, r := range s.reports {
		out[i], _ = r.Extra["phase"].(string)
	}
	return out
}

type countingObserver struct {
	retries, fallbacks atomic.Int32
}

func (o *countingObserver) RecordRetry(context.Context, string, string)    { o.retries.Add(1) }
func (o *countingObserver) RecordFallback(context.Context, string, string) { o.fallbacks.Add(1) }

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2, RandomizationFactor: 0.1}
}

func newTestEngine(sink integration.ErrorSink, opts ...Option) *Engine {
	return NewEngine(fastPolicy(), sink, zap.NewNop(), opts...)
}

func getBuilder(url string) RequestBuilder {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxAttempts)

	e := NewEngine(Policy{}, nil, zap.NewNop())
	assert.Equal(t, DefaultPolicy(), e.Policy())
}

func TestDoHTTP_RecoversAfterTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	obs := &countingObserver{}
	e := newTestEngine(sink, WithObserver(obs))

	resp, err := e.DoHTTP(context.Background(), srv.Client(), Call{Endpoint: "/orders", Method: http.MethodGet, UserTag: "batch"}, getBuilder(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, []string{"retry", "retry"}, sink.phases())
	assert.Equal(t, int32(2), obs.retries.Load())
	assert.Equal(t, int32(0), obs.fallbacks.Load())

	r := sink.reports[0]
	assert.Equal(t, integration.ErrorKindTransientHTTP, r.Kind)
	assert.Equal(t, "/orders", r.Endpoint)
	assert.Equal(t, http.MethodGet, r.Method)
	assert.Equal(t, "batch", r.UserTag)
	assert.Equal(t, http.StatusBadGateway, r.Extra["status"])
}

func TestDoHTTP_FallbackReturnsUnavailable(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sink := &recordingSink{}
	obs := &countingObserver{}
	exited := false
	e := newTestEngine(sink, WithObserver(obs), WithExitFunc(func(int) { exited = true }))

	_, err := e.DoHTTP(context.Background(), srv.Client(), Call{Endpoint: "/orders", Method: http.MethodPost}, getBuilder(srv.URL))
	require.Error(t, err)
	assert.ErrorIs(t, err, integration.ErrPlatformUnavailable)

	var te *integration.TransientHTTPError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.Unavailable)
	assert.Equal(t, 3, te.Attempts)
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)

	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, []string{"retry", "retry", "fallback"}, sink.phases())
	assert.Equal(t, int32(1), obs.fallbacks.Load())
	assert.False(t, exited)
}

func TestExecute_TerminateOnFallback(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		call Call
	}{
		{"flag on call", context.Background(), Call{Endpoint: "/token", Method: http.MethodPost, TerminateOnFallback: true}},
		{"flag from run info", integration.WithRunInfo(context.Background(), integration.RunInfo{
			RunID: uuid.New(), ShopCode: "shop-1", UserTag: "ops", TerminateOnFallback: true,
		}), Call{Endpoint: "/token", Method: http.MethodPost}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			exitCode := -1
			e := newTestEngine(sink, WithExitFunc(func(code int) { exitCode = code }))

			_, err := e.Execute(tt.ctx, tt.call, func(context.Context) (*Response, error) {
				return nil, &integration.TransientHTTPError{Endpoint: "/token", Method: http.MethodPost, Err: errors.New("connection reset")}
			})
			assert.ErrorIs(t, err, integration.ErrPlatformUnavailable)
			assert.Equal(t, 1, exitCode)

			last := sink.reports[len(sink.reports)-1]
			assert.Equal(t, "fallback", last.Extra["phase"])
			assert.Equal(t, true, last.Extra["terminate"])
		})
	}
}

func TestDoHTTP_ClientErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		authFailed bool
	}{
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, true},
		{"forbidden", http.StatusForbidden, true},
		{"too many requests", http.StatusTooManyRequests, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			sink := &recordingSink{}
			_, err := newTestEngine(sink).DoHTTP(context.Background(), srv.Client(), Call{Endpoint: "/x", Method: http.MethodGet}, getBuilder(srv.URL))

			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, `{"error":"nope"}`, string(se.Body))
			assert.ErrorIs(t, err, integration.ErrPlatformRequestFailed)
			assert.Equal(t, tt.authFailed, errors.Is(err, integration.ErrPlatformAuthFailed))
			assert.NotErrorIs(t, err, integration.ErrPlatformUnavailable)
			assert.Equal(t, int32(1), hits.Load())
			assert.Empty(t, sink.reports)
		})
	}
}

func TestDoHTTP_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	sink := &recordingSink{}
	_, err := newTestEngine(sink).DoHTTP(context.Background(), http.DefaultClient, Call{Endpoint: "/x", Method: http.MethodGet}, getBuilder(url))

	var te *integration.TransientHTTPError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.Unavailable)
	assert.Error(t, te.Err)
	assert.Len(t, sink.reports, 3)
}

func TestExecute_PermanentErrorReturnedAsIs(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	sink := &recordingSink{}
	_, err := newTestEngine(sink).Execute(context.Background(), Call{Endpoint: "/x", Method: "GET"}, func(context.Context) (*Response, error) {
		calls++
		return nil, boom
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sink.reports)
}

func TestExecute_CancelledContextSkipsFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{}
	_, err := newTestEngine(sink).Execute(ctx, Call{Endpoint: "/x", Method: "GET"}, func(context.Context) (*Response, error) {
		cancel()
		return nil, &integration.TransientHTTPError{Endpoint: "/x", Method: "GET", StatusCode: 500}
	})
	assert.ErrorIs(t, err, context.Canceled)
	for _, p := range sink.phases() {
		assert.NotEqual(t, "fallback", p)
	}
}

func TestExecute_ReportCarriesRunInfo(t *testing.T) {
	runID := uuid.New()
	ctx := integration.WithRunInfo(context.Background(), integration.RunInfo{RunID: runID, ShopCode: "shop-9", UserTag: "scheduler"})

	sink := &recordingSink{}
	attempts := 0
	_, err := newTestEngine(sink).Execute(ctx, Call{Endpoint: "/x", Method: "GET"}, func(context.Context) (*Response, error) {
		attempts++
		if attempts == 1 {
			return nil, &integration.TransientHTTPError{Endpoint: "/x", Method: "GET", StatusCode: 500}
		}
		return &Response{StatusCode: 200}, nil
	})
	require.NoError(t, err)
	require.Len(t, sink.reports, 1)
	assert.Equal(t, runID, sink.reports[0].RunID)
	assert.Equal(t, "shop-9", sink.reports[0].ShopCode)
	assert.Equal(t, "scheduler", sink.reports[0].UserTag)
	assert.Equal(t, 1, sink.reports[0].Extra["attempt"])
}
