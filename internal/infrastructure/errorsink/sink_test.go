package errorsink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Save(ctx context.Context, report integration.ErrorReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

type recordingSink struct {
	reports []integration.ErrorReport
}

func (r *recordingSink) Report(_ context.Context, report integration.ErrorReport) {
	r.reports = append(r.reports, report)
}

func TestZapSink_Report(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewZapSink(zap.New(core))

	runID := uuid.New()
	sink.Report(context.Background(), integration.ErrorReport{
		Kind:     integration.ErrorKindTransientHTTP,
		Endpoint: "https://example.test/orderList",
		Method:   "POST",
		ShopCode: "tokyo-1",
		RunID:    runID,
		Message:  "503 Service Unavailable",
		Extra:    map[string]any{"attempt": 3},
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "transient_http", fields["kind"])
	assert.Equal(t, "POST", fields["method"])
	assert.Equal(t, runID.String(), fields["run_id"])
	assert.NotContains(t, fields, "user_tag")
}

func TestRepositorySink_Report(t *testing.T) {
	t.Run("fills id and time before saving", func(t *testing.T) {
		store := new(mockStore)
		store.On("Save", mock.Anything, mock.MatchedBy(func(r integration.ErrorReport) bool {
			return r.ID != uuid.Nil && !r.OccurredAt.IsZero() && r.Kind == integration.ErrorKindDecode
		})).Return(nil).Once()

		NewRepositorySink(store, zap.NewNop()).Report(context.Background(), integration.ErrorReport{Kind: integration.ErrorKindDecode})
		store.AssertExpectations(t)
	})

	t.Run("cancelled caller context still saves", func(t *testing.T) {
		store := new(mockStore)
		store.On("Save", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }), mock.Anything).Return(nil).Once()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		NewRepositorySink(store, zap.NewNop()).Report(ctx, integration.ErrorReport{Kind: integration.ErrorKindFatalConsistency})
		store.AssertExpectations(t)
	})

	t.Run("store failure is logged not returned", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		store := new(mockStore)
		store.On("Save", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

		NewRepositorySink(store, zap.New(core)).Report(context.Background(), integration.ErrorReport{
			Kind:       integration.ErrorKindRowMapping,
			OccurredAt: time.Now(),
		})
		assert.Equal(t, 1, logs.FilterMessage("Failed to persist error report").Len())
	})
}

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	sink := NewMultiSink(a, nil, b)
	assert.Len(t, sink, 2)

	report := integration.ErrorReport{Kind: integration.ErrorKindAuthExpired, ShopCode: "tokyo-1"}
	sink.Report(context.Background(), report)

	assert.Equal(t, []integration.ErrorReport{report}, a.reports)
	assert.Equal(t, []integration.ErrorReport{report}, b.reports)
}
