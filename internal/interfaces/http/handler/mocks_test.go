package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/persistence"
	"github.com/erp/marketplace-ingest/internal/infrastructure/scheduler"
	"github.com/erp/marketplace-ingest/internal/interfaces/http/dto"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type MockRunReader struct{ mock.Mock }

func (m *MockRunReader) GetRun(ctx context.Context, id uuid.UUID) (*integration.IngestionRun, error) {
	args := m.Called(ctx, id)
	run, _ := args.Get(0).(*integration.IngestionRun)
	return run, args.Error(1)
}

func (m *MockRunReader) ListRuns(ctx context.Context, shopCode string, limit int) ([]integration.IngestionRun, error) {
	args := m.Called(ctx, shopCode, limit)
	runs, _ := args.Get(0).([]integration.IngestionRun)
	return runs, args.Error(1)
}

type MockTrigger struct{ mock.Mock }

func (m *MockTrigger) TriggerManual(shopCode, userTag string, from, to time.Time) (*scheduler.IngestionJob, error) {
	args := m.Called(shopCode, userTag, from, to)
	job, _ := args.Get(0).(*scheduler.IngestionJob)
	return job, args.Error(1)
}

type MockCredentials struct{ mock.Mock }

func (m *MockCredentials) GetByShop(ctx context.Context, shopCode string) (*integration.Credential, error) {
	args := m.Called(ctx, shopCode)
	cred, _ := args.Get(0).(*integration.Credential)
	return cred, args.Error(1)
}

func (m *MockCredentials) List(ctx context.Context) ([]*integration.Credential, error) {
	args := m.Called(ctx)
	creds, _ := args.Get(0).([]*integration.Credential)
	return creds, args.Error(1)
}

func (m *MockCredentials) StoreAuthorizationCode(ctx context.Context, shopCode, code string) (*integration.Credential, error) {
	args := m.Called(ctx, shopCode, code)
	cred, _ := args.Get(0).(*integration.Credential)
	return cred, args.Error(1)
}

type MockErrorReports struct{ mock.Mock }

func (m *MockErrorReports) FindRecent(ctx context.Context, filter persistence.ErrorReportFilter) ([]integration.ErrorReport, error) {
	args := m.Called(ctx, filter)
	reports, _ := args.Get(0).([]integration.ErrorReport)
	return reports, args.Error(1)
}

type MockSchedulerMonitor struct{ mock.Mock }

func (m *MockSchedulerMonitor) Stats() scheduler.SchedulerStats {
	return m.Called().Get(0).(scheduler.SchedulerStats)
}

func (m *MockSchedulerMonitor) GetJobHistory(limit int) []scheduler.IngestionJob {
	jobs, _ := m.Called(limit).Get(0).([]scheduler.IngestionJob)
	return jobs
}

func (m *MockSchedulerMonitor) GetJobHistoryByShop(shopCode string, limit int) []scheduler.IngestionJob {
	jobs, _ := m.Called(shopCode, limit).Get(0).([]scheduler.IngestionJob)
	return jobs
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// perform runs h on a fresh engine mounted at route and returns the recorder
func perform(h gin.HandlerFunc, method, route, target, body string, pre ...gin.HandlerFunc) *httptest.ResponseRecorder {
	engine := gin.New()
	engine.Handle(method, route, append(pre, h)...)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) (dto.Response, map[string]any) {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, _ := resp.Data.(map[string]any)
	return resp, data
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	resp, _ := decode(t, w)
	require.NotNil(t, resp.Error, w.Body.String())
	return resp.Error.Code
}
