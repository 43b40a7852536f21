package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/auth"
	"github.com/erp/marketplace-ingest/internal/infrastructure/config"
	"github.com/erp/marketplace-ingest/internal/infrastructure/scheduler"
	"github.com/erp/marketplace-ingest/internal/interfaces/http/handler"
)

type stubRuns struct{}

func (stubRuns) GetRun(context.Context, uuid.UUID) (*integration.IngestionRun, error) {
	return nil, integration.ErrRunNotFound
}

func (stubRuns) ListRuns(context.Context, string, int) ([]integration.IngestionRun, error) {
	return nil, nil
}

type recordingTrigger struct {
	userTag string
}

func (r *recordingTrigger) TriggerManual(shopCode, userTag string, from, to time.Time) (*scheduler.IngestionJob, error) {
	r.userTag = userTag
	return scheduler.NewIngestionJob(shopCode, integration.RunModeManual, userTag, from, to, 0), nil
}

type stubCredentials struct{}

func (stubCredentials) GetByShop(context.Context, string) (*integration.Credential, error) {
	return nil, integration.ErrCredentialMissing
}

func (stubCredentials) List(context.Context) ([]*integration.Credential, error) { return nil, nil }

func (stubCredentials) StoreAuthorizationCode(_ context.Context, shop, code string) (*integration.Credential, error) {
	return &integration.Credential{ShopCode: shop, AuthMode: integration.AuthModeOAuth, AuthorizationCode: code}, nil
}

type opsFixture struct {
	tokens  *auth.JWTService
	trigger *recordingTrigger
	deps    OpsDependencies
}

func newOpsFixture() *opsFixture {
	tokens := auth.NewJWTService(config.JWTConfig{Secret: "ops-test-secret", Issuer: "marketplace-ingest"})
	trigger := &recordingTrigger{}
	return &opsFixture{
		tokens:  tokens,
		trigger: trigger,
		deps: OpsDependencies{
			ServiceName: "marketplace-ingest",
			HTTP:        config.HTTPConfig{MaxBodySize: 1 << 20, TriggerRateLimit: 30},
			Tokens:      tokens,
			Logger:      zap.NewNop(),
			System:      handler.NewSystemHandler("marketplace-ingest", "test", nil),
			Ingestion:   handler.NewIngestionHandler(stubRuns{}, trigger),
			Credentials: handler.NewCredentialHandler(stubCredentials{}, stubCredentials{}, time.Minute),
		},
	}
}

func (f *opsFixture) token(t *testing.T, operator string, scopes ...auth.Scope) string {
	t.Helper()
	tok, _, err := f.tokens.Issue(operator, time.Hour, scopes...)
	require.NoError(t, err)
	return tok
}

func call(t *testing.T, f *opsFixture, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	engine, err := NewOpsEngine(f.deps)
	require.NoError(t, err)

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestOpsEngine_HealthWithoutToken(t *testing.T) {
	f := newOpsFixture()

	assert.Equal(t, http.StatusOK, call(t, f, http.MethodGet, HealthPath, "", "").Code)
	assert.Equal(t, http.StatusOK, call(t, f, http.MethodGet, ReadyPath, "", "").Code)
}

func TestOpsEngine_Authorization(t *testing.T) {
	f := newOpsFixture()
	reader := f.token(t, "alice", auth.ScopeRunsRead)
	operator := f.token(t, "bob", auth.ScopeRunsRead, auth.ScopeRunsTrigger)
	admin := f.token(t, "carol", auth.ScopeCredentialsWrite)

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		body     string
		wantCode int
	}{
		{"runs without token", http.MethodGet, "/api/v1/ingestion/runs", "", "", http.StatusUnauthorized},
		{"runs with garbage token", http.MethodGet, "/api/v1/ingestion/runs", "nope", "", http.StatusUnauthorized},
		{"runs with read scope", http.MethodGet, "/api/v1/ingestion/runs", reader, "", http.StatusOK},
		{"missing run", http.MethodGet, "/api/v1/ingestion/runs/" + uuid.NewString(), reader, "", http.StatusNotFound},
		{"system info", http.MethodGet, "/api/v1/system/info", reader, "", http.StatusOK},
		{"trigger with read scope", http.MethodPost, "/api/v1/ingestion/shops/tokyo-1/runs", reader, "", http.StatusForbidden},
		{"trigger with trigger scope", http.MethodPost, "/api/v1/ingestion/shops/tokyo-1/runs", operator, "", http.StatusAccepted},
		{"credentials with read scope", http.MethodGet, "/api/v1/credentials", reader, "", http.StatusOK},
		{"authorize with read scope", http.MethodPost, "/api/v1/credentials/tokyo-1/authorize", reader, `{"code":"x"}`, http.StatusForbidden},
		{"authorize with write scope", http.MethodPost, "/api/v1/credentials/tokyo-1/authorize", admin, `{"code":"x"}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(t, f, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
		})
	}
}

func TestOpsEngine_TriggerTagsOperator(t *testing.T) {
	f := newOpsFixture()

	w := call(t, f, http.MethodPost, "/api/v1/ingestion/shops/tokyo-1/runs",
		f.token(t, "bob", auth.ScopeRunsTrigger), "")

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "bob", f.trigger.userTag)
	assert.Contains(t, w.Body.String(), `"user_tag":"bob"`)
}

func TestOpsEngine_OptionalRoutes(t *testing.T) {
	f := newOpsFixture()
	tok := f.token(t, "alice", auth.ScopeRunsRead)

	assert.Equal(t, http.StatusNotFound, call(t, f, http.MethodGet, "/api/v1/scheduler/stats", tok, "").Code)
	assert.Equal(t, http.StatusNotFound, call(t, f, http.MethodGet, "/api/v1/ingestion/errors", tok, "").Code)
}

func TestOpsEngine_RejectsBadTrustedProxy(t *testing.T) {
	f := newOpsFixture()
	f.deps.HTTP.TrustedProxies = []string{"not-an-ip"}

	_, err := NewOpsEngine(f.deps)
	assert.Error(t, err)
}

func TestOpsEngine_Swagger(t *testing.T) {
	f := newOpsFixture()
	reader := f.token(t, "alice", auth.ScopeRunsRead)
	admin := f.token(t, "carol", auth.ScopeCredentialsWrite)

	tests := []struct {
		name     string
		swagger  config.SwaggerConfig
		token    string
		wantCode int
	}{
		{"disabled", config.SwaggerConfig{Enabled: false}, reader, http.StatusNotFound},
		{"open", config.SwaggerConfig{Enabled: true}, "", http.StatusOK},
		{"auth without token", config.SwaggerConfig{Enabled: true, RequireAuth: true}, "", http.StatusUnauthorized},
		{"auth without read scope", config.SwaggerConfig{Enabled: true, RequireAuth: true}, admin, http.StatusForbidden},
		{"auth with read scope", config.SwaggerConfig{Enabled: true, RequireAuth: true}, reader, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.deps.Swagger = tt.swagger
			w := call(t, f, http.MethodGet, "/swagger/doc.json", tt.token, "")
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantCode == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"title": "Marketplace Ingest Ops API"`)
				assert.Contains(t, w.Body.String(), `"/ingestion/shops/{code}/runs"`)
			}
		})
	}
}
