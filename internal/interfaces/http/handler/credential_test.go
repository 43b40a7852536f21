package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/interfaces/http/dto"
	"github.com/erp/marketplace-ingest/internal/interfaces/http/middleware"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func oauthCredential(shop string, accessExpires time.Time) *integration.Credential {
	return &integration.Credential{
		ShopCode:         shop,
		Marketplace:      integration.MarketplaceYahoo,
		AuthMode:         integration.AuthModeOAuth,
		AccessToken:      "secret-access",
		AccessExpiresAt:  accessExpires,
		RefreshToken:     "secret-refresh",
		RefreshExpiresAt: fixedNow.Add(30 * 24 * time.Hour),
		ClientID:         "client",
		ClientSecret:     "client-secret",
	}
}

func newCredentialHandler(store *MockCredentials) *CredentialHandler {
	h := NewCredentialHandler(store, store, 5*time.Minute)
	h.now = func() time.Time { return fixedNow }
	return h
}

func TestCredentialHandler_ListCredentials(t *testing.T) {
	store := new(MockCredentials)
	store.On("List", mock.Anything).Return([]*integration.Credential{
		oauthCredential("tokyo-1", fixedNow.Add(time.Hour)),
		oauthCredential("osaka-2", fixedNow.Add(time.Minute)),
	}, nil)

	w := perform(newCredentialHandler(store).ListCredentials, http.MethodGet, "/credentials", "/credentials", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
	resp, _ := decode(t, w)
	items := resp.Data.([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "valid", items[0].(map[string]any)["state"])
	assert.Equal(t, "needs_refresh", items[1].(map[string]any)["state"])
}

func TestCredentialHandler_GetCredential(t *testing.T) {
	store := new(MockCredentials)
	store.On("GetByShop", mock.Anything, "tokyo-1").Return(oauthCredential("tokyo-1", fixedNow.Add(time.Hour)), nil)
	store.On("GetByShop", mock.Anything, "nowhere").Return(nil, fmt.Errorf("load: %w", integration.ErrCredentialMissing))
	h := newCredentialHandler(store)

	w := perform(h.GetCredential, http.MethodGet, "/credentials/:code", "/credentials/tokyo-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	_, data := decode(t, w)
	assert.Equal(t, "tokyo-1", data["shop_code"])
	assert.Equal(t, "oauth", data["auth_mode"])

	w = perform(h.GetCredential, http.MethodGet, "/credentials/:code", "/credentials/nowhere", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, dto.ErrCodeNotFound, errCode(t, w))
}

func TestCredentialHandler_Authorize(t *testing.T) {
	cred := oauthCredential("tokyo-1", fixedNow.Add(-time.Hour))
	cred.AuthorizationCode = "abc123"
	store := new(MockCredentials)
	store.On("StoreAuthorizationCode", mock.Anything, "tokyo-1", "abc123").Return(cred, nil)

	w := perform(newCredentialHandler(store).Authorize, http.MethodPost, "/credentials/:code/authorize",
		"/credentials/tokyo-1/authorize", `{"code":"abc123"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, data := decode(t, w)
	assert.Equal(t, true, data["has_pending_code"])
	assert.NotContains(t, w.Body.String(), "abc123")
	store.AssertExpectations(t)
}

func TestCredentialHandler_Authorize_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"malformed", `{"code":`, dto.ErrCodeBadRequest},
		{"missing code", `{}`, dto.ErrCodeValidation},
		{"empty code", `{"code":""}`, dto.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockCredentials)
			w := perform(newCredentialHandler(store).Authorize, http.MethodPost, "/credentials/:code/authorize",
				"/credentials/tokyo-1/authorize", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantCode, errCode(t, w))
			store.AssertNotCalled(t, "StoreAuthorizationCode", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCredentialHandler_Authorize_StreamedBodyOverLimit(t *testing.T) {
	store := new(MockCredentials)
	h := newCredentialHandler(store)

	engine := gin.New()
	engine.POST("/credentials/:code/authorize", middleware.BodyLimit(32), h.Authorize)

	req := httptest.NewRequest(http.MethodPost, "/credentials/tokyo-1/authorize",
		strings.NewReader(`{"code":"`+strings.Repeat("a", 64)+`"}`))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, dto.ErrCodeRequestTooLarge, errCode(t, w))
	store.AssertNotCalled(t, "StoreAuthorizationCode", mock.Anything, mock.Anything, mock.Anything)
}
