package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/auth"
	"github.com/erp/marketplace-ingest/internal/infrastructure/config"
)

func TestLookup(t *testing.T) {
	for _, c := range commands {
		got, ok := lookup(c.name)
		require.True(t, ok, c.name)
		assert.Equal(t, c.name, got.name)
	}
	_, ok := lookup("drop")
	assert.False(t, ok)
}

func TestDecodeCredentials(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
		wantErr string
	}{
		{
			name: "oauth and license",
			input: `[
				{"shop_code":"tokyo-1","marketplace":"yahoo","auth_mode":"oauth","client_id":"cid","client_secret":"cs","authorization_code":"abc"},
				{"shop_code":"osaka-1","marketplace":"rakuten","auth_mode":"license","access_token":"lic"}
			]`,
			wantLen: 2,
		},
		{name: "empty array", input: `[]`, wantErr: "no credentials"},
		{name: "not json", input: `{`, wantErr: "decode credentials"},
		{name: "unknown field", input: `[{"shop_code":"a","marketplace":"yahoo","auth_mode":"oauth","pin":"1"}]`, wantErr: "decode credentials"},
		{name: "null entry", input: `[null]`, wantErr: "null entry"},
		{
			name:    "oauth without client",
			input:   `[{"shop_code":"tokyo-1","marketplace":"yahoo","auth_mode":"oauth"}]`,
			wantErr: "credentials[0]",
		},
		{
			name:    "bad marketplace",
			input:   `[{"shop_code":"tokyo-1","marketplace":"amazon","auth_mode":"license"}]`,
			wantErr: "credentials[0]",
		},
		{
			name: "duplicate shop",
			input: `[
				{"shop_code":"osaka-1","marketplace":"rakuten","auth_mode":"license"},
				{"shop_code":"osaka-1","marketplace":"rakuten","auth_mode":"license"}
			]`,
			wantErr: "duplicate shop code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := decodeCredentials(strings.NewReader(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, creds, tt.wantLen)
			assert.Equal(t, integration.AuthModeOAuth, creds[0].AuthMode)
			assert.Equal(t, "abc", creds[0].AuthorizationCode)
			assert.Equal(t, "lic", creds[1].AccessToken)
		})
	}
}

func TestBuildTriggerRequest(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		wantErr string
	}{
		{name: "continuation window"},
		{name: "explicit window", from: "2026-10-01T00:00:00Z", to: "2026-10-02T00:00:00Z"},
		{name: "open ended", from: "2026-10-01T00:00:00+09:00"},
		{name: "to without from", to: "2026-10-02T00:00:00Z", wantErr: "-to requires -from"},
		{name: "reversed", from: "2026-10-02T00:00:00Z", to: "2026-10-01T00:00:00Z", wantErr: "before"},
		{name: "bad timestamp", from: "yesterday", wantErr: "-from"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := buildTriggerRequest(tt.from, tt.to, "ops", "OrderId, OrderTime,", "")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ops", req.UserTag)
			assert.Equal(t, []string{"OrderId", "OrderTime"}, req.SearchFields)
			assert.Nil(t, req.DetailFields)
			assert.Equal(t, tt.from == "", req.From == nil)
		})
	}
}

func TestIssueToken(t *testing.T) {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "cli-test-secret", Issuer: "marketplace-ingest"}}
	var out bytes.Buffer
	e := &env{cfg: cfg, log: zap.NewNop(), out: &out}

	err := issueToken(context.Background(), e, []string{"-operator", "carol", "-scopes", "runs:trigger,runs:read", "-ttl", "1h"})
	require.NoError(t, err)

	var got tokenOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "carol", got.Operator)
	assert.ElementsMatch(t, []auth.Scope{auth.ScopeRunsTrigger, auth.ScopeRunsRead}, got.Scopes)
	assert.WithinDuration(t, time.Now().Add(time.Hour), got.ExpiresAt, time.Minute)

	claims, err := auth.NewJWTService(cfg.JWT).Validate(got.Token)
	require.NoError(t, err)
	assert.Equal(t, "carol", claims.Subject)
	assert.True(t, claims.HasScope(auth.ScopeRunsTrigger))
}

func TestIssueToken_Errors(t *testing.T) {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "cli-test-secret", Issuer: "marketplace-ingest"}}

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"missing operator", []string{"-scopes", "all"}, auth.ErrMissingSubject},
		{"help", []string{"-h"}, flag.ErrHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &env{cfg: cfg, log: zap.NewNop(), out: &bytes.Buffer{}}
			assert.ErrorIs(t, issueToken(context.Background(), e, tt.args), tt.want)
		})
	}

	e := &env{cfg: cfg, log: zap.NewNop(), out: &bytes.Buffer{}}
	assert.Error(t, issueToken(context.Background(), e, []string{"-operator", "dan", "-scopes", "root"}))
}
