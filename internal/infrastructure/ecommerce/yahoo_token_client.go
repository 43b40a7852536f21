package ecommerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/resilience"
)

// YahooTokenClient implements integration.TokenClient against the Yahoo token endpoint.
// Client credentials are sent with HTTP Basic authentication.
type YahooTokenClient struct {
	config     *YahooConfig
	httpClient *http.Client
	engine     *resilience.Engine
}

var _ integration.TokenClient = (*YahooTokenClient)(nil)

// NewYahooTokenClient creates a token client
func NewYahooTokenClient(config *YahooConfig, engine *resilience.Engine) (*YahooTokenClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, integration.ErrPlatformNotConfigured
	}
	return &YahooTokenClient{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		engine: engine,
	}, nil
}

// Authorize exchanges the stored authorization code for a new token pair
func (c *YahooTokenClient) Authorize(ctx context.Context, cred *integration.Credential) (integration.TokenGrant, error) {
	if cred.AuthorizationCode == "" {
		return integration.TokenGrant{}, &integration.ConfigurationError{Key: "credential.authorization_code", Reason: "no authorization code stored"}
	}
	redirect := cred.RedirectURI
	if redirect == "" {
		redirect = c.config.RedirectURI
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", cred.AuthorizationCode)
	if redirect != "" {
		form.Set("redirect_uri", redirect)
	}
	return c.exchange(ctx, cred, form)
}

// Refresh exchanges the refresh token for a new access token
func (c *YahooTokenClient) Refresh(ctx context.Context, cred *integration.Credential) (integration.TokenGrant, error) {
	if cred.RefreshToken == "" {
		return integration.TokenGrant{}, &integration.ConfigurationError{Key: "credential.refresh_token", Reason: "no refresh token stored"}
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)
	return c.exchange(ctx, cred, form)
}

func (c *YahooTokenClient) exchange(ctx context.Context, cred *integration.Credential, form url.Values) (integration.TokenGrant, error) {
	if cred.ClientID == "" || cred.ClientSecret == "" {
		return integration.TokenGrant{}, &integration.ConfigurationError{Key: "credential.client_id", Reason: "client id and secret are required"}
	}
	encoded := form.Encode()

	call := resilience.Call{Endpoint: "yahoo.token", Method: http.MethodPost}
	resp, err := c.engine.DoHTTP(ctx, c.httpClient, call, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(cred.ClientID, cred.ClientSecret)
		return req, nil
	})
	if err != nil {
		var se *resilience.StatusError
		if errors.As(err, &se) {
			var te YahooTokenError
			if jsonErr := json.Unmarshal(se.Body, &te); jsonErr == nil && te.Error != "" {
				return integration.TokenGrant{}, fmt.Errorf("%w: %s: %s", integration.ErrPlatformAuthFailed, te.Error, te.ErrorDescription)
			}
		}
		return integration.TokenGrant{}, err
	}

	var tr YahooTokenResponse
	if err := json.Unmarshal(resp.Body, &tr); err != nil {
		return integration.TokenGrant{}, fmt.Errorf("%w: failed to parse token response: %v", integration.ErrPlatformInvalidResponse, err)
	}
	return integration.TokenGrant{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    time.Duration(tr.ExpiresIn) * time.Second,
	}, nil
}
