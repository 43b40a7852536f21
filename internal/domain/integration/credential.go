package integration

import (
	"time"
)

const (
	// DefaultTokenBuffer is the lookahead used when checking token expiry
	DefaultTokenBuffer = 5 * time.Minute
	// DefaultAccessTokenLifetime applies when the token endpoint omits expires_in
	DefaultAccessTokenLifetime = time.Hour
	// RefreshTokenLifetime is the validity of a refresh token issued by Authorize
	RefreshTokenLifetime = 28 * 24 * time.Hour
)

// AuthMode selects how a credential authenticates marketplace calls
type AuthMode string

const (
	// AuthModeOAuth uses rotating access/refresh tokens
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeLicense uses a long-lived license key stored as the access token
	AuthModeLicense AuthMode = "license"
)

// IsValid returns true if the auth mode is known
func (m AuthMode) IsValid() bool {
	return m == AuthModeOAuth || m == AuthModeLicense
}

// TokenState is the renewal decision for a credential at a point in time
type TokenState int

const (
	// TokenStateValid means the cached access token can be used as is
	TokenStateValid TokenState = iota
	// TokenStateNeedsRefresh means the access token is expiring but the refresh token is not
	TokenStateNeedsRefresh
	// TokenStateNeedsAuthorize means the refresh token is expiring and an authorization code is stored
	TokenStateNeedsAuthorize
	// TokenStateUnrecoverable means manual re-authorization is required
	TokenStateUnrecoverable
)

// String returns the string representation of TokenState
func (s TokenState) String() string {
	switch s {
	case TokenStateValid:
		return "valid"
	case TokenStateNeedsRefresh:
		return "needs_refresh"
	case TokenStateNeedsAuthorize:
		return "needs_authorize"
	case TokenStateUnrecoverable:
		return "unrecoverable"
	default:
		return "unknown"
	}
}

// Credential is the per-shop marketplace credential record.
// It is mutated in place on every renewal and never deleted.
type Credential struct {
	ShopCode          string      `json:"shop_code" validate:"required,max=64"`
	Marketplace       Marketplace `json:"marketplace" validate:"required,oneof=yahoo rakuten"`
	SellerID          string      `json:"seller_id" validate:"max=64"`
	AuthMode          AuthMode    `json:"auth_mode" validate:"required,oneof=oauth license"`
	AccessToken       string      `json:"access_token"`
	AccessExpiresAt   time.Time   `json:"access_expires_at"`
	RefreshToken      string      `json:"refresh_token"`
	RefreshExpiresAt  time.Time   `json:"refresh_expires_at"`
	AuthorizationCode string      `json:"authorization_code"`
	ClientID          string      `json:"client_id" validate:"required_if=AuthMode oauth"`
	ClientSecret      string      `json:"client_secret" validate:"required_if=AuthMode oauth"`
	RedirectURI       string      `json:"redirect_uri" validate:"omitempty,url"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// State evaluates the renewal state machine against now+buffer
func (c *Credential) State(now time.Time, buffer time.Duration) TokenState {
	threshold := now.Add(buffer)

	if c.AuthMode == AuthModeLicense {
		if c.AccessToken == "" {
			return TokenStateUnrecoverable
		}
		if !c.AccessExpiresAt.IsZero() && !c.AccessExpiresAt.After(threshold) {
			return TokenStateUnrecoverable
		}
		return TokenStateValid
	}

	if !c.RefreshExpiresAt.After(threshold) {
		if c.AuthorizationCode == "" {
			return TokenStateUnrecoverable
		}
		return TokenStateNeedsAuthorize
	}
	if c.AccessToken == "" || !c.AccessExpiresAt.After(threshold) {
		return TokenStateNeedsRefresh
	}
	return TokenStateValid
}

// TokenGrant is the result of a token endpoint call
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the server-provided access token lifetime; zero means unspecified
	ExpiresIn time.Duration
}

// ApplyAuthorization rotates both tokens after a code exchange and consumes the code
func (c *Credential) ApplyAuthorization(grant TokenGrant, now time.Time) error {
	if grant.AccessToken == "" || grant.RefreshToken == "" {
		return ErrPlatformInvalidResponse
	}
	c.AccessToken = grant.AccessToken
	c.AccessExpiresAt = now.Add(accessLifetime(grant))
	c.RefreshToken = grant.RefreshToken
	c.RefreshExpiresAt = now.Add(RefreshTokenLifetime)
	c.AuthorizationCode = ""
	c.UpdatedAt = now
	return nil
}

// ApplyRefresh replaces the access token only.
// A refresh token returned by the server is ignored.
func (c *Credential) ApplyRefresh(grant TokenGrant, now time.Time) error {
	if grant.AccessToken == "" {
		return ErrPlatformInvalidResponse
	}
	c.AccessToken = grant.AccessToken
	c.AccessExpiresAt = now.Add(accessLifetime(grant))
	c.UpdatedAt = now
	return nil
}

// StoreAuthorizationCode saves a new one-time code and forces re-authorization on next use
func (c *Credential) StoreAuthorizationCode(code string, now time.Time) {
	c.AuthorizationCode = code
	c.RefreshExpiresAt = time.Time{}
	c.UpdatedAt = now
}

// Clone returns a copy of the credential
func (c *Credential) Clone() *Credential {
	cp := *c
	return &cp
}

func accessLifetime(grant TokenGrant) time.Duration {
	if grant.ExpiresIn <= 0 {
		return DefaultAccessTokenLifetime
	}
	return grant.ExpiresIn
}
