// Package auth issues and validates the operator bearer tokens of the ops API.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/erp/marketplace-ingest/internal/infrastructure/config"
)

// Scope grants one class of ops API operation
type Scope string

const (
	// ScopeRunsRead lists runs, error reports and scheduler state
	ScopeRunsRead Scope = "runs:read"
	// ScopeRunsTrigger queues manual ingestion runs
	ScopeRunsTrigger Scope = "runs:trigger"
	// ScopeCredentialsWrite stores authorization codes
	ScopeCredentialsWrite Scope = "credentials:write"
)

// AllScopes lists every scope in the order they are documented
var AllScopes = []Scope{ScopeRunsRead, ScopeRunsTrigger, ScopeCredentialsWrite}

// ParseScopes parses a comma separated scope list. "all" grants every scope.
func ParseScopes(list string) ([]Scope, error) {
	var out []Scope
	for _, raw := range strings.Split(list, ",") {
		name := strings.TrimSpace(raw)
		switch {
		case name == "":
			continue
		case name == "all":
			return slices.Clone(AllScopes), nil
		case slices.Contains(AllScopes, Scope(name)):
			if !slices.Contains(out, Scope(name)) {
				out = append(out, Scope(name))
			}
		default:
			return nil, fmt.Errorf("unknown scope %q", name)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("at least one scope is required")
	}
	return out, nil
}

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrMissingSubject   = errors.New("missing subject in claims")
	ErrMissingScope     = errors.New("token lacks the required scope")
	ErrNoSecret         = errors.New("jwt secret is not configured")
)

// Claims are the claims of an operator token. The subject names the operator
// and becomes the user tag of runs it triggers.
type Claims struct {
	jwt.RegisteredClaims
	Scopes []Scope `json:"scopes,omitempty"`
}

// HasScope reports whether the token grants scope
func (c *Claims) HasScope(scope Scope) bool {
	return slices.Contains(c.Scopes, scope)
}

// Operator returns the subject
func (c *Claims) Operator() string {
	return c.Subject
}

// JWTService handles operator token operations
type JWTService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		now:    time.Now,
	}
}

// Issue signs an HS256 token for operator with the given scopes
func (s *JWTService) Issue(operator string, ttl time.Duration, scopes ...Scope) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, ErrNoSecret
	}
	if operator == "" {
		return "", time.Time{}, ErrMissingSubject
	}
	now := s.now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   operator,
			Audience:  jwt.ClaimStrings{s.issuer},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Scopes: scopes,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate parses and verifies a token issued by this service
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, ErrNoSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}
