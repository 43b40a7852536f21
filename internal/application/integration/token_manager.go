package integration

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/telemetry"
)

// TokenManager hands out usable credentials and owns their renewal.
// Renewal of one shop is serialized by the RenewalLock and the record is
// re-read once the lock is held, so concurrent runs never double-refresh.
type TokenManager struct {
	store   integration.CredentialStore
	clients map[integration.Marketplace]integration.TokenClient
	lock    integration.RenewalLock
	sink    integration.ErrorSink
	logger  *zap.Logger
	metrics *telemetry.IngestionMetrics
	buffer  time.Duration
	now     func() time.Time
}

// TokenManagerOption configures a TokenManager
type TokenManagerOption func(*TokenManager)

// WithTokenBuffer overrides the expiry lookahead
func WithTokenBuffer(buffer time.Duration) TokenManagerOption {
	return func(m *TokenManager) {
		if buffer > 0 {
			m.buffer = buffer
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) TokenManagerOption {
	return func(m *TokenManager) { m.now = now }
}

// NewTokenManager creates a TokenManager
func NewTokenManager(
	store integration.CredentialStore,
	clients map[integration.Marketplace]integration.TokenClient,
	lock integration.RenewalLock,
	sink integration.ErrorSink,
	logger *zap.Logger,
	opts ...TokenManagerOption,
) *TokenManager {
	m := &TokenManager{
		store:   store,
		clients: clients,
		lock:    lock,
		sink:    sink,
		logger:  logger.Named("token"),
		buffer:  integration.DefaultTokenBuffer,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetMetrics attaches ingestion metrics
func (m *TokenManager) SetMetrics(metrics *telemetry.IngestionMetrics) {
	m.metrics = metrics
}

// Credential reads the stored credential without renewing it
func (m *TokenManager) Credential(ctx context.Context, shopCode string) (*integration.Credential, error) {
	return m.store.GetByShop(ctx, shopCode)
}

// AccessToken returns a credential whose access token is usable for the next call
func (m *TokenManager) AccessToken(ctx context.Context, shopCode string) (*integration.Credential, error) {
	cred, err := m.store.GetByShop(ctx, shopCode)
	if err != nil {
		return nil, err
	}
	return m.Ensure(ctx, cred)
}

// Ensure renews cred if needed. A valid credential costs no network call.
func (m *TokenManager) Ensure(ctx context.Context, cred *integration.Credential) (*integration.Credential, error) {
	switch cred.State(m.now(), m.buffer) {
	case integration.TokenStateValid:
		return cred, nil
	case integration.TokenStateUnrecoverable:
		return nil, m.expired(ctx, cred)
	}

	ctx, span := telemetry.StartSpan(ctx, "token.renew", telemetry.SpanAttrShopCode, cred.ShopCode)
	defer span.End()

	renewed, err := m.renewLocked(ctx, cred.ShopCode)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return renewed, nil
}

func (m *TokenManager) renewLocked(ctx context.Context, shopCode string) (*integration.Credential, error) {
	unlock, err := m.lock.Lock(ctx, shopCode)
	if err != nil {
		return nil, fmt.Errorf("integration: acquire renewal lock for %s: %w", shopCode, err)
	}
	defer unlock()

	// Another run may have renewed while we waited.
	cred, err := m.store.GetByShop(ctx, shopCode)
	if err != nil {
		return nil, err
	}

	now := m.now()
	state := cred.State(now, m.buffer)
	switch state {
	case integration.TokenStateValid:
		m.logger.Debug("Token renewed concurrently", zap.String("shop_code", shopCode))
		return cred, nil
	case integration.TokenStateUnrecoverable:
		return nil, m.expired(ctx, cred)
	}

	client, ok := m.clients[cred.Marketplace]
	if !ok {
		return nil, &integration.ConfigurationError{
			Key:    "marketplaces." + cred.Marketplace.String() + ".token_url",
			Reason: "no token client configured",
		}
	}

	var grant integration.TokenGrant
	if state == integration.TokenStateNeedsAuthorize {
		grant, err = client.Authorize(ctx, cred)
		if err == nil {
			err = cred.ApplyAuthorization(grant, now)
		}
	} else {
		grant, err = client.Refresh(ctx, cred)
		if err == nil {
			err = cred.ApplyRefresh(grant, now)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("integration: %s for shop %s: %w", renewalName(state), shopCode, err)
	}

	if err := m.store.Upsert(ctx, cred); err != nil {
		return nil, fmt.Errorf("integration: persist renewed credential for %s: %w", shopCode, err)
	}

	m.metrics.RecordTokenRenewal(ctx, shopCode, renewalName(state))
	m.logger.Info("Token renewed",
		zap.String("shop_code", shopCode),
		zap.String("renewal", renewalName(state)),
		zap.Time("access_expires_at", cred.AccessExpiresAt),
		zap.Time("refresh_expires_at", cred.RefreshExpiresAt),
	)
	return cred, nil
}

// StoreAuthorizationCode saves a one-time code and forces an authorize on next use
func (m *TokenManager) StoreAuthorizationCode(ctx context.Context, shopCode, code string) (*integration.Credential, error) {
	if code == "" {
		return nil, &integration.ConfigurationError{Key: "authorization_code", Reason: "must not be empty"}
	}
	unlock, err := m.lock.Lock(ctx, shopCode)
	if err != nil {
		return nil, fmt.Errorf("integration: acquire renewal lock for %s: %w", shopCode, err)
	}
	defer unlock()

	cred, err := m.store.GetByShop(ctx, shopCode)
	if err != nil {
		return nil, err
	}
	cred.StoreAuthorizationCode(code, m.now())
	if err := m.store.Upsert(ctx, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

func (m *TokenManager) expired(ctx context.Context, cred *integration.Credential) error {
	err := &integration.AuthExpiredError{ShopCode: cred.ShopCode}
	m.logger.Error("Authorization expired, manual re-authorization required",
		zap.String("shop_code", cred.ShopCode),
		zap.String("marketplace", cred.Marketplace.String()),
		zap.Time("refresh_expires_at", cred.RefreshExpiresAt),
	)
	if m.sink != nil {
		m.sink.Report(ctx, integration.NewErrorReport(ctx, integration.ErrorKindAuthExpired, "token", "", err, map[string]any{
			"shop_code":   cred.ShopCode,
			"marketplace": cred.Marketplace.String(),
			"auth_mode":   string(cred.AuthMode),
		}))
	}
	return err
}

func renewalName(state integration.TokenState) string {
	if state == integration.TokenStateNeedsAuthorize {
		return "authorize"
	}
	return "refresh"
}
