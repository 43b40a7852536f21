package bootstrap

import (
	"fmt"

	appintegration "github.com/erp/marketplace-ingest/internal/application/integration"
	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/config"
	"github.com/erp/marketplace-ingest/internal/infrastructure/ecommerce"
	"github.com/erp/marketplace-ingest/internal/infrastructure/resilience"
	"github.com/erp/marketplace-ingest/internal/infrastructure/schema"
)

// marketplaceAdapters builds the order sources of the enabled marketplaces and
// the token clients of the OAuth ones
func marketplaceAdapters(
	cfg config.MarketplacesConfig,
	registry *schema.Registry,
	engine *resilience.Engine,
) ([]integration.OrderSource, map[integration.Marketplace]integration.TokenClient, error) {
	var sources []integration.OrderSource
	clients := make(map[integration.Marketplace]integration.TokenClient)

	if cfg.Yahoo.Enabled {
		yc := YahooConfig(cfg.Yahoo)
		adapter, err := ecommerce.NewYahooAdapter(yc, registry, engine)
		if err != nil {
			return nil, nil, fmt.Errorf("yahoo adapter: %w", err)
		}
		tokens, err := ecommerce.NewYahooTokenClient(yc, engine)
		if err != nil {
			return nil, nil, fmt.Errorf("yahoo token client: %w", err)
		}
		sources = append(sources, adapter)
		clients[integration.MarketplaceYahoo] = tokens
	}

	if cfg.Rakuten.Enabled {
		adapter, err := ecommerce.NewRakutenAdapter(RakutenConfig(cfg.Rakuten), registry, engine)
		if err != nil {
			return nil, nil, fmt.Errorf("rakuten adapter: %w", err)
		}
		sources = append(sources, adapter)
	}
	return sources, clients, nil
}

// YahooConfig overlays configured endpoints on the production defaults
func YahooConfig(c config.YahooConfig) *ecommerce.YahooConfig {
	yc := ecommerce.NewYahooConfig()
	if c.OrderListURL != "" {
		yc.OrderListURL = c.OrderListURL
	}
	if c.OrderInfoURL != "" {
		yc.OrderInfoURL = c.OrderInfoURL
	}
	if c.TokenURL != "" {
		yc.TokenURL = c.TokenURL
	}
	if c.TimeoutSeconds > 0 {
		yc.TimeoutSeconds = c.TimeoutSeconds
	}
	yc.RedirectURI = c.RedirectURI
	yc.PublicKey = c.PublicKey
	yc.PublicKeyVersion = c.PublicKeyVersion
	return yc
}

// RakutenConfig overlays configured endpoints on the production defaults
func RakutenConfig(c config.RakutenConfig) *ecommerce.RakutenConfig {
	rc := ecommerce.NewRakutenConfig(c.ServiceSecret)
	if c.SearchOrderURL != "" {
		rc.SearchOrderURL = c.SearchOrderURL
	}
	if c.GetOrderURL != "" {
		rc.GetOrderURL = c.GetOrderURL
	}
	if c.TimeoutSeconds > 0 {
		rc.TimeoutSeconds = c.TimeoutSeconds
	}
	return rc
}

// RetryPolicy converts the configured retry settings
func RetryPolicy(c config.RetryConfig) resilience.Policy {
	return resilience.Policy{
		MaxAttempts:         c.MaxAttempts,
		InitialInterval:     c.InitialInterval,
		MaxInterval:         c.MaxInterval,
		Multiplier:          c.Multiplier,
		RandomizationFactor: c.RandomizationFactor,
	}
}

// ServiceConfig converts the configured run tuning
func ServiceConfig(c config.IngestionConfig) appintegration.ServiceConfig {
	return appintegration.ServiceConfig{
		PageSize:        c.PageSize,
		PageCap:         c.PageCap,
		DetailDelay:     c.DetailDelay,
		InitialLookback: c.InitialLookback,
		WindowOverlap:   c.WindowOverlap,
	}
}

// SellerDirectory maps configured seller ids to shop codes. The first shop
// naming a seller wins.
func SellerDirectory(shops []config.ShopConfig) integration.SellerLookup {
	bySeller := make(map[string]string, len(shops))
	for _, s := range shops {
		if s.SellerID == "" {
			continue
		}
		if _, taken := bySeller[s.SellerID]; !taken {
			bySeller[s.SellerID] = s.Code
		}
	}
	return integration.SellerLookupFunc(func(sellerID string) (string, bool) {
		code, ok := bySeller[sellerID]
		return code, ok
	})
}
