package integration

// ---------------------------------------------------------------------------
// Marketplace identifies a marketplace API family
// ---------------------------------------------------------------------------

// Marketplace identifies a marketplace API family
type Marketplace string

const (
	// MarketplaceYahoo is the XML envelope family with OAuth bearer tokens
	MarketplaceYahoo Marketplace = "yahoo"
	// MarketplaceRakuten is the JSON family authenticated by a license key
	MarketplaceRakuten Marketplace = "rakuten"
)

// AllMarketplaces returns every supported marketplace in a stable order
func AllMarketplaces() []Marketplace {
	return []Marketplace{MarketplaceYahoo, MarketplaceRakuten}
}

// IsValid returns true if the marketplace is supported
func (m Marketplace) IsValid() bool {
	switch m {
	case MarketplaceYahoo, MarketplaceRakuten:
		return true
	default:
		return false
	}
}

// String returns the string representation of Marketplace
func (m Marketplace) String() string {
	return string(m)
}

// DisplayName returns a human-readable name for the marketplace
func (m Marketplace) DisplayName() string {
	switch m {
	case MarketplaceYahoo:
		return "Yahoo! Shopping"
	case MarketplaceRakuten:
		return "Rakuten Ichiba"
	default:
		return string(m)
	}
}

// DefaultAuthMode returns the credential mode the marketplace uses
func (m Marketplace) DefaultAuthMode() AuthMode {
	if m == MarketplaceRakuten {
		return AuthModeLicense
	}
	return AuthModeOAuth
}
