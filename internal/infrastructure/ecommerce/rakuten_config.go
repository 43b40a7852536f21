package ecommerce

import (
	"encoding/base64"
	"errors"
)

// RakutenConfig holds configuration for the Rakuten RMS order API
type RakutenConfig struct {
	// SearchOrderURL is the searchOrder endpoint
	SearchOrderURL string
	// GetOrderURL is the getOrder endpoint
	GetOrderURL string
	// ServiceSecret is the RMS service secret paired with each shop's license key
	ServiceSecret string
	// OrderVersion is the getOrder response version
	OrderVersion int
	// DateType selects which order date the search window applies to (1 = order date)
	DateType int
	// MaxPageSize is the largest searchOrder page accepted
	MaxPageSize int
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

const (
	// RakutenProductionSearchOrderURL is the production searchOrder endpoint
	RakutenProductionSearchOrderURL = "https://api.rms.rakuten.co.jp/es/2.0/order/searchOrder/"
	// RakutenProductionGetOrderURL is the production getOrder endpoint
	RakutenProductionGetOrderURL = "https://api.rms.rakuten.co.jp/es/2.0/order/getOrder/"

	rakutenDefaultMaxPageSize  = 1000
	rakutenDefaultOrderVersion = 7
)

// Errors for Rakuten configuration
var (
	ErrRakutenConfigMissingSearchOrderURL = errors.New("rakuten: search order URL is required")
	ErrRakutenConfigMissingGetOrderURL    = errors.New("rakuten: get order URL is required")
	ErrRakutenConfigMissingServiceSecret  = errors.New("rakuten: service secret is required")
)

// NewRakutenConfig creates a Rakuten configuration pointing at production endpoints
func NewRakutenConfig(serviceSecret string) *RakutenConfig {
	return &RakutenConfig{
		SearchOrderURL: RakutenProductionSearchOrderURL,
		GetOrderURL:    RakutenProductionGetOrderURL,
		ServiceSecret:  serviceSecret,
		OrderVersion:   rakutenDefaultOrderVersion,
		DateType:       1,
		MaxPageSize:    rakutenDefaultMaxPageSize,
		TimeoutSeconds: 30,
	}
}

// Validate validates the Rakuten configuration
func (c *RakutenConfig) Validate() error {
	if c.SearchOrderURL == "" {
		return ErrRakutenConfigMissingSearchOrderURL
	}
	if c.GetOrderURL == "" {
		return ErrRakutenConfigMissingGetOrderURL
	}
	if c.ServiceSecret == "" {
		return ErrRakutenConfigMissingServiceSecret
	}
	if c.OrderVersion <= 0 {
		c.OrderVersion = rakutenDefaultOrderVersion
	}
	if c.DateType <= 0 {
		c.DateType = 1
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = rakutenDefaultMaxPageSize
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}

// Authorization returns the ESA header value for a shop's license key
func (c *RakutenConfig) Authorization(licenseKey string) string {
	return "ESA " + base64.StdEncoding.EncodeToString([]byte(c.ServiceSecret+":"+licenseKey))
}
