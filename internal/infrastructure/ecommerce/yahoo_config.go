package ecommerce

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// YahooConfig holds configuration for the Yahoo Shopping order API
type YahooConfig struct {
	// OrderListURL is the orderList (search) endpoint
	OrderListURL string
	// OrderInfoURL is the orderInfo (detail) endpoint
	OrderInfoURL string
	// TokenURL is the OAuth token endpoint
	TokenURL string
	// RedirectURI is sent with authorization code exchanges when the credential has none
	RedirectURI string
	// PublicKey is the PEM-encoded store public key; signature headers are sent only when set
	PublicKey string
	// PublicKeyVersion is sent as X-sws-signature-version
	PublicKeyVersion string
	// MaxPageSize is the largest orderList result count accepted
	MaxPageSize int
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int

	publicKey *rsa.PublicKey
}

const (
	// YahooProductionOrderListURL is the production orderList endpoint
	YahooProductionOrderListURL = "https://circus.shopping.yahooapis.jp/ShoppingWebService/V1/orderList"
	// YahooProductionOrderInfoURL is the production orderInfo endpoint
	YahooProductionOrderInfoURL = "https://circus.shopping.yahooapis.jp/ShoppingWebService/V1/orderInfo"
	// YahooProductionTokenURL is the production token endpoint
	YahooProductionTokenURL = "https://auth.login.yahoo.co.jp/yconnect/v2/token"

	yahooDefaultMaxPageSize = 2000
)

// Errors for Yahoo configuration
var (
	ErrYahooConfigMissingOrderListURL = errors.New("yahoo: order list URL is required")
	ErrYahooConfigMissingOrderInfoURL = errors.New("yahoo: order info URL is required")
	ErrYahooConfigMissingTokenURL     = errors.New("yahoo: token URL is required")
	ErrYahooConfigInvalidPublicKey    = errors.New("yahoo: public key is not a PEM-encoded RSA key")
	ErrYahooConfigMissingKeyVersion   = errors.New("yahoo: public key version is required with a public key")
)

// NewYahooConfig creates a Yahoo configuration pointing at production endpoints
func NewYahooConfig() *YahooConfig {
	return &YahooConfig{
		OrderListURL:   YahooProductionOrderListURL,
		OrderInfoURL:   YahooProductionOrderInfoURL,
		TokenURL:       YahooProductionTokenURL,
		MaxPageSize:    yahooDefaultMaxPageSize,
		TimeoutSeconds: 30,
	}
}

// Validate validates the Yahoo configuration and parses the public key
func (c *YahooConfig) Validate() error {
	if c.OrderListURL == "" {
		return ErrYahooConfigMissingOrderListURL
	}
	if c.OrderInfoURL == "" {
		return ErrYahooConfigMissingOrderInfoURL
	}
	if c.TokenURL == "" {
		return ErrYahooConfigMissingTokenURL
	}
	if c.PublicKey != "" {
		key, err := parseRSAPublicKey(c.PublicKey)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrYahooConfigInvalidPublicKey, err)
		}
		if c.PublicKeyVersion == "" {
			return ErrYahooConfigMissingKeyVersion
		}
		c.publicKey = key
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = yahooDefaultMaxPageSize
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}

// SignsRequests reports whether signature headers are sent
func (c *YahooConfig) SignsRequests() bool {
	return c.publicKey != nil
}

// Signature encrypts "sellerId:unixtime" with the store public key (RSA PKCS#1 v1.5)
// and returns it base64-encoded, as expected in X-sws-signature
func (c *YahooConfig) Signature(sellerID string, now time.Time) (string, error) {
	if c.publicKey == nil {
		return "", ErrYahooConfigInvalidPublicKey
	}
	plain := sellerID + ":" + strconv.FormatInt(now.Unix(), 10)
	sealed, err := rsa.EncryptPKCS1v15(rand.Reader, c.publicKey, []byte(plain))
	if err != nil {
		return "", fmt.Errorf("yahoo: failed to sign request: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func parseRSAPublicKey(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, errors.New("no PEM block")
	}
	if pub, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("unexpected key type %T", pub)
		}
		return key, nil
	}
	return x509.ParsePKCS1PublicKey(block.Bytes)
}
