package ecommerce

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/resilience"
	"github.com/erp/marketplace-ingest/internal/infrastructure/schema"
)

func testEngine() *resilience.Engine {
	return resilience.NewEngine(resilience.Policy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}, nil, zap.NewNop())
}

func yahooConfigFor(serverURL string) *YahooConfig {
	return &YahooConfig{
		OrderListURL: serverURL + "/orderList",
		OrderInfoURL: serverURL + "/orderInfo",
		TokenURL:     serverURL + "/token",
	}
}

func testPublicKeyPEM(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return key, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

var yahooAuth = integration.CallAuth{ShopCode: "shop-1", SellerID: "store", AccessToken: "token-abc"}

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestYahooConfig_Validate(t *testing.T) {
	_, pemKey := testPublicKeyPEM(t)

	tests := []struct {
		name    string
		config  *YahooConfig
		wantErr error
	}{
		{name: "valid config", config: NewYahooConfig()},
		{name: "missing order list URL", config: &YahooConfig{OrderInfoURL: "x", TokenURL: "x"}, wantErr: ErrYahooConfigMissingOrderListURL},
		{name: "missing order info URL", config: &YahooConfig{OrderListURL: "x", TokenURL: "x"}, wantErr: ErrYahooConfigMissingOrderInfoURL},
		{name: "missing token URL", config: &YahooConfig{OrderListURL: "x", OrderInfoURL: "x"}, wantErr: ErrYahooConfigMissingTokenURL},
		{name: "garbage public key", config: &YahooConfig{OrderListURL: "x", OrderInfoURL: "x", TokenURL: "x", PublicKey: "nope", PublicKeyVersion: "1"}, wantErr: ErrYahooConfigInvalidPublicKey},
		{name: "key without version", config: &YahooConfig{OrderListURL: "x", OrderInfoURL: "x", TokenURL: "x", PublicKey: pemKey}, wantErr: ErrYahooConfigMissingKeyVersion},
		{name: "key with version", config: &YahooConfig{OrderListURL: "x", OrderInfoURL: "x", TokenURL: "x", PublicKey: pemKey, PublicKeyVersion: "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.True(t, tt.config.TimeoutSeconds > 0)
			assert.True(t, tt.config.MaxPageSize > 0)
		})
	}
}

func TestYahooConfig_Signature(t *testing.T) {
	priv, pemKey := testPublicKeyPEM(t)
	cfg := &YahooConfig{OrderListURL: "x", OrderInfoURL: "x", TokenURL: "x", PublicKey: pemKey, PublicKeyVersion: "2"}
	require.NoError(t, cfg.Validate())
	require.True(t, cfg.SignsRequests())

	now := time.Unix(1772330400, 0)
	sig, err := cfg.Signature("store", now)
	require.NoError(t, err)

	sealed, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)
	plain, err := rsa.DecryptPKCS1v15(rand.Reader, priv, sealed)
	require.NoError(t, err)
	assert.Equal(t, "store:1772330400", string(plain))
}

// ---------------------------------------------------------------------------
// Adapter Tests
// ---------------------------------------------------------------------------

const yahooOrderListXML = `<?xml version="1.0" encoding="UTF-8"?>
<Result>
  <Search>
    <TotalCount>3</TotalCount>
    <OrderInfo><Index>1</Index><OrderId>store-1</OrderId><Version>2</Version><OrderTime>2026-03-01T10:00:00+09:00</OrderTime></OrderInfo>
    <OrderInfo><Index>2</Index><OrderId>store-2</OrderId><Version>two</Version></OrderInfo>
    <OrderInfo><Index>3</Index><OrderId>store-3</OrderId><IsSeen>true</IsSeen><Unknown>x</Unknown></OrderInfo>
  </Search>
</Result>`

func TestYahooAdapter_SearchOrders(t *testing.T) {
	var got YahooOrderListRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orderList", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("X-sws-signature"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, xml.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(yahooOrderListXML))
	}))
	defer server.Close()

	adapter, err := NewYahooAdapter(yahooConfigFor(server.URL), schema.Default(), testEngine())
	require.NoError(t, err)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	page, err := adapter.SearchOrders(context.Background(), integration.SearchRequest{
		Auth:      yahooAuth,
		Criteria:  integration.SearchCriteria{OrderTimeFrom: from, OrderTimeTo: from.Add(time.Hour)},
		Fields:    []string{"OrderTime", "Version"},
		PageIndex: 3,
		PageSize:  50,
	})
	require.NoError(t, err)

	assert.Equal(t, 101, got.Search.Start)
	assert.Equal(t, 50, got.Search.Result)
	assert.Equal(t, "store", got.SellerID)
	assert.Equal(t, "20260301090000", got.Search.Condition.OrderTimeFrom)
	assert.Equal(t, "OrderId,OrderTime,Version", got.Search.Field)

	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 3, page.WireCount())
	require.Len(t, page.Records, 2)
	assert.Equal(t, "store-1", page.Records[0].OrderID)
	assert.Equal(t, "store-3", page.Records[1].OrderID)
	assert.Equal(t, true, page.Records[1].Header(schema.YahooGroupSearch)["IsSeen"])
	assert.False(t, page.Records[1].Header(schema.YahooGroupSearch).Has("Unknown"))

	require.Len(t, page.Rejected, 1)
	assert.Equal(t, "store-2", page.Rejected[0].OrderID)
	assert.Equal(t, 1, page.Rejected[0].Position)
	assert.ErrorIs(t, page.Rejected[0].Err, integration.ErrDecode)
	assert.NotEmpty(t, page.Raw)
}

func TestYahooAdapter_SearchOrders_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `<Error><Message>invalid token</Message></Error>`, wantErr: integration.ErrPlatformAuthFailed},
		{name: "bad request", status: http.StatusBadRequest, body: `<Error><Code>od83000</Code></Error>`, wantErr: integration.ErrPlatformRequestFailed},
		{name: "error document with 200", status: http.StatusOK, body: `<Error><Code>px-04102</Code><Message>seller mismatch</Message></Error>`, wantErr: integration.ErrPlatformRequestFailed},
		{name: "malformed", status: http.StatusOK, body: `<Result><Search>`, wantErr: integration.ErrPlatformInvalidResponse},
		{name: "missing total", status: http.StatusOK, body: `<Result><Search></Search></Result>`, wantErr: integration.ErrPlatformInvalidResponse},
		{name: "unavailable after retries", status: http.StatusServiceUnavailable, body: ``, wantErr: integration.ErrPlatformUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			adapter, err := NewYahooAdapter(yahooConfigFor(server.URL), schema.Default(), testEngine())
			require.NoError(t, err)

			_, err = adapter.SearchOrders(context.Background(), integration.SearchRequest{Auth: yahooAuth, PageIndex: 1, PageSize: 10})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestYahooAdapter_SearchOrders_RequiresSeller(t *testing.T) {
	adapter, err := NewYahooAdapter(yahooConfigFor("http://unused"), schema.Default(), testEngine())
	require.NoError(t, err)
	_, err = adapter.SearchOrders(context.Background(), integration.SearchRequest{PageIndex: 1, PageSize: 10})
	assert.ErrorIs(t, err, integration.ErrConfiguration)
}

const yahooOrderInfoXML = `<?xml version="1.0" encoding="UTF-8"?>
<ResultSet totalResultsAvailable="1">
  <Result>
    <Status>OK</Status>
    <OrderInfo>
      <OrderId>store-1</OrderId>
      <OrderTime>2026-03-01T10:00:00+09:00</OrderTime>
      <Ship><ShipZipCode>100-0001</ShipZipCode><ShipLastName>佐藤</ShipLastName></Ship>
      <Seller><SellerId>store</SellerId></Seller>
      <Detail><TotalPrice>2400</TotalPrice></Detail>
      <Item>
        <LineId>1</LineId><ItemId>tea</ItemId><Quantity>2</Quantity><UnitPrice>1200</UnitPrice>
        <ItemOption><Index>1</Index><Name>Size</Name><Value>L</Value></ItemOption>
      </Item>
    </OrderInfo>
  </Result>
</ResultSet>`

func TestYahooAdapter_GetOrderDetail_Signed(t *testing.T) {
	priv, pemKey := testPublicKeyPEM(t)
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// first attempt fails to prove each retry is re-signed
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "/orderInfo", r.URL.Path)
		assert.Equal(t, "7", r.Header.Get("X-sws-signature-version"))
		sealed, err := base64.StdEncoding.DecodeString(r.Header.Get("X-sws-signature"))
		assert.NoError(t, err)
		plain, err := rsa.DecryptPKCS1v15(rand.Reader, priv, sealed)
		assert.NoError(t, err)
		seller, ts, _ := strings.Cut(string(plain), ":")
		assert.Equal(t, "store", seller)
		_, err = strconv.ParseInt(ts, 10, 64)
		assert.NoError(t, err)

		var req YahooOrderInfoRequest
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, xml.Unmarshal(body, &req))
		assert.Equal(t, "store-1", req.Target.OrderID)
		assert.True(t, strings.HasPrefix(req.Target.Field, "OrderId,"))

		_, _ = w.Write([]byte(yahooOrderInfoXML))
	}))
	defer server.Close()

	cfg := yahooConfigFor(server.URL)
	cfg.PublicKey = pemKey
	cfg.PublicKeyVersion = "7"
	adapter, err := NewYahooAdapter(cfg, schema.Default(), testEngine())
	require.NoError(t, err)

	res, err := adapter.GetOrderDetail(context.Background(), integration.DetailRequest{Auth: yahooAuth, OrderID: "store-1"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())

	env := res.Envelope
	assert.Equal(t, "store-1", env.OrderID)
	assert.Equal(t, integration.EnvelopeLevelDetail, env.Level)
	assert.Equal(t, "store", env.Header(schema.YahooGroupSeller)["SellerId"])
	assert.Equal(t, "100-0001", env.Header(schema.YahooGroupShip)["ShipZipCode"])
	require.Len(t, env.Items, 1)
	assert.Equal(t, int64(2), env.Items[0].Fields["Quantity"])
	require.Len(t, env.Items[0].Options, 1)
	assert.Equal(t, "Size", env.Items[0].Options[0]["Name"])
}

func TestYahooAdapter_GetOrderDetail_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{name: "status NG", body: `<ResultSet><Result><Status>NG</Status></Result></ResultSet>`, wantErr: integration.ErrPlatformRequestFailed},
		{name: "no order", body: `<ResultSet><Result><Status>OK</Status></Result></ResultSet>`, wantErr: integration.ErrPlatformInvalidResponse},
		{name: "undecodable item", body: `<ResultSet><Result><Status>OK</Status><OrderInfo><OrderId>store-1</OrderId><Item><Quantity>lots</Quantity></Item></OrderInfo></Result></ResultSet>`, wantErr: integration.ErrDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			adapter, err := NewYahooAdapter(yahooConfigFor(server.URL), schema.Default(), testEngine())
			require.NoError(t, err)
			_, err = adapter.GetOrderDetail(context.Background(), integration.DetailRequest{Auth: yahooAuth, OrderID: "store-1"})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestYahooAdapter_Defaults(t *testing.T) {
	adapter, err := NewYahooAdapter(NewYahooConfig(), schema.Default(), testEngine())
	require.NoError(t, err)
	assert.Equal(t, integration.MarketplaceYahoo, adapter.Marketplace())
	assert.Equal(t, 2000, adapter.MaxPageSize())
	assert.Contains(t, adapter.DefaultDetailFields(), "SellerId")
	assert.Contains(t, adapter.DefaultDetailFields(), "LineId")
	assert.NoError(t, schema.Default().Validate(integration.MarketplaceYahoo, adapter.DefaultDetailFields()))

	_, err = NewYahooAdapter(&YahooConfig{}, schema.Default(), testEngine())
	assert.ErrorIs(t, err, ErrYahooConfigMissingOrderListURL)
}

// ---------------------------------------------------------------------------
// Token Client Tests
// ---------------------------------------------------------------------------

func TestYahooTokenClient(t *testing.T) {
	var form map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", id)
		assert.Equal(t, "secret", secret)
		assert.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		if form["code"] == "used" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code already used"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"new-access","token_type":"Bearer","expires_in":3600,"refresh_token":"new-refresh"}`))
	}))
	defer server.Close()

	client, err := NewYahooTokenClient(yahooConfigFor(server.URL), testEngine())
	require.NoError(t, err)
	cred := &integration.Credential{
		ShopCode:          "shop-1",
		ClientID:          "client",
		ClientSecret:      "secret",
		AuthorizationCode: "code-1",
		RefreshToken:      "old-refresh",
		RedirectURI:       "https://example.com/cb",
	}

	t.Run("authorize", func(t *testing.T) {
		grant, err := client.Authorize(context.Background(), cred)
		require.NoError(t, err)
		assert.Equal(t, "authorization_code", form["grant_type"])
		assert.Equal(t, "code-1", form["code"])
		assert.Equal(t, "https://example.com/cb", form["redirect_uri"])
		assert.Equal(t, "new-access", grant.AccessToken)
		assert.Equal(t, "new-refresh", grant.RefreshToken)
		assert.Equal(t, time.Hour, grant.ExpiresIn)
	})

	t.Run("refresh", func(t *testing.T) {
		_, err := client.Refresh(context.Background(), cred)
		require.NoError(t, err)
		assert.Equal(t, "refresh_token", form["grant_type"])
		assert.Equal(t, "old-refresh", form["refresh_token"])
	})

	t.Run("rejected grant", func(t *testing.T) {
		used := cred.Clone()
		used.AuthorizationCode = "used"
		_, err := client.Authorize(context.Background(), used)
		assert.ErrorIs(t, err, integration.ErrPlatformAuthFailed)
		assert.Contains(t, err.Error(), "invalid_grant")
	})

	t.Run("missing client credentials", func(t *testing.T) {
		bare := cred.Clone()
		bare.ClientSecret = ""
		_, err := client.Refresh(context.Background(), bare)
		assert.ErrorIs(t, err, integration.ErrConfiguration)
	})
}
