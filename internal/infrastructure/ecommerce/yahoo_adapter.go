package ecommerce

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/decoder"
	"github.com/erp/marketplace-ingest/internal/infrastructure/resilience"
	"github.com/erp/marketplace-ingest/internal/infrastructure/schema"
)

// marketplaceZone is the zone of order-time search conditions
var marketplaceZone = time.FixedZone("JST", 9*60*60)

// YahooAdapter implements integration.OrderSource for Yahoo Shopping
type YahooAdapter struct {
	config       *YahooConfig
	httpClient   *http.Client
	engine       *resilience.Engine
	decoder      *decoder.Decoder
	searchFields []string
	detailFields []string
	now          func() time.Time
}

var _ integration.OrderSource = (*YahooAdapter)(nil)

// NewYahooAdapter creates a new Yahoo adapter with the given configuration
func NewYahooAdapter(config *YahooConfig, registry *schema.Registry, engine *resilience.Engine) (*YahooAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if registry == nil || engine == nil {
		return nil, integration.ErrPlatformNotConfigured
	}

	search, ok := registry.Group(integration.MarketplaceYahoo, schema.YahooGroupSearch)
	if !ok {
		return nil, integration.ErrPlatformNotConfigured
	}

	return &YahooAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		engine:       engine,
		decoder:      decoder.New(registry, integration.MarketplaceYahoo),
		searchFields: search.Names(),
		detailFields: registry.FieldsOfScope(integration.MarketplaceYahoo,
			integration.GroupScopeHeader, integration.GroupScopeItem, integration.GroupScopeItemChild),
		now: time.Now,
	}, nil
}

// Marketplace returns the marketplace this adapter handles
func (a *YahooAdapter) Marketplace() integration.Marketplace {
	return integration.MarketplaceYahoo
}

// DefaultDetailFields returns every header and item field of the schema
func (a *YahooAdapter) DefaultDetailFields() []string {
	return a.detailFields
}

// MaxPageSize returns the largest orderList page
func (a *YahooAdapter) MaxPageSize() int {
	return a.config.MaxPageSize
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// SearchOrders calls orderList for one page.
// Records with an undecodable value are returned in Rejected at their wire position.
func (a *YahooAdapter) SearchOrders(ctx context.Context, req integration.SearchRequest) (*integration.SearchPage, error) {
	if req.Auth.SellerID == "" {
		return nil, &integration.ConfigurationError{Key: "credential.seller_id", Reason: "required for yahoo"}
	}

	fields := req.Fields
	if len(fields) == 0 {
		fields = a.searchFields
	}
	body := YahooOrderListRequest{
		Search: YahooSearchParams{
			Result: req.PageSize,
			Start:  (req.PageIndex-1)*req.PageSize + 1,
			Sort:   yahooSort,
			Condition: YahooSearchCondition{
				OrderTimeFrom: formatYahooTime(req.Criteria.OrderTimeFrom),
				OrderTimeTo:   formatYahooTime(req.Criteria.OrderTimeTo),
				OrderStatus:   strings.Join(req.Criteria.Statuses, ","),
			},
			Field: strings.Join(withKeyField(fields, "OrderId"), ","),
		},
		SellerID: req.Auth.SellerID,
	}

	resp, err := a.post(ctx, "yahoo.orderList", a.config.OrderListURL, body, req.Auth)
	if err != nil {
		return nil, err
	}

	root, err := decoder.ParseXML(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}
	if err := yahooError(root); err != nil {
		return nil, err
	}
	search := root.Find("Search")
	if search == nil {
		return nil, fmt.Errorf("%w: orderList response has no Search element", integration.ErrPlatformInvalidResponse)
	}

	meta, err := a.decoder.Decode(search, schema.YahooGroupSearchMeta)
	if err != nil {
		return nil, err
	}
	total, ok := meta.Int("TotalCount")
	if !ok {
		return nil, fmt.Errorf("%w: orderList response has no TotalCount", integration.ErrPlatformInvalidResponse)
	}

	page := &integration.SearchPage{Total: int(total), Raw: resp.Body}
	for i, rec := range search.ChildrenNamed("OrderInfo") {
		env, err := a.decoder.DecodeEnvelope(rec, yahooSearchLayout)
		if err != nil {
			var de *integration.DecodeError
			if errors.As(err, &de) {
				page.Rejected = append(page.Rejected, integration.RejectedRecord{
					OrderID:  decoder.KeyOf(rec, yahooSearchLayout),
					Position: i,
					Err:      err,
				})
				continue
			}
			return nil, err
		}
		page.Records = append(page.Records, env)
	}
	return page, nil
}

// GetOrderDetail calls orderInfo for one order
func (a *YahooAdapter) GetOrderDetail(ctx context.Context, req integration.DetailRequest) (*integration.DetailResult, error) {
	if req.Auth.SellerID == "" {
		return nil, &integration.ConfigurationError{Key: "credential.seller_id", Reason: "required for yahoo"}
	}
	if req.OrderID == "" {
		return nil, fmt.Errorf("%w: empty order id", integration.ErrPlatformRequestFailed)
	}

	fields := req.Fields
	if len(fields) == 0 {
		fields = a.detailFields
	}
	body := YahooOrderInfoRequest{
		Target: YahooOrderTarget{
			OrderID: req.OrderID,
			Field:   strings.Join(withKeyField(fields, "OrderId"), ","),
		},
		SellerID: req.Auth.SellerID,
	}

	resp, err := a.post(ctx, "yahoo.orderInfo", a.config.OrderInfoURL, body, req.Auth)
	if err != nil {
		return nil, err
	}

	root, err := decoder.ParseXML(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}
	if err := yahooError(root); err != nil {
		return nil, err
	}
	if status := root.Find("Result/Status"); status != nil && status.Text != "OK" {
		return nil, fmt.Errorf("%w: orderInfo status %s", integration.ErrPlatformRequestFailed, status.Text)
	}
	record := root.Find("Result/OrderInfo")
	if record == nil {
		return nil, fmt.Errorf("%w: orderInfo response has no OrderInfo", integration.ErrPlatformInvalidResponse)
	}

	env, err := a.decoder.DecodeEnvelope(record, yahooDetailLayout)
	if err != nil {
		return nil, err
	}
	return &integration.DetailResult{Envelope: env, Raw: resp.Body}, nil
}

// ---------------------------------------------------------------------------
// Helper Methods
// ---------------------------------------------------------------------------

// post sends an XML request through the resilience engine
func (a *YahooAdapter) post(ctx context.Context, endpoint, url string, body any, auth integration.CallAuth) (*resilience.Response, error) {
	payload, err := xml.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("yahoo: failed to encode request: %w", err)
	}
	payload = append([]byte(xml.Header), payload...)

	call := resilience.Call{Endpoint: endpoint, Method: http.MethodPost}
	return a.engine.DoHTTP(ctx, a.httpClient, call, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/xml; charset=utf-8")
		req.Header.Set("Authorization", "Bearer "+auth.AccessToken)
		if a.config.SignsRequests() {
			// signed per attempt so the embedded timestamp stays fresh
			sig, err := a.config.Signature(auth.SellerID, a.now())
			if err != nil {
				return nil, err
			}
			req.Header.Set("X-sws-signature", sig)
			req.Header.Set("X-sws-signature-version", a.config.PublicKeyVersion)
		}
		return req, nil
	})
}

// yahooError converts an <Error> document into ErrPlatformRequestFailed
func yahooError(root *decoder.Node) error {
	if root.Name != "Error" {
		return nil
	}
	var code, message string
	if n := root.Child("Code"); n != nil {
		code = n.Text
	}
	if n := root.Child("Message"); n != nil {
		message = n.Text
	}
	return fmt.Errorf("%w: yahoo error %s: %s", integration.ErrPlatformRequestFailed, code, message)
}

func formatYahooTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(marketplaceZone).Format(yahooTimeLayout)
}

// withKeyField makes sure the order id is always requested
func withKeyField(fields []string, key string) []string {
	for _, f := range fields {
		if f == key {
			return fields
		}
	}
	out := make([]string, 0, len(fields)+1)
	out = append(out, key)
	return append(out, fields...)
}
