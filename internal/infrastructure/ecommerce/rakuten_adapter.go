package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/decoder"
	"github.com/erp/marketplace-ingest/internal/infrastructure/resilience"
	"github.com/erp/marketplace-ingest/internal/infrastructure/schema"
)

// RakutenAdapter implements integration.OrderSource for Rakuten RMS.
// The shop's license key travels in the credential's access token.
type RakutenAdapter struct {
	config       *RakutenConfig
	httpClient   *http.Client
	engine       *resilience.Engine
	decoder      *decoder.Decoder
	detailFields []string
}

var _ integration.OrderSource = (*RakutenAdapter)(nil)

// NewRakutenAdapter creates a new Rakuten adapter with the given configuration
func NewRakutenAdapter(config *RakutenConfig, registry *schema.Registry, engine *resilience.Engine) (*RakutenAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if registry == nil || engine == nil {
		return nil, integration.ErrPlatformNotConfigured
	}
	return &RakutenAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		engine:  engine,
		decoder: decoder.New(registry, integration.MarketplaceRakuten),
		detailFields: registry.FieldsOfScope(integration.MarketplaceRakuten,
			integration.GroupScopeHeader, integration.GroupScopeItem, integration.GroupScopeItemChild),
	}, nil
}

// Marketplace returns the marketplace this adapter handles
func (a *RakutenAdapter) Marketplace() integration.Marketplace {
	return integration.MarketplaceRakuten
}

// DefaultDetailFields returns every header and item field of the schema.
// getOrder always returns the full order; the list is used for validation only.
func (a *RakutenAdapter) DefaultDetailFields() []string {
	return a.detailFields
}

// MaxPageSize returns the largest searchOrder page
func (a *RakutenAdapter) MaxPageSize() int {
	return a.config.MaxPageSize
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// SearchOrders calls searchOrder for one page of order numbers
func (a *RakutenAdapter) SearchOrders(ctx context.Context, req integration.SearchRequest) (*integration.SearchPage, error) {
	if req.Criteria.OrderTimeFrom.IsZero() || req.Criteria.OrderTimeTo.IsZero() {
		return nil, &integration.ConfigurationError{Key: "criteria", Reason: "rakuten search needs an order time window"}
	}
	progress, err := parseProgressList(req.Criteria.Statuses)
	if err != nil {
		return nil, err
	}

	body := RakutenSearchOrderRequest{
		DateType:          a.config.DateType,
		StartDatetime:     req.Criteria.OrderTimeFrom.In(marketplaceZone).Format(rakutenTimeLayout),
		EndDatetime:       req.Criteria.OrderTimeTo.In(marketplaceZone).Format(rakutenTimeLayout),
		OrderProgressList: progress,
		PaginationRequestModel: RakutenPaginationRequest{
			RequestRecordsAmount: req.PageSize,
			RequestPage:          req.PageIndex,
			SortModelList:        []RakutenSortModel{{SortColumn: rakutenSortOrderDatetime, SortDirection: rakutenSortAscending}},
		},
	}

	root, raw, err := a.post(ctx, "rakuten.searchOrder", a.config.SearchOrderURL, body, req.Auth)
	if err != nil {
		return nil, err
	}

	meta := root.Find("PaginationResponseModel")
	if meta == nil {
		return nil, fmt.Errorf("%w: searchOrder response has no PaginationResponseModel", integration.ErrPlatformInvalidResponse)
	}
	fm, err := a.decoder.Decode(meta, schema.RakutenGroupSearchMeta)
	if err != nil {
		return nil, err
	}
	total, ok := fm.Int("totalRecordsAmount")
	if !ok {
		return nil, fmt.Errorf("%w: searchOrder response has no totalRecordsAmount", integration.ErrPlatformInvalidResponse)
	}
	records := root.FindAll("orderNumberList")

	page := &integration.SearchPage{Total: int(total), Raw: raw}
	for i, rec := range records {
		env, err := a.decoder.DecodeEnvelope(rec, rakutenSearchLayout)
		if err != nil {
			var de *integration.DecodeError
			if errors.As(err, &de) {
				page.Rejected = append(page.Rejected, integration.RejectedRecord{
					OrderID:  decoder.KeyOf(rec, rakutenSearchLayout),
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

// GetOrderDetail calls getOrder for one order number
func (a *RakutenAdapter) GetOrderDetail(ctx context.Context, req integration.DetailRequest) (*integration.DetailResult, error) {
	if req.OrderID == "" {
		return nil, fmt.Errorf("%w: empty order number", integration.ErrPlatformRequestFailed)
	}
	body := RakutenGetOrderRequest{
		OrderNumberList: []string{req.OrderID},
		Version:         a.config.OrderVersion,
	}

	root, raw, err := a.post(ctx, "rakuten.getOrder", a.config.GetOrderURL, body, req.Auth)
	if err != nil {
		return nil, err
	}
	record := root.Find("OrderModelList")
	if record == nil {
		return nil, fmt.Errorf("%w: getOrder returned no order for %s", integration.ErrPlatformInvalidResponse, req.OrderID)
	}

	env, err := a.decoder.DecodeEnvelope(record, rakutenDetailLayout)
	if err != nil {
		return nil, err
	}
	return &integration.DetailResult{Envelope: env, Raw: raw}, nil
}

// ---------------------------------------------------------------------------
// Helper Methods
// ---------------------------------------------------------------------------

// post sends a JSON request and parses the response, failing on ERROR messages
func (a *RakutenAdapter) post(ctx context.Context, endpoint, url string, body any, auth integration.CallAuth) (*decoder.Node, []byte, error) {
	if auth.AccessToken == "" {
		return nil, nil, &integration.ConfigurationError{Key: "credential.access_token", Reason: "rakuten license key is required"}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("rakuten: failed to encode request: %w", err)
	}

	call := resilience.Call{Endpoint: endpoint, Method: http.MethodPost}
	resp, err := a.engine.DoHTTP(ctx, a.httpClient, call, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		req.Header.Set("Authorization", a.config.Authorization(auth.AccessToken))
		return req, nil
	})
	if err != nil {
		return nil, nil, err
	}

	root, err := decoder.ParseJSON(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}
	if err := rakutenError(root); err != nil {
		return nil, nil, err
	}
	return root, resp.Body, nil
}

// rakutenError returns the first ERROR entry of MessageModelList
func rakutenError(root *decoder.Node) error {
	for _, m := range root.FindAll("MessageModelList") {
		kind, _, _ := m.Value("messageType")
		if kind != "ERROR" {
			continue
		}
		code, _, _ := m.Value("messageCode")
		msg, _, _ := m.Value("message")
		return fmt.Errorf("%w: rakuten error %s: %s", integration.ErrPlatformRequestFailed, code, msg)
	}
	return nil
}

func parseProgressList(statuses []string) ([]int, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	out := make([]int, 0, len(statuses))
	for _, s := range statuses {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, &integration.ConfigurationError{Key: "criteria.statuses", Reason: fmt.Sprintf("rakuten order progress %q is not a number", s)}
		}
		out = append(out, n)
	}
	return out, nil
}
