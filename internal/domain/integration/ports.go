package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Credential store
// ---------------------------------------------------------------------------

// CredentialStore persists per-shop credentials.
// GetByShop returns ErrCredentialMissing when the shop has no record.
type CredentialStore interface {
	GetByShop(ctx context.Context, shopCode string) (*Credential, error)
	// Upsert writes the whole record in one atomic statement
	Upsert(ctx context.Context, cred *Credential) error
}

// RenewalLock serializes token renewal per shop across concurrent runs
type RenewalLock interface {
	// Lock blocks until the shop's renewal lock is held or ctx is done
	Lock(ctx context.Context, shopCode string) (unlock func(), err error)
}

// TokenClient talks to a marketplace token endpoint
type TokenClient interface {
	// Authorize exchanges the stored one-time code for new access and refresh tokens
	Authorize(ctx context.Context, cred *Credential) (TokenGrant, error)
	// Refresh exchanges the refresh token for a new access token
	Refresh(ctx context.Context, cred *Credential) (TokenGrant, error)
}

// ---------------------------------------------------------------------------
// Error sink
// ---------------------------------------------------------------------------

// ErrorReport is one entry sent to the error sink
type ErrorReport struct {
	ID         uuid.UUID
	Kind       ErrorKind
	Endpoint   string
	Method     string
	UserTag    string
	ShopCode   string
	RunID      uuid.UUID
	Message    string
	Extra      map[string]any
	OccurredAt time.Time
}

// ErrorSink receives reports from retry, fallback and fatal paths.
// Implementations must not fail the caller.
type ErrorSink interface {
	Report(ctx context.Context, report ErrorReport)
}

// NewErrorReport builds a report for err stamped with the run info carried in ctx
func NewErrorReport(ctx context.Context, kind ErrorKind, endpoint, method string, err error, extra map[string]any) ErrorReport {
	r := ErrorReport{
		ID:         uuid.New(),
		Kind:       kind,
		Endpoint:   endpoint,
		Method:     method,
		Extra:      extra,
		OccurredAt: time.Now(),
	}
	if err != nil {
		r.Message = err.Error()
	}
	if info, ok := RunInfoFrom(ctx); ok {
		r.UserTag = info.UserTag
		r.ShopCode = info.ShopCode
		r.RunID = info.RunID
	}
	return r
}

// ---------------------------------------------------------------------------
// Marketplace order source
// ---------------------------------------------------------------------------

// CallAuth carries what an adapter needs to authenticate one call
type CallAuth struct {
	ShopCode    string
	SellerID    string
	AccessToken string
}

// SearchCriteria selects orders in a search call
type SearchCriteria struct {
	OrderTimeFrom time.Time
	OrderTimeTo   time.Time
	// Statuses are marketplace-specific status codes; empty means adapter defaults
	Statuses []string
}

// SearchRequest is one page request. PageIndex starts at 1.
type SearchRequest struct {
	Auth      CallAuth
	Criteria  SearchCriteria
	Fields    []string
	PageIndex int
	PageSize  int
}

// SearchPage is one decoded search response
type SearchPage struct {
	Total    int
	Records  []*OrderEnvelope
	Rejected []RejectedRecord
	Raw      []byte
}

// WireCount is the number of records present on the wire, including rejected ones
func (p *SearchPage) WireCount() int {
	return len(p.Records) + len(p.Rejected)
}

// DetailRequest asks for one fully itemized order
type DetailRequest struct {
	Auth    CallAuth
	OrderID string
	Fields  []string
}

// DetailResult is one decoded detail response
type DetailResult struct {
	Envelope *OrderEnvelope
	Raw      []byte
}

// OrderSource is the port implemented by each marketplace adapter
type OrderSource interface {
	Marketplace() Marketplace
	SearchOrders(ctx context.Context, req SearchRequest) (*SearchPage, error)
	GetOrderDetail(ctx context.Context, req DetailRequest) (*DetailResult, error)
	// DefaultDetailFields lists the fields requested when the caller names none
	DefaultDetailFields() []string
	// MaxPageSize is the largest page the marketplace accepts
	MaxPageSize() int
}

// ---------------------------------------------------------------------------
// Downstream collaborators
// ---------------------------------------------------------------------------

// SellerLookup resolves a marketplace seller id to a shop code
type SellerLookup interface {
	ShopForSeller(sellerID string) (string, bool)
}

// SellerLookupFunc adapts a function to SellerLookup
type SellerLookupFunc func(sellerID string) (string, bool)

// ShopForSeller implements SellerLookup
func (f SellerLookupFunc) ShopForSeller(sellerID string) (string, bool) { return f(sellerID) }

// OrderLineRepository stores canonical lines. It never updates existing rows.
type OrderLineRepository interface {
	AppendBatch(ctx context.Context, lines []OrderLine) error
	FindByOrder(ctx context.Context, shopCode, orderID string) ([]OrderLine, error)
	CountByRun(ctx context.Context, runID uuid.UUID) (int64, error)
}

// IngestionRunRepository stores run bookkeeping
type IngestionRunRepository interface {
	Create(ctx context.Context, run *IngestionRun) error
	Update(ctx context.Context, run *IngestionRun) error
	FindByID(ctx context.Context, id uuid.UUID) (*IngestionRun, error)
	FindRecent(ctx context.Context, shopCode string, limit int) ([]IngestionRun, error)
	// LastSucceeded returns nil, nil when the shop has never completed a run
	LastSucceeded(ctx context.Context, shopCode string) (*IngestionRun, error)
}

// RawPayload is an unmodified marketplace response kept for audit
type RawPayload struct {
	ShopCode    string
	RunID       uuid.UUID
	Kind        string
	Key         string
	ContentType string
	Body        []byte
}

// RawPayloadArchiver stores raw responses
type RawPayloadArchiver interface {
	Archive(ctx context.Context, payload RawPayload) error
}

// RunPublisher announces finished runs to downstream consumers
type RunPublisher interface {
	PublishRunCompleted(ctx context.Context, run *IngestionRun) error
}
