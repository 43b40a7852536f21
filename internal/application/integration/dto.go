package integration

import (
	"time"

	"github.com/google/uuid"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Ingestion run DTOs
// ---------------------------------------------------------------------------

// IngestionRunResponse represents an ingestion run in API responses
type IngestionRunResponse struct {
	ID                     uuid.UUID               `json:"id"`
	ShopCode               string                  `json:"shop_code"`
	Marketplace            integration.Marketplace `json:"marketplace"`
	MarketplaceDisplayName string                  `json:"marketplace_display_name"`
	Mode                   integration.RunMode     `json:"mode"`
	UserTag                string                  `json:"user_tag,omitempty"`
	Status                 integration.RunStatus   `json:"status"`
	WindowFrom             time.Time               `json:"window_from"`
	WindowTo               time.Time               `json:"window_to"`
	Stats                  RunStatsResponse        `json:"stats"`
	ErrorKind              integration.ErrorKind   `json:"error_kind,omitempty"`
	Error                  string                  `json:"error,omitempty"`
	CreatedAt              time.Time               `json:"created_at"`
	StartedAt              *time.Time              `json:"started_at,omitempty"`
	FinishedAt             *time.Time              `json:"finished_at,omitempty"`
	DurationMs             int64                   `json:"duration_ms"`
}

// RunStatsResponse represents run counters in API responses
type RunStatsResponse struct {
	ReportedTotal   int  `json:"reported_total"`
	PagesFetched    int  `json:"pages_fetched"`
	RecordsFetched  int  `json:"records_fetched"`
	RecordsRejected int  `json:"records_rejected"`
	DetailsFetched  int  `json:"details_fetched"`
	LinesWritten    int  `json:"lines_written"`
	RowErrors       int  `json:"row_errors"`
	Complete        bool `json:"complete"`
}

// ---------------------------------------------------------------------------
// Request DTOs
// ---------------------------------------------------------------------------

// TriggerRunRequest represents a manual ingestion request for one shop
type TriggerRunRequest struct {
	From                *time.Time `json:"from,omitempty"`
	To                  *time.Time `json:"to,omitempty"`
	UserTag             string     `json:"user_tag,omitempty" validate:"max=64"`
	TerminateOnFallback bool       `json:"terminate_on_fallback"`
	SearchFields        []string   `json:"search_fields,omitempty" validate:"max=200"`
	DetailFields        []string   `json:"detail_fields,omitempty" validate:"max=400"`
}

// ToIngestRequest converts a trigger request for shopCode into an IngestRequest
func (r TriggerRunRequest) ToIngestRequest(shopCode string) IngestRequest {
	req := IngestRequest{
		ShopCode:            shopCode,
		Mode:                integration.RunModeManual,
		UserTag:             r.UserTag,
		TerminateOnFallback: r.TerminateOnFallback,
		SearchFields:        r.SearchFields,
		DetailFields:        r.DetailFields,
	}
	if r.From != nil {
		req.From = *r.From
	}
	if r.To != nil {
		req.To = *r.To
	}
	return req
}

// RunListFilter represents filter options for listing runs
type RunListFilter struct {
	ShopCode string `form:"shop_code"`
	Limit    int    `form:"limit"`
}

// AuthorizeRequest carries a new one-time authorization code
type AuthorizeRequest struct {
	Code string `json:"code" validate:"required,max=512"`
}

// ---------------------------------------------------------------------------
// Credential DTOs
// ---------------------------------------------------------------------------

// CredentialStatusResponse describes a shop's token state without exposing secrets
type CredentialStatusResponse struct {
	ShopCode         string                  `json:"shop_code"`
	Marketplace      integration.Marketplace `json:"marketplace"`
	AuthMode         integration.AuthMode    `json:"auth_mode"`
	State            string                  `json:"state"`
	AccessExpiresAt  time.Time               `json:"access_expires_at"`
	RefreshExpiresAt time.Time               `json:"refresh_expires_at"`
	HasPendingCode   bool                    `json:"has_pending_code"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// ---------------------------------------------------------------------------
// Conversion functions
// ---------------------------------------------------------------------------

// ToIngestionRunResponse converts a domain IngestionRun to a response DTO
func ToIngestionRunResponse(r *integration.IngestionRun) IngestionRunResponse {
	return IngestionRunResponse{
		ID:                     r.ID,
		ShopCode:               r.ShopCode,
		Marketplace:            r.Marketplace,
		MarketplaceDisplayName: r.Marketplace.DisplayName(),
		Mode:                   r.Mode,
		UserTag:                r.UserTag,
		Status:                 r.Status,
		WindowFrom:             r.WindowFrom,
		WindowTo:               r.WindowTo,
		Stats: RunStatsResponse{
			ReportedTotal:   r.Stats.ReportedTotal,
			PagesFetched:    r.Stats.PagesFetched,
			RecordsFetched:  r.Stats.RecordsFetched,
			RecordsRejected: r.Stats.RecordsRejected,
			DetailsFetched:  r.Stats.DetailsFetched,
			LinesWritten:    r.Stats.LinesWritten,
			RowErrors:       r.Stats.RowErrors,
			Complete:        r.Stats.Complete,
		},
		ErrorKind:  r.ErrorKind,
		Error:      r.Error,
		CreatedAt:  r.CreatedAt,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMs: r.Duration().Milliseconds(),
	}
}

// ToIngestionRunResponses converts a slice of domain runs to response DTOs
func ToIngestionRunResponses(runs []integration.IngestionRun) []IngestionRunResponse {
	responses := make([]IngestionRunResponse, len(runs))
	for i := range runs {
		responses[i] = ToIngestionRunResponse(&runs[i])
	}
	return responses
}

// ToCredentialStatusResponse converts a credential to its status view at now
func ToCredentialStatusResponse(c *integration.Credential, now time.Time, buffer time.Duration) CredentialStatusResponse {
	return CredentialStatusResponse{
		ShopCode:         c.ShopCode,
		Marketplace:      c.Marketplace,
		AuthMode:         c.AuthMode,
		State:            c.State(now, buffer).String(),
		AccessExpiresAt:  c.AccessExpiresAt,
		RefreshExpiresAt: c.RefreshExpiresAt,
		HasPendingCode:   c.AuthorizationCode != "",
		UpdatedAt:        c.UpdatedAt,
	}
}
