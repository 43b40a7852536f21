package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/persistence"
	"github.com/erp/marketplace-ingest/internal/interfaces/http/dto"
)

// ErrorReportReader reads persisted error sink entries
type ErrorReportReader interface {
	FindRecent(ctx context.Context, filter persistence.ErrorReportFilter) ([]integration.ErrorReport, error)
}

var _ ErrorReportReader = (*persistence.GormErrorReportRepository)(nil)

// ErrorReportHandler serves the error dashboard feed
type ErrorReportHandler struct {
	BaseHandler
	reports ErrorReportReader
}

// NewErrorReportHandler creates a new ErrorReportHandler
func NewErrorReportHandler(reports ErrorReportReader) *ErrorReportHandler {
	return &ErrorReportHandler{reports: reports}
}

// ErrorReportQuery filters the error report list
type ErrorReportQuery struct {
	ShopCode string    `form:"shop_code"`
	Kind     string    `form:"kind" binding:"omitempty,oneof=configuration auth_expired transient_http unknown_field decode fatal_consistency row_mapping internal"`
	Since    time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit    int       `form:"limit" binding:"omitempty,min=1,max=200"`
}

// ErrorReportResponse is one error report in API responses
type ErrorReportResponse struct {
	ID         uuid.UUID             `json:"id"`
	Kind       integration.ErrorKind `json:"kind"`
	Endpoint   string                `json:"endpoint,omitempty"`
	Method     string                `json:"method,omitempty"`
	UserTag    string                `json:"user_tag,omitempty"`
	ShopCode   string                `json:"shop_code,omitempty"`
	RunID      *uuid.UUID            `json:"run_id,omitempty"`
	Message    string                `json:"message"`
	Extra      map[string]any        `json:"extra,omitempty"`
	OccurredAt time.Time             `json:"occurred_at"`
}

func toErrorReportResponse(r integration.ErrorReport) ErrorReportResponse {
	resp := ErrorReportResponse{
		ID:         r.ID,
		Kind:       r.Kind,
		Endpoint:   r.Endpoint,
		Method:     r.Method,
		UserTag:    r.UserTag,
		ShopCode:   r.ShopCode,
		Message:    r.Message,
		Extra:      r.Extra,
		OccurredAt: r.OccurredAt,
	}
	if r.RunID != uuid.Nil {
		id := r.RunID
		resp.RunID = &id
	}
	return resp
}

// ListErrorReports returns the newest error reports
//
//	@ID				listErrorReports
//	@Summary		List error reports
//	@Tags			ingestion
//	@Produce		json
//	@Param			shop_code	query	string	false	"Shop code"
//	@Param			kind	query	string	false	"Error kind"
//	@Param			since	query	string	false	"RFC 3339 lower bound"	format(date-time)
//	@Param			limit	query	int	false	"Maximum reports"	minimum(1)	maximum(200)
//	@Success		200	{object}	dto.Response{data=[]ErrorReportResponse}
//	@Failure		400	{object}	dto.Response
//	@Failure		401	{object}	dto.Response
//	@Failure		403	{object}	dto.Response
//	@Failure		500	{object}	dto.Response
//	@Security		BearerAuth
//	@Router			/ingestion/errors [get]
func (h *ErrorReportHandler) ListErrorReports(c *gin.Context) {
	var q ErrorReportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, err.Error())
		return
	}
	if q.Limit == 0 {
		q.Limit = DefaultRunListLimit
	}

	reports, err := h.reports.FindRecent(c.Request.Context(), persistence.ErrorReportFilter{
		ShopCode: q.ShopCode,
		Kind:     integration.ErrorKind(q.Kind),
		Since:    q.Since,
		Limit:    q.Limit,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]ErrorReportResponse, 0, len(reports))
	for _, r := range reports {
		out = append(out, toErrorReportResponse(r))
	}
	c.JSON(http.StatusOK, dto.NewListResponse(out, q.Limit))
}
