package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appintegration "github.com/erp/marketplace-ingest/internal/application/integration"
	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/scheduler"
	"github.com/erp/marketplace-ingest/internal/interfaces/http/dto"
	"github.com/erp/marketplace-ingest/internal/interfaces/http/middleware"
)

// DefaultRunListLimit applies when the limit query parameter is absent
const DefaultRunListLimit = 50

// RunReader reads ingestion run history
type RunReader interface {
	GetRun(ctx context.Context, id uuid.UUID) (*integration.IngestionRun, error)
	ListRuns(ctx context.Context, shopCode string, limit int) ([]integration.IngestionRun, error)
}

// ManualTrigger queues operator runs
type ManualTrigger interface {
	TriggerManual(shopCode, userTag string, from, to time.Time) (*scheduler.IngestionJob, error)
}

var (
	_ RunReader     = (*appintegration.IngestionService)(nil)
	_ ManualTrigger = (*scheduler.IntervalTrigger)(nil)
)

// IngestionHandler serves run history and manual triggers
type IngestionHandler struct {
	BaseHandler
	runs    RunReader
	trigger ManualTrigger
}

// NewIngestionHandler creates a new IngestionHandler. trigger may be nil when
// the scheduler is disabled; manual triggers then answer 503.
func NewIngestionHandler(runs RunReader, trigger ManualTrigger) *IngestionHandler {
	return &IngestionHandler{runs: runs, trigger: trigger}
}

// TriggerRequest is the body of a manual trigger. All fields are optional.
type TriggerRequest struct {
	From    *time.Time `json:"from"`
	To      *time.Time `json:"to"`
	UserTag string     `json:"user_tag" binding:"max=64"`
}

// TriggerResponse describes the queued job
type TriggerResponse struct {
	JobID       uuid.UUID           `json:"job_id"`
	ShopCode    string              `json:"shop_code"`
	Mode        integration.RunMode `json:"mode"`
	UserTag     string              `json:"user_tag,omitempty"`
	From        *time.Time          `json:"from,omitempty"`
	To          *time.Time          `json:"to,omitempty"`
	SubmittedAt time.Time           `json:"submitted_at"`
}

// ListRuns returns the newest runs, optionally for one shop
//
//	@ID				listIngestionRuns
//	@Summary		List ingestion runs
//	@Tags			ingestion
//	@Produce		json
//	@Param			shop_code	query	string	false	"Shop code"
//	@Param			limit	query	int	false	"Maximum runs"	minimum(1)	maximum(200)
//	@Success		200	{object}	dto.Response{data=[]appintegration.IngestionRunResponse}
//	@Failure		400	{object}	dto.Response
//	@Failure		401	{object}	dto.Response
//	@Failure		403	{object}	dto.Response
//	@Failure		500	{object}	dto.Response
//	@Security		BearerAuth
//	@Router			/ingestion/runs [get]
func (h *IngestionHandler) ListRuns(c *gin.Context) {
	var filter appintegration.RunListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BadRequest(c, "invalid query: "+err.Error())
		return
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultRunListLimit
	}

	runs, err := h.runs.ListRuns(c.Request.Context(), filter.ShopCode, filter.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(appintegration.ToIngestionRunResponses(runs), filter.Limit))
}

// GetRun returns one run
//
//	@ID				getIngestionRun
//	@Summary		Get an ingestion run
//	@Tags			ingestion
//	@Produce		json
//	@Param			id	path	string	true	"Run ID"	format(uuid)
//	@Success		200	{object}	dto.Response{data=appintegration.IngestionRunResponse}
//	@Failure		400	{object}	dto.Response
//	@Failure		401	{object}	dto.Response
//	@Failure		403	{object}	dto.Response
//	@Failure		404	{object}	dto.Response
//	@Failure		500	{object}	dto.Response
//	@Security		BearerAuth
//	@Router			/ingestion/runs/{id} [get]
func (h *IngestionHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "run id must be a UUID")
		return
	}

	run, err := h.runs.GetRun(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToIngestionRunResponse(run))
}

// TriggerRun queues a manual run for a shop and answers 202 with the job.
// The user tag defaults to the operator named by the token.
//
//	@ID				triggerIngestionRun
//	@Summary		Queue a manual ingestion run
//	@Tags			ingestion
//	@Accept			json
//	@Produce		json
//	@Param			code	path	string	true	"Shop code"
//	@Param			request	body	TriggerRequest	false	"Optional window and user tag"
//	@Success		202	{object}	dto.Response{data=TriggerResponse}
//	@Failure		400	{object}	dto.Response
//	@Failure		401	{object}	dto.Response
//	@Failure		403	{object}	dto.Response
//	@Failure		404	{object}	dto.Response
//	@Failure		409	{object}	dto.Response
//	@Failure		413	{object}	dto.Response
//	@Failure		429	{object}	dto.Response
//	@Failure		503	{object}	dto.Response
//	@Security		BearerAuth
//	@Router			/ingestion/shops/{code}/runs [post]
func (h *IngestionHandler) TriggerRun(c *gin.Context) {
	if h.trigger == nil {
		h.ErrorWithCode(c, dto.ErrCodeSchedulerStopped, "scheduler is disabled")
		return
	}

	var req TriggerRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}
	userTag := req.UserTag
	if userTag == "" {
		userTag = middleware.GetOperator(c)
	}
	var from, to time.Time
	if req.From != nil {
		from = *req.From
	}
	if req.To != nil {
		to = *req.To
	}
	if from.IsZero() && !to.IsZero() {
		h.BadRequest(c, "to requires from")
		return
	}

	job, err := h.trigger.TriggerManual(c.Param("code"), userTag, from, to)
	if err != nil {
		h.handleSchedulerError(c, err)
		return
	}
	h.Accepted(c, TriggerResponse{
		JobID:       job.ID,
		ShopCode:    job.ShopCode,
		Mode:        job.Mode,
		UserTag:     job.UserTag,
		From:        req.From,
		To:          req.To,
		SubmittedAt: job.SubmittedAt,
	})
}

func (h *IngestionHandler) handleSchedulerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, scheduler.ErrShopNotConfigured):
		h.NotFound(c, err.Error())
	case errors.Is(err, scheduler.ErrInvalidTimeRange):
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, err.Error())
	case errors.Is(err, scheduler.ErrIngestionAlreadyInProgress):
		h.ErrorWithCode(c, dto.ErrCodeIngestionInProgress, err.Error())
	case errors.Is(err, scheduler.ErrSchedulerNotRunning), errors.Is(err, scheduler.ErrJobQueueFull):
		h.ErrorWithCode(c, dto.ErrCodeSchedulerStopped, err.Error())
	default:
		h.HandleError(c, err)
	}
}
