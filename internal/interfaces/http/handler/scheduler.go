package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/scheduler"
	"github.com/erp/marketplace-ingest/internal/interfaces/http/dto"
)

// SchedulerMonitor exposes scheduler state
type SchedulerMonitor interface {
	Stats() scheduler.SchedulerStats
	GetJobHistory(limit int) []scheduler.IngestionJob
	GetJobHistoryByShop(shopCode string, limit int) []scheduler.IngestionJob
}

// ScheduleLister lists per-shop trigger state
type ScheduleLister interface {
	Schedules() []scheduler.ShopSchedule
}

var (
	_ SchedulerMonitor = (*scheduler.IngestionScheduler)(nil)
	_ ScheduleLister   = (*scheduler.IntervalTrigger)(nil)
)

// SchedulerHandler serves scheduler monitoring endpoints
type SchedulerHandler struct {
	BaseHandler
	monitor   SchedulerMonitor
	schedules ScheduleLister
}

// NewSchedulerHandler creates a new SchedulerHandler
func NewSchedulerHandler(monitor SchedulerMonitor, schedules ScheduleLister) *SchedulerHandler {
	return &SchedulerHandler{monitor: monitor, schedules: schedules}
}

// JobResponse is a finished or in-flight job in API responses
type JobResponse struct {
	ID           uuid.UUID             `json:"id"`
	ShopCode     string                `json:"shop_code"`
	Mode         integration.RunMode   `json:"mode"`
	UserTag      string                `json:"user_tag,omitempty"`
	Status       scheduler.JobStatus   `json:"status"`
	Error        string                `json:"error,omitempty"`
	ErrorKind    integration.ErrorKind `json:"error_kind,omitempty"`
	RetryCount   int                   `json:"retry_count"`
	SubmittedAt  time.Time             `json:"submitted_at"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
	RunID        *uuid.UUID            `json:"run_id,omitempty"`
	LinesWritten int                   `json:"lines_written"`
}

func toJobResponse(j scheduler.IngestionJob) JobResponse {
	resp := JobResponse{
		ID:           j.ID,
		ShopCode:     j.ShopCode,
		Mode:         j.Mode,
		UserTag:      j.UserTag,
		Status:       j.Status,
		Error:        j.Error,
		ErrorKind:    j.ErrorKind,
		RetryCount:   j.RetryCount,
		SubmittedAt:  j.SubmittedAt,
		CompletedAt:  j.CompletedAt,
		LinesWritten: j.Stats.LinesWritten,
	}
	if j.RunID != uuid.Nil {
		id := j.RunID
		resp.RunID = &id
	}
	return resp
}

// GetStats returns the scheduler snapshot
//
//	@ID				getSchedulerStats
//	@Summary		Get scheduler statistics
//	@Tags			scheduler
//	@Produce		json
//	@Success		200	{object}	dto.Response{data=scheduler.SchedulerStats}
//	@Failure		401	{object}	dto.Response
//	@Failure		403	{object}	dto.Response
//	@Security		BearerAuth
//	@Router			/scheduler/stats [get]
func (h *SchedulerHandler) GetStats(c *gin.Context) {
	h.Success(c, h.monitor.Stats())
}

// ListJobs returns recent finished jobs, optionally for one shop
//
//	@ID				listSchedulerJobs
//	@Summary		List recent scheduler jobs
//	@Tags			scheduler
//	@Produce		json
//	@Param			shop_code	query	string	false	"Shop code"
//	@Param			limit	query	int	false	"Maximum jobs"	minimum(1)
//	@Success		200	{object}	dto.Response{data=[]JobResponse}
//	@Failure		400	{object}	dto.Response
//	@Failure		401	{object}	dto.Response
//	@Failure		403	{object}	dto.Response
//	@Security		BearerAuth
//	@Router			/scheduler/jobs [get]
func (h *SchedulerHandler) ListJobs(c *gin.Context) {
	limit := DefaultRunListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var jobs []scheduler.IngestionJob
	if shop := c.Query("shop_code"); shop != "" {
		jobs = h.monitor.GetJobHistoryByShop(shop, limit)
	} else {
		jobs = h.monitor.GetJobHistory(limit)
	}
	out := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	c.JSON(http.StatusOK, dto.NewListResponse(out, limit))
}

// ListSchedules returns the interval trigger state of every enabled shop
//
//	@ID				listShopSchedules
//	@Summary		List per-shop interval schedules
//	@Tags			scheduler
//	@Produce		json
//	@Success		200	{object}	dto.Response{data=[]scheduler.ShopSchedule}
//	@Failure		401	{object}	dto.Response
//	@Failure		403	{object}	dto.Response
//	@Security		BearerAuth
//	@Router			/scheduler/schedules [get]
func (h *SchedulerHandler) ListSchedules(c *gin.Context) {
	if h.schedules == nil {
		h.Success(c, []scheduler.ShopSchedule{})
		return
	}
	h.Success(c, h.schedules.Schedules())
}
