package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/scheduler"
)

func TestSchedulerHandler_GetStats(t *testing.T) {
	monitor := new(MockSchedulerMonitor)
	monitor.On("Stats").Return(scheduler.SchedulerStats{Running: true, Workers: 4, ActiveShops: []string{"tokyo-1"}})

	w := perform(NewSchedulerHandler(monitor, nil).GetStats, http.MethodGet, "/stats", "/stats", "")

	require.Equal(t, http.StatusOK, w.Code)
	_, data := decode(t, w)
	assert.Equal(t, true, data["running"])
	assert.Equal(t, float64(4), data["workers"])
}

func TestSchedulerHandler_ListJobs(t *testing.T) {
	job := scheduler.NewIngestionJob("tokyo-1", integration.RunModeScheduled, "", time.Time{}, time.Time{}, 2)
	monitor := new(MockSchedulerMonitor)
	monitor.On("GetJobHistory", DefaultRunListLimit).Return([]scheduler.IngestionJob{*job})
	monitor.On("GetJobHistoryByShop", "tokyo-1", 5).Return([]scheduler.IngestionJob(nil))
	h := NewSchedulerHandler(monitor, nil)

	w := perform(h.ListJobs, http.MethodGet, "/jobs", "/jobs", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp, _ := decode(t, w)
	items := resp.Data.([]any)
	require.Len(t, items, 1)
	assert.Equal(t, job.ID.String(), items[0].(map[string]any)["id"])
	assert.NotContains(t, items[0].(map[string]any), "run_id")

	w = perform(h.ListJobs, http.MethodGet, "/jobs", "/jobs?shop_code=tokyo-1&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp, _ = decode(t, w)
	assert.Equal(t, []any{}, resp.Data)
	monitor.AssertExpectations(t)
}

func TestSchedulerHandler_ListJobs_BadLimit(t *testing.T) {
	h := NewSchedulerHandler(new(MockSchedulerMonitor), nil)

	for _, limit := range []string{"0", "-3", "many"} {
		w := perform(h.ListJobs, http.MethodGet, "/jobs", "/jobs?limit="+limit, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, limit)
	}
}

func TestSchedulerHandler_ListSchedules_NoTrigger(t *testing.T) {
	w := perform(NewSchedulerHandler(new(MockSchedulerMonitor), nil).ListSchedules, http.MethodGet,
		"/schedules", "/schedules", "")

	require.Equal(t, http.StatusOK, w.Code)
	resp, _ := decode(t, w)
	assert.Equal(t, []any{}, resp.Data)
}
