package integration

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Run mode and context
// ---------------------------------------------------------------------------

// RunMode tells who started a run
type RunMode string

const (
	// RunModeScheduled runs are started by the interval trigger
	RunModeScheduled RunMode = "scheduled"
	// RunModeManual runs are started by an operator
	RunModeManual RunMode = "manual"
)

// IsValid returns true if the run mode is known
func (m RunMode) IsValid() bool {
	return m == RunModeScheduled || m == RunModeManual
}

// RunInfo identifies the run an outbound call belongs to
type RunInfo struct {
	RunID    uuid.UUID
	ShopCode string
	Mode     RunMode
	UserTag  string
	// TerminateOnFallback makes exhausted retries stop the process instead of
	// returning an unavailable result
	TerminateOnFallback bool
}

type runInfoKey struct{}

// WithRunInfo returns a context carrying info
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFrom extracts the run info from ctx
func RunInfoFrom(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}

// ---------------------------------------------------------------------------
// IngestionRun
// ---------------------------------------------------------------------------

// RunStatus is the lifecycle status of an ingestion run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// IsFinal returns true if the status is terminal
func (s RunStatus) IsFinal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

var (
	ErrRunNotPending = errors.New("integration: ingestion run is not pending")
	ErrRunNotRunning = errors.New("integration: ingestion run is not running")
)

// RunStats are the counters recorded when a run finishes
type RunStats struct {
	ReportedTotal   int
	PagesFetched    int
	RecordsFetched  int
	RecordsRejected int
	DetailsFetched  int
	LinesWritten    int
	RowErrors       int
	Complete        bool
}

// IngestionRun is the bookkeeping record of one ingestion run for one shop
type IngestionRun struct {
	ID          uuid.UUID
	ShopCode    string
	Marketplace Marketplace
	Mode        RunMode
	UserTag     string
	Status      RunStatus
	WindowFrom  time.Time
	WindowTo    time.Time
	Stats       RunStats
	ErrorKind   ErrorKind
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

// NewIngestionRun creates a pending run over the order-time window [from, to]
func NewIngestionRun(shopCode string, marketplace Marketplace, mode RunMode, from, to, now time.Time) *IngestionRun {
	return &IngestionRun{
		ID:          uuid.New(),
		ShopCode:    shopCode,
		Marketplace: marketplace,
		Mode:        mode,
		Status:      RunStatusPending,
		WindowFrom:  from,
		WindowTo:    to,
		CreatedAt:   now,
	}
}

// Start marks the run as running
func (r *IngestionRun) Start(now time.Time) error {
	if r.Status != RunStatusPending {
		return ErrRunNotPending
	}
	r.Status = RunStatusRunning
	r.StartedAt = &now
	return nil
}

// Succeed marks the run as finished. A partial fetch still succeeds with Stats.Complete=false.
func (r *IngestionRun) Succeed(stats RunStats, now time.Time) error {
	if r.Status != RunStatusRunning {
		return ErrRunNotRunning
	}
	r.Status = RunStatusSucceeded
	r.Stats = stats
	r.FinishedAt = &now
	return nil
}

// Fail marks the run as failed with the classified error
func (r *IngestionRun) Fail(err error, stats RunStats, now time.Time) {
	r.Status = RunStatusFailed
	r.Stats = stats
	r.ErrorKind = KindOf(err)
	if err != nil {
		r.Error = err.Error()
	}
	r.FinishedAt = &now
}

// Duration returns the run time, zero while unfinished
func (r *IngestionRun) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}
