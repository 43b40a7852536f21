package scheduler

import "errors"

// Pool state
var (
	// ErrSchedulerNotRunning is returned by Submit before Start or after Stop
	ErrSchedulerNotRunning = errors.New("scheduler: not running")
	// ErrJobQueueFull is returned when every worker is busy and the queue is at capacity
	ErrJobQueueFull = errors.New("scheduler: job queue is full")
	// ErrInvalidConfig wraps a rejected IngestionSchedulerConfig
	ErrInvalidConfig = errors.New("scheduler: invalid configuration")
)

// Trigger rejections
var (
	// ErrIngestionAlreadyInProgress is returned while the shop has a queued or running job
	ErrIngestionAlreadyInProgress = errors.New("scheduler: ingestion already in progress for this shop")
	// ErrInvalidTimeRange is returned for a manual window that is reversed or too long
	ErrInvalidTimeRange = errors.New("scheduler: invalid ingestion time range")
	// ErrShopNotConfigured is returned when a trigger names an unknown or disabled shop
	ErrShopNotConfigured = errors.New("scheduler: shop is not configured for ingestion")
)
