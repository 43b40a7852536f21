package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/marketplace-ingest/internal/domain/integration"
	"github.com/erp/marketplace-ingest/internal/infrastructure/config"
)

// ---------------------------------------------------------------------------
// Ingestion Job Types
// ---------------------------------------------------------------------------

// JobStatus represents the status of an ingestion job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// IngestionJob is one queued ingestion of one shop
type IngestionJob struct {
	ID       uuid.UUID
	ShopCode string
	Mode     integration.RunMode
	UserTag  string
	// Zero From lets the run continue from the shop's last successful window
	From time.Time
	To   time.Time

	Status      JobStatus
	Error       string
	ErrorKind   integration.ErrorKind
	SubmittedAt time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time

	// Filled by the executor
	RunID uuid.UUID
	Stats integration.RunStats
}

// NewIngestionJob creates a pending job
func NewIngestionJob(shopCode string, mode integration.RunMode, userTag string, from, to time.Time, maxRetries int) *IngestionJob {
	return &IngestionJob{
		ID:          uuid.New(),
		ShopCode:    shopCode,
		Mode:        mode,
		UserTag:     userTag,
		From:        from,
		To:          to,
		Status:      JobStatusPending,
		SubmittedAt: time.Now(),
		MaxRetries:  maxRetries,
	}
}

// Start marks the job as running
func (j *IngestionJob) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
	j.ErrorKind = ""
}

// Complete marks the job as successful
func (j *IngestionJob) Complete(runID uuid.UUID, stats integration.RunStats) {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
	j.RunID = runID
	j.Stats = stats
}

// Fail marks the job as failed
func (j *IngestionJob) Fail(err error) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err.Error()
	j.ErrorKind = integration.KindOf(err)
}

// ShouldRetry returns true for failed jobs whose cause may clear by itself.
// Expired authorization and bad configuration need an operator.
func (j *IngestionJob) ShouldRetry() bool {
	return j.Status == JobStatusFailed &&
		j.ErrorKind == integration.ErrorKindTransientHTTP &&
		j.RetryCount < j.MaxRetries
}

// ScheduleRetry schedules the job for retry with exponential backoff and
// returns the delay
func (j *IngestionJob) ScheduleRetry(baseDelay time.Duration) time.Duration {
	j.RetryCount++
	j.Status = JobStatusPending
	delay := baseDelay * time.Duration(1<<(j.RetryCount-1))
	if delay > 30*time.Minute {
		delay = 30 * time.Minute
	}
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	j.Error = ""
	j.ErrorKind = ""
	return delay
}

// IsFinal reports whether the job will not run again
func (j *IngestionJob) IsFinal() bool {
	return j.Status == JobStatusSuccess || (j.Status == JobStatusFailed && !j.ShouldRetry())
}

// ---------------------------------------------------------------------------
// Executor Interface
// ---------------------------------------------------------------------------

// IngestionExecutor executes ingestion jobs
type IngestionExecutor interface {
	Execute(ctx context.Context, job *IngestionJob) error
}

// ---------------------------------------------------------------------------
// IngestionSchedulerConfig
// ---------------------------------------------------------------------------

// IngestionSchedulerConfig holds configuration for the ingestion scheduler
type IngestionSchedulerConfig struct {
	// MaxConcurrentJobs is the number of shops ingested at the same time
	MaxConcurrentJobs int
	// JobTimeout bounds a whole run
	JobTimeout time.Duration
	// QueueSize is the capacity of the pending job queue
	QueueSize int
	// RetryAttempts is the number of retries for transient failures
	RetryAttempts int
	// RetryDelay is the base delay between retries (with exponential backoff)
	RetryDelay time.Duration
	// MaxHistory is the number of finished jobs kept for monitoring
	MaxHistory int
}

// DefaultIngestionSchedulerConfig returns default configuration
func DefaultIngestionSchedulerConfig() IngestionSchedulerConfig {
	return IngestionSchedulerConfig{
		MaxConcurrentJobs: 4,
		JobTimeout:        30 * time.Minute,
		QueueSize:         100,
		RetryAttempts:     2,
		RetryDelay:        time.Minute,
		MaxHistory:        100,
	}
}

// IngestionSchedulerConfigFrom overlays application settings on the defaults
func IngestionSchedulerConfigFrom(cfg config.SchedulerConfig) IngestionSchedulerConfig {
	c := DefaultIngestionSchedulerConfig()
	if cfg.MaxConcurrentJobs > 0 {
		c.MaxConcurrentJobs = cfg.MaxConcurrentJobs
	}
	if cfg.JobTimeout > 0 {
		c.JobTimeout = cfg.JobTimeout
	}
	return c
}

// Validate reports the first unusable field, wrapped in ErrInvalidConfig
func (c *IngestionSchedulerConfig) Validate() error {
	switch {
	case c.MaxConcurrentJobs <= 0:
		return fmt.Errorf("%w: max concurrent jobs must be positive", ErrInvalidConfig)
	case c.JobTimeout <= 0:
		return fmt.Errorf("%w: job timeout must be positive", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue size must be positive", ErrInvalidConfig)
	case c.RetryAttempts < 0:
		return fmt.Errorf("%w: retry attempts must not be negative", ErrInvalidConfig)
	case c.RetryAttempts > 0 && c.RetryDelay <= 0:
		return fmt.Errorf("%w: retry delay must be positive when retrying", ErrInvalidConfig)
	case c.MaxHistory <= 0:
		return fmt.Errorf("%w: history size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ---------------------------------------------------------------------------
// IngestionScheduler
// ---------------------------------------------------------------------------

// SchedulerStats is a monitoring snapshot of the scheduler
type SchedulerStats struct {
	Running     bool     `json:"running"`
	Workers     int      `json:"workers"`
	QueueDepth  int      `json:"queue_depth"`
	ActiveShops []string `json:"active_shops"`
	Succeeded   int64    `json:"succeeded"`
	Failed      int64    `json:"failed"`
	Retried     int64    `json:"retried"`
}

// IngestionScheduler runs ingestion jobs on a worker pool.
// Different shops run concurrently; a shop never has two jobs in flight.
type IngestionScheduler struct {
	config   IngestionSchedulerConfig
	executor IngestionExecutor
	logger   *zap.Logger

	jobs      chan *IngestionJob
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	// shop code -> job id, from submission until the job is final
	active map[string]uuid.UUID

	succeeded int64
	failed    int64
	retried   int64

	historyMu sync.RWMutex
	history   []IngestionJob
}

// NewIngestionScheduler creates a new ingestion scheduler
func NewIngestionScheduler(config IngestionSchedulerConfig, executor IngestionExecutor, logger *zap.Logger) (*IngestionScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &IngestionScheduler{
		config:   config,
		executor: executor,
		logger:   logger.Named("scheduler"),
		active:   make(map[string]uuid.UUID),
		history:  make([]IngestionJob, 0, config.MaxHistory),
	}, nil
}

// Start starts the worker pool
func (s *IngestionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.jobs = make(chan *IngestionJob, s.config.QueueSize)
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i, s.jobs)
	}

	s.logger.Info("Ingestion scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)

	return nil
}

// Stop cancels running jobs and waits for the workers
func (s *IngestionScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	if s.cancel != nil {
		s.cancel()
	}
	close(s.jobs)
	s.active = make(map[string]uuid.UUID)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Ingestion scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Ingestion scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the scheduler accepts jobs
func (s *IngestionScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// SubmitJob queues a job. It fails with ErrIngestionAlreadyInProgress when
// the shop already has a queued or running job.
func (s *IngestionScheduler) SubmitJob(job *IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return ErrSchedulerNotRunning
	}
	if _, busy := s.active[job.ShopCode]; busy {
		return ErrIngestionAlreadyInProgress
	}

	select {
	case s.jobs <- job:
		s.active[job.ShopCode] = job.ID
		s.logger.Debug("Ingestion job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("shop_code", job.ShopCode),
			zap.String("mode", string(job.Mode)),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// Schedule queues a scheduled run that continues from the shop's last success
func (s *IngestionScheduler) Schedule(shopCode, userTag string) (*IngestionJob, error) {
	job := NewIngestionJob(shopCode, integration.RunModeScheduled, userTag, time.Time{}, time.Time{}, s.config.RetryAttempts)
	if err := s.SubmitJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

// ScheduleManual queues an operator-requested run over an explicit window.
// Manual runs are not retried.
func (s *IngestionScheduler) ScheduleManual(shopCode, userTag string, from, to time.Time) (*IngestionJob, error) {
	job := NewIngestionJob(shopCode, integration.RunModeManual, userTag, from, to, 0)
	if err := s.SubmitJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

// requeue puts a job whose retry delay elapsed back on the queue
func (s *IngestionScheduler) requeue(job *IngestionJob) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning || s.active[job.ShopCode] != job.ID {
		return
	}
	select {
	case s.jobs <- job:
	default:
		delete(s.active, job.ShopCode)
		s.logger.Warn("Failed to re-queue ingestion job for retry",
			zap.String("job_id", job.ID.String()),
			zap.String("shop_code", job.ShopCode),
		)
	}
}

func (s *IngestionScheduler) release(job *IngestionJob) {
	s.mu.Lock()
	if s.active[job.ShopCode] == job.ID {
		delete(s.active, job.ShopCode)
	}
	s.mu.Unlock()
}

// worker processes jobs from the queue
func (s *IngestionScheduler) worker(ctx context.Context, workerID int, jobs <-chan *IngestionJob) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob executes a single job
func (s *IngestionScheduler) processJob(ctx context.Context, job *IngestionJob, workerID int) {
	job.Start()
	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("shop_code", job.ShopCode),
		zap.String("mode", string(job.Mode)),
	)
	log.Info("Processing ingestion job", zap.Int("retry_count", job.RetryCount))

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	err := s.executor.Execute(jobCtx, job)
	cancel()

	if err != nil {
		job.Fail(err)
		log.Error("Ingestion job failed",
			zap.String("error_kind", string(job.ErrorKind)),
			zap.Error(err),
		)

		if job.ShouldRetry() && ctx.Err() == nil {
			delay := job.ScheduleRetry(s.config.RetryDelay)
			s.mu.Lock()
			s.retried++
			s.mu.Unlock()
			log.Info("Ingestion job scheduled for retry",
				zap.Int("retry_count", job.RetryCount),
				zap.Int("max_retries", job.MaxRetries),
				zap.Duration("delay", delay),
			)
			time.AfterFunc(delay, func() { s.requeue(job) })
			return
		}

		s.mu.Lock()
		s.failed++
		s.mu.Unlock()
		s.addToHistory(job)
		s.release(job)
		return
	}

	log.Info("Ingestion job completed",
		zap.String("run_id", job.RunID.String()),
		zap.Int("records", job.Stats.RecordsFetched),
		zap.Int("lines", job.Stats.LinesWritten),
		zap.Bool("complete", job.Stats.Complete),
	)
	s.mu.Lock()
	s.succeeded++
	s.mu.Unlock()
	s.addToHistory(job)
	s.release(job)
}

// addToHistory keeps a copy of a finished job
func (s *IngestionScheduler) addToHistory(job *IngestionJob) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	if len(s.history) >= s.config.MaxHistory {
		s.history = s.history[1:]
	}
	s.history = append(s.history, *job)
}

// GetJobHistory returns finished jobs, most recent first
func (s *IngestionScheduler) GetJobHistory(limit int) []IngestionJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	result := make([]IngestionJob, 0, limit)
	for i := len(s.history) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.history[i])
	}
	return result
}

// GetJobHistoryByShop returns finished jobs of one shop, most recent first
func (s *IngestionScheduler) GetJobHistoryByShop(shopCode string, limit int) []IngestionJob {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	result := make([]IngestionJob, 0)
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].ShopCode != shopCode {
			continue
		}
		result = append(result, s.history[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}

// Stats returns a monitoring snapshot
func (s *IngestionScheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	shops := make([]string, 0, len(s.active))
	for shop := range s.active {
		shops = append(shops, shop)
	}
	sort.Strings(shops)

	depth := 0
	if s.isRunning {
		depth = len(s.jobs)
	}
	return SchedulerStats{
		Running:     s.isRunning,
		Workers:     s.config.MaxConcurrentJobs,
		QueueDepth:  depth,
		ActiveShops: shops,
		Succeeded:   s.succeeded,
		Failed:      s.failed,
		Retried:     s.retried,
	}
}
