package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erp/marketplace-ingest/internal/infrastructure/config"
)

// JobSubmitter queues ingestion jobs. Satisfied by *IngestionScheduler.
type JobSubmitter interface {
	Schedule(shopCode, userTag string) (*IngestionJob, error)
	ScheduleManual(shopCode, userTag string, from, to time.Time) (*IngestionJob, error)
}

// ---------------------------------------------------------------------------
// IntervalTriggerConfig
// ---------------------------------------------------------------------------

// IntervalTriggerConfig holds configuration for the interval trigger
type IntervalTriggerConfig struct {
	// CheckInterval is how often shops are checked for a due run
	CheckInterval time.Duration
	// DefaultInterval applies to shops without their own interval
	DefaultInterval time.Duration
	// MaxManualWindow bounds the window of a manual run
	MaxManualWindow time.Duration
}

// DefaultIntervalTriggerConfig returns default configuration
func DefaultIntervalTriggerConfig() IntervalTriggerConfig {
	return IntervalTriggerConfig{
		CheckInterval:   time.Minute,
		DefaultInterval: 15 * time.Minute,
		MaxManualWindow: 7 * 24 * time.Hour,
	}
}

// ---------------------------------------------------------------------------
// IntervalTrigger
// ---------------------------------------------------------------------------

// IntervalTrigger submits a scheduled run for every enabled shop once its
// interval has elapsed since the last submission.
type IntervalTrigger struct {
	config    IntervalTriggerConfig
	submitter JobSubmitter
	shops     []config.ShopConfig
	logger    *zap.Logger
	now       func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	lastScheduledMu sync.RWMutex
	lastScheduled   map[string]time.Time
}

// NewIntervalTrigger creates a trigger over the enabled shops
func NewIntervalTrigger(
	cfg IntervalTriggerConfig,
	submitter JobSubmitter,
	shops []config.ShopConfig,
	logger *zap.Logger,
) *IntervalTrigger {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	enabled := make([]config.ShopConfig, 0, len(shops))
	for _, s := range shops {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	return &IntervalTrigger{
		config:        cfg,
		submitter:     submitter,
		shops:         enabled,
		logger:        logger.Named("trigger"),
		now:           time.Now,
		lastScheduled: make(map[string]time.Time),
	}
}

// Start starts the trigger loop. The first check runs immediately.
func (c *IntervalTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isRunning {
		return nil
	}
	c.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Ingestion interval trigger started",
		zap.Duration("check_interval", c.config.CheckInterval),
		zap.Duration("default_interval", c.config.DefaultInterval),
		zap.Int("shops", len(c.shops)),
	)
	return nil
}

// Stop stops the trigger loop
func (c *IntervalTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Ingestion interval trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *IntervalTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	c.checkAndSchedule()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndSchedule()
		}
	}
}

// checkAndSchedule submits every shop whose interval elapsed
func (c *IntervalTrigger) checkAndSchedule() {
	now := c.now()
	for _, shop := range c.shops {
		if !c.isDue(shop, now) {
			continue
		}

		job, err := c.submitter.Schedule(shop.Code, shop.UserTag)
		switch {
		case errors.Is(err, ErrIngestionAlreadyInProgress):
			c.logger.Debug("Shop still ingesting, skipping", zap.String("shop_code", shop.Code))
			continue
		case err != nil:
			c.logger.Error("Failed to schedule ingestion job",
				zap.String("shop_code", shop.Code),
				zap.Error(err),
			)
			continue
		}

		c.logger.Info("Scheduled ingestion job",
			zap.String("shop_code", shop.Code),
			zap.String("job_id", job.ID.String()),
		)
		c.lastScheduledMu.Lock()
		c.lastScheduled[shop.Code] = now
		c.lastScheduledMu.Unlock()
	}
}

func (c *IntervalTrigger) isDue(shop config.ShopConfig, now time.Time) bool {
	c.lastScheduledMu.RLock()
	last, seen := c.lastScheduled[shop.Code]
	c.lastScheduledMu.RUnlock()
	return !seen || now.Sub(last) >= c.intervalOf(shop)
}

func (c *IntervalTrigger) intervalOf(shop config.ShopConfig) time.Duration {
	if shop.Interval > 0 {
		return shop.Interval
	}
	if c.config.DefaultInterval > 0 {
		return c.config.DefaultInterval
	}
	return 15 * time.Minute
}

// TriggerManual queues an operator run for one shop. Zero from continues from
// the last successful run; zero to means now.
func (c *IntervalTrigger) TriggerManual(shopCode, userTag string, from, to time.Time) (*IngestionJob, error) {
	shop, ok := c.shop(shopCode)
	if !ok {
		return nil, ErrShopNotConfigured
	}
	if !from.IsZero() {
		end := to
		if end.IsZero() {
			end = c.now()
		}
		if !from.Before(end) {
			return nil, ErrInvalidTimeRange
		}
		if c.config.MaxManualWindow > 0 && end.Sub(from) > c.config.MaxManualWindow {
			return nil, ErrInvalidTimeRange
		}
	}
	if userTag == "" {
		userTag = shop.UserTag
	}

	c.logger.Info("Manual ingestion triggered",
		zap.String("shop_code", shopCode),
		zap.String("user_tag", userTag),
		zap.Time("from", from),
		zap.Time("to", to),
	)
	return c.submitter.ScheduleManual(shopCode, userTag, from, to)
}

func (c *IntervalTrigger) shop(code string) (config.ShopConfig, bool) {
	for _, s := range c.shops {
		if s.Code == code {
			return s, true
		}
	}
	return config.ShopConfig{}, false
}

// ShopSchedule is the trigger state of one shop
type ShopSchedule struct {
	ShopCode      string        `json:"shop_code"`
	Marketplace   string        `json:"marketplace"`
	Interval      time.Duration `json:"interval"`
	LastScheduled *time.Time    `json:"last_scheduled,omitempty"`
}

// Schedules returns the trigger state of every enabled shop, by shop code
func (c *IntervalTrigger) Schedules() []ShopSchedule {
	c.lastScheduledMu.RLock()
	defer c.lastScheduledMu.RUnlock()

	out := make([]ShopSchedule, 0, len(c.shops))
	for _, shop := range c.shops {
		s := ShopSchedule{
			ShopCode:    shop.Code,
			Marketplace: shop.Marketplace,
			Interval:    c.intervalOf(shop),
		}
		if t, ok := c.lastScheduled[shop.Code]; ok {
			s.LastScheduled = &t
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShopCode < out[j].ShopCode })
	return out
}
