// Package refresh keeps the watchlist in step with the data source.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"stockwatch/internal/datasource"
	"stockwatch/internal/errors"
	"stockwatch/internal/logging"
	"stockwatch/internal/models"
	"stockwatch/internal/trace"
	"stockwatch/internal/watchlist"
)

// Config holds refresh timing.
type Config struct {
	Interval     time.Duration
	PostAddDelay time.Duration
}

// DefaultConfig returns a 30 second poll with a refresh one second after each add.
func DefaultConfig() Config {
	return Config{
		Interval:     30 * time.Second,
		PostAddDelay: time.Second,
	}
}

// Status is a non-blocking view of the last refresh outcomes.
type Status struct {
	LastSuccess time.Time
	LastError   error
	Fetches     int64
	Skipped     int64
	InFlight    bool
}

// Coordinator runs snapshot fetches. At most one fetch is in flight at a time.
type Coordinator struct {
	store  *watchlist.Store
	source datasource.Source
	cfg    Config
	logger zerolog.Logger

	// slot holds a token while a fetch is in flight.
	slot chan struct{}

	mu          sync.Mutex
	status      Status
	running     bool
	runCtx      context.Context
	cancel      context.CancelFunc
	scheduler   *cron.Cron
	timers      map[*time.Timer]struct{}
	pending     sync.WaitGroup
	onRefreshed []func()
}

// New creates a coordinator. Created hooks are registered on store right away
// but only schedule refreshes between Start and Stop.
func New(store *watchlist.Store, source datasource.Source, cfg Config, logger zerolog.Logger) *Coordinator {
	defaults := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.PostAddDelay < 0 {
		cfg.PostAddDelay = defaults.PostAddDelay
	}

	c := &Coordinator{
		store:  store,
		source: source,
		cfg:    cfg,
		logger: logging.WithComponent(logger, "refresh"),
		slot:   make(chan struct{}, 1),
		timers: make(map[*time.Timer]struct{}),
	}
	store.OnCreated(c.scheduleAfterAdd)
	return c
}

// OnRefreshed registers a hook fired after every merged snapshot.
func (c *Coordinator) OnRefreshed(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRefreshed = append(c.onRefreshed, fn)
}

// Refresh fetches and merges one snapshot. It returns ErrRefreshInFlight
// without fetching when another fetch is running.
//
// A failure is returned as a FetchError only when the store was empty; other
// failures are logged and kept in Status.
func (c *Coordinator) Refresh(ctx context.Context) error {
	select {
	case c.slot <- struct{}{}:
	default:
		c.mu.Lock()
		c.status.Skipped++
		c.mu.Unlock()
		c.logger.Debug().Msg("Refresh skipped, fetch in flight")
		return errors.ErrRefreshInFlight
	}
	defer func() { <-c.slot }()
	return c.fetch(ctx)
}

// Load is Refresh for the first load: it waits for an in-flight fetch instead of skipping.
func (c *Coordinator) Load(ctx context.Context) error {
	select {
	case c.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-c.slot }()
	return c.fetch(ctx)
}

func (c *Coordinator) fetch(ctx context.Context) error {
	initial := c.store.Len() == 0
	ctx, span := trace.StartSpan(ctx, "watchlist.refresh", attribute.Bool("initial", initial))

	token := c.store.BeginRefresh()
	start := time.Now()
	records, err := c.source.List(ctx)
	logging.LogRefresh(c.logger, len(records), time.Since(start), err)

	c.mu.Lock()
	c.status.Fetches++
	if err != nil {
		c.status.LastError = err
		c.mu.Unlock()
		trace.End(span, err)
		if initial {
			return errors.NewFetchError(true, err)
		}
		return nil
	}
	c.mu.Unlock()

	c.store.ApplySnapshot(token, records)

	c.mu.Lock()
	c.status.LastSuccess = time.Now()
	c.status.LastError = nil
	hooks := append([]func(){}, c.onRefreshed...)
	c.mu.Unlock()
	trace.End(span, nil)

	for _, fn := range hooks {
		fn()
	}
	return nil
}

// Start runs an immediate load and then polls every Interval until Stop.
// The schedule is installed even when the first load fails, so the error is
// returned for the caller to show while polling keeps retrying.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("refresh coordinator already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	cronLog := cronLogger{logger: c.logger}
	scheduler := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog)),
	)
	if _, err := scheduler.AddFunc("@every "+c.cfg.Interval.String(), c.tick); err != nil {
		c.mu.Unlock()
		cancel()
		return errors.Wrap(err, "failed to schedule refresh")
	}
	c.running = true
	c.runCtx = runCtx
	c.cancel = cancel
	c.scheduler = scheduler
	c.mu.Unlock()

	err := c.Load(runCtx)
	scheduler.Start()
	c.logger.Info().Dur("interval", c.cfg.Interval).Msg("Refresh polling started")
	return err
}

// Stop cancels polling and pending post-add refreshes. It returns once no
// refresh started by the coordinator is still running.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.cancel()
	for t := range c.timers {
		if t.Stop() {
			c.pending.Done()
		}
		delete(c.timers, t)
	}
	scheduler := c.scheduler
	c.scheduler = nil
	c.mu.Unlock()

	<-scheduler.Stop().Done()
	c.pending.Wait()
	c.logger.Info().Msg("Refresh polling stopped")
}

// Status returns the last refresh outcomes.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.status
	s.InFlight = len(c.slot) == 1
	return s
}

func (c *Coordinator) tick() {
	c.mu.Lock()
	ctx := c.runCtx
	running := c.running
	c.mu.Unlock()
	if !running {
		return
	}

	if err := c.Refresh(ctx); err != nil && !errors.Is(err, errors.ErrRefreshInFlight) {
		c.logger.Warn().Err(err).Msg("Scheduled refresh failed")
	}
}

func (c *Coordinator) scheduleAfterAdd(record models.PlanRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}

	c.pending.Add(1)
	var t *time.Timer
	t = time.AfterFunc(c.cfg.PostAddDelay, func() {
		defer c.pending.Done()
		c.mu.Lock()
		delete(c.timers, t)
		c.mu.Unlock()
		c.tick()
	})
	c.timers[t] = struct{}{}
	c.logger.Debug().Str("code", record.InstrumentCode).Dur("delay", c.cfg.PostAddDelay).Msg("Post-add refresh scheduled")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
