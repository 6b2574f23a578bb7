// Package cron runs the recurring jobs of the daemon: the day rollover that
// re-arms reminders at midnight and the store poll that picks up edits made
// by other processes.
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultRollover fires at local midnight
const DefaultRollover = "0 0 * * *"

// Refresher is what the jobs drive, implemented by app.Service
type Refresher interface {
	// Refresh reloads and always re-arms
	Refresh(ctx context.Context) error
	// Sync reloads and re-arms only when the store changed
	Sync(ctx context.Context) (bool, error)
}

// Config holds cron runner configuration
type Config struct {
	RolloverSpec string        // standard 5-field cron spec
	PollInterval time.Duration // 0 disables polling
	JobTimeout   time.Duration
	Location     *time.Location
}

// Runner manages scheduled job execution
type Runner struct {
	config  Config
	target  Refresher
	logger  *zap.Logger
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	mu      sync.RWMutex
}

// NewRunner creates a new cron runner. The spec is checked here so a bad
// rollover_cron fails at startup.
func NewRunner(config Config, target Refresher, logger *zap.Logger) (*Runner, error) {
	if config.RolloverSpec == "" {
		config.RolloverSpec = DefaultRollover
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 30 * time.Second
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := cron.New(
		cron.WithLocation(config.Location),
		cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
	)

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		config: config,
		target: target,
		logger: logger,
		cron:   c,
		ctx:    ctx,
		cancel: cancel,
	}

	if _, err := c.AddFunc(config.RolloverSpec, r.rollover); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid rollover spec %q: %w", config.RolloverSpec, err)
	}
	if config.PollInterval > 0 {
		c.Schedule(cron.Every(config.PollInterval), cron.FuncJob(r.poll))
	}
	return r, nil
}

// Start starts the cron runner
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("cron runner already running")
	}

	r.running = true
	r.cron.Start()
	r.logger.Info("Cron runner started",
		zap.String("rollover", r.config.RolloverSpec),
		zap.Duration("poll_interval", r.config.PollInterval),
	)
	return nil
}

// Stop stops the runner and waits for a running job to finish
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	<-r.cron.Stop().Done()
	r.logger.Info("Cron runner stopped")
}

// IsRunning returns whether the runner is active
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// NextRollover returns when the rollover job fires next
func (r *Runner) NextRollover() time.Time {
	for _, e := range r.cron.Entries() {
		if _, ok := e.Schedule.(*cron.SpecSchedule); ok {
			return e.Next
		}
	}
	return time.Time{}
}

func (r *Runner) rollover() {
	ctx, cancel := context.WithTimeout(r.ctx, r.config.JobTimeout)
	defer cancel()

	if err := r.target.Refresh(ctx); err != nil {
		r.logger.Error("Rollover failed", zap.Error(err))
		return
	}
	r.logger.Info("Day rollover, reminders re-armed")
}

func (r *Runner) poll() {
	ctx, cancel := context.WithTimeout(r.ctx, r.config.JobTimeout)
	defer cancel()

	if _, err := r.target.Sync(ctx); err != nil {
		r.logger.Warn("Store poll failed", zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
