// Package scheduler runs the report on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"cheque-report-service/internal/period"
	"cheque-report-service/pkg/errors"
	"cheque-report-service/pkg/logger"
)

// DefaultSpec runs at 06:00 on the first day of every month
const DefaultSpec = "0 6 1 * *"

// DefaultTimeZone is the bank's local time zone
const DefaultTimeZone = "Asia/Kuala_Lumpur"

// Job is one scheduled unit of work. runAt is the activation time in the
// schedule's time zone.
type Job func(ctx context.Context, runAt time.Time) error

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock overrides the clock that stamps each run
func WithClock(clock period.Clock) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// Config holds the schedule settings
type Config struct {
	Spec     string `mapstructure:"cron"`
	TimeZone string `mapstructure:"timezone"`
}

// DefaultConfig returns the monthly schedule
func DefaultConfig() Config {
	return Config{Spec: DefaultSpec, TimeZone: DefaultTimeZone}
}

// RunStats counts completed runs
type RunStats struct {
	Runs     int
	Failures int
	LastRun  time.Time
	LastErr  error
}

// Scheduler wraps a cron instance running a single job
type Scheduler struct {
	config   Config
	location *time.Location
	schedule cron.Schedule
	cron     *cron.Cron
	job      Job
	clock    period.Clock
	logger   logger.Logger

	mu     sync.Mutex
	stats  RunStats
	ctx    context.Context
	cancel context.CancelFunc
}

// New validates the cron spec and time zone and registers job
func New(config Config, job Job, opts ...Option) (*Scheduler, error) {
	if config.Spec == "" {
		config.Spec = DefaultSpec
	}
	if config.TimeZone == "" {
		config.TimeZone = DefaultTimeZone
	}
	if job == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "schedule.job", nil, fmt.Errorf("job cannot be nil"))
	}

	loc, err := time.LoadLocation(config.TimeZone)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "schedule.timezone", config.TimeZone, err)
	}

	schedule, err := cron.ParseStandard(config.Spec)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "schedule.cron", config.Spec, err).
			WithSuggestion("Use a five-field cron expression such as \"0 6 1 * *\" or a descriptor such as \"@monthly\"")
	}

	s := &Scheduler{
		config:   config,
		location: loc,
		schedule: schedule,
		cron:     cron.New(cron.WithLocation(loc)),
		job:      job,
		clock:    period.SystemClock{Location: loc},
		logger:   logger.GetGlobalLogger().WithComponent("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron.Schedule(schedule, cron.FuncJob(func() { s.RunNow(s.ctx) }))

	return s, nil
}

// Location returns the time zone the schedule runs in
func (s *Scheduler) Location() *time.Location {
	return s.location
}

// Next returns the next activation after t in the configured time zone
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.location))
}

// RunNow executes the job once. A failure is logged and recorded; it does
// not stop later runs.
func (s *Scheduler) RunNow(ctx context.Context) error {
	start := time.Now()
	runAt := s.clock.Now().In(s.location)
	log := s.logger.WithField("run_at", runAt.Format(time.RFC3339))
	log.Info("Scheduled report run starting")

	err := s.job(ctx, runAt)

	s.mu.Lock()
	s.stats.Runs++
	s.stats.LastRun = start
	s.stats.LastErr = err
	if err != nil {
		s.stats.Failures++
	}
	s.mu.Unlock()

	if err != nil {
		log.WithError(err).Error("Scheduled report run failed")
		return err
	}
	log.WithField("duration", time.Since(start).String()).Info("Scheduled report run completed")
	return nil
}

// Stats returns a snapshot of the run counters
func (s *Scheduler) Stats() RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Start begins firing the job in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithFields(logger.Fields{
		"cron":     s.config.Spec,
		"timezone": s.config.TimeZone,
		"next_run": s.Next(time.Now()).Format(time.RFC3339),
	}).Info("Scheduler started")
}

// Stop halts the schedule, cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// Run starts the scheduler and blocks until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	s.Stop()
	return nil
}
