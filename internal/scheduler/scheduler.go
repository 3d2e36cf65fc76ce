package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/weather-ingest/internal/weather"
)

// Runner executes one pipeline invocation.
type Runner interface {
	Run(ctx context.Context, req weather.Request) (weather.Summary, error)
}

// Config describes the recurring job.
type Config struct {
	Location  weather.Location
	Variables weather.VariableSet
	Interval  time.Duration
	// Window is how far back from now each run reaches.
	Window time.Duration
	// Timeout bounds a single scheduled run so a stuck run cannot hold the
	// singleton slot past the next tick. Zero means no bound beyond the fetch
	// timeouts. One-shot runs never get this bound.
	Timeout time.Duration
}

// Scheduler periodically runs the pipeline over a trailing window.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	cfg       Config
	log       *slog.Logger
	now       func() time.Time
	onResult  func(weather.Summary, error)
}

// New creates a new Scheduler.
func New(cfg Config, runner Runner, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		runner:    runner,
		cfg:       cfg,
		log:       log.With("component", "scheduler"),
		now:       time.Now,
	}
}

// OnResult registers a callback invoked after every run.
func (s *Scheduler) OnResult(fn func(weather.Summary, error)) {
	s.onResult = fn
}

// Start schedules the job and starts the underlying scheduler. The first run
// happens immediately. Overlapping runs are skipped.
func (s *Scheduler) Start() error {
	if s.cfg.Interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}

	_, err := s.scheduler.Every(s.cfg.Interval).SingletonMode().Do(func() {
		s.runOnce(context.Background())
	})
	if err != nil {
		return err
	}

	s.log.Info("scheduler started",
		"interval", s.cfg.Interval.String(),
		"window", s.cfg.Window.String(),
		"location", s.cfg.Location.Key(),
	)
	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// Request builds the request for a run starting at now.
func (s *Scheduler) Request(now time.Time) weather.Request {
	return weather.Request{
		Location:  s.cfg.Location,
		Range:     weather.NewDateRange(now.Add(-s.cfg.Window), now),
		Variables: s.cfg.Variables,
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	req := s.Request(s.now().UTC())
	s.log.Info("running scheduled ingestion", "start_date", req.Range.StartDate(), "end_date", req.Range.EndDate())

	summary, err := s.runner.Run(ctx, req)
	if err != nil {
		s.log.Error("scheduled ingestion failed", "error", err)
	} else {
		s.log.Info("scheduled ingestion completed", "status", summary.Status(), "run_id", summary.RunID)
	}
	if s.onResult != nil {
		s.onResult(summary, err)
	}
}
