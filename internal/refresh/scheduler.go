// Package refresh re-runs the pipeline for a watch list on a fixed interval and publishes
// the results, so consumers never poll the backend themselves.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/volcanowatch/volcano-risk/internal/metrics"
	"github.com/volcanowatch/volcano-risk/internal/models"
	"github.com/volcanowatch/volcano-risk/internal/present"
	"github.com/volcanowatch/volcano-risk/internal/query"
	"github.com/volcanowatch/volcano-risk/internal/services"
)

// Runner is the part of the risk service the scheduler drives.
type Runner interface {
	EntityView(ctx context.Context, sel models.UserSelection) (services.EntityResult, error)
	MapView(ctx context.Context, req query.MapRequest) (models.MapView, error)
}

// Config describes what each cycle refreshes.
type Config struct {
	Interval       time.Duration
	Watch          []string
	RadiusKm       float64
	MinMag         float64
	Map            query.MapRequest
	MapEnabled     bool
	UnhealthyAfter int
}

// CycleReport summarises one refresh cycle.
type CycleReport struct {
	ID             string    `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Entities       int       `json:"entities"`
	EntityFailures int       `json:"entity_failures"`
	MapRows        int       `json:"map_rows"`
	Error          string    `json:"error,omitempty"`
}

// Scheduler runs refresh cycles on a ticker.
type Scheduler struct {
	logger   *slog.Logger
	runner   Runner
	sink     present.Sink
	cfg      Config
	now      func() time.Time
	onHealth func(healthy bool)

	mu                  sync.RWMutex
	consecutiveFailures int
	last                CycleReport
}

// NewScheduler constructs a scheduler. onHealth, when set, is called whenever health flips.
func NewScheduler(logger *slog.Logger, runner Runner, sink present.Sink, cfg Config, onHealth func(bool)) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.UnhealthyAfter <= 0 {
		cfg.UnhealthyAfter = 3
	}
	return &Scheduler{
		logger:   logger,
		runner:   runner,
		sink:     sink,
		cfg:      cfg,
		now:      time.Now,
		onHealth: onHealth,
	}
}

// Run executes a cycle immediately and then once per interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("refresh scheduler started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Int("watch", len(s.cfg.Watch)),
		slog.Bool("map", s.cfg.MapEnabled),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("refresh scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes one cycle and records its outcome.
func (s *Scheduler) RunOnce(ctx context.Context) CycleReport {
	report := CycleReport{ID: uuid.NewString(), StartedAt: s.now().UTC()}
	logger := s.logger.With(slog.String("cycle_id", report.ID))
	logger.Debug("refresh cycle starting")

	var errs []error
	for _, id := range s.cfg.Watch {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		report.Entities++
		if err := s.refreshEntity(ctx, id); err != nil {
			report.EntityFailures++
			logger.Warn("entity refresh failed", slog.String("entity_id", id), slog.Any("error", err))
			errs = append(errs, err)
		}
	}

	mapFailed := false
	if s.cfg.MapEnabled && ctx.Err() == nil {
		rows, err := s.refreshMap(ctx)
		if err != nil {
			mapFailed = true
			logger.Warn("map refresh failed", slog.Any("error", err))
			errs = append(errs, err)
		}
		report.MapRows = rows
	}

	report.FinishedAt = s.now().UTC()
	attempted, failures := report.Entities, report.EntityFailures
	if s.cfg.MapEnabled {
		attempted++
		if mapFailed {
			failures++
		}
	}
	// A cycle fails only when nothing it attempted succeeded.
	failed := ctx.Err() != nil || (attempted > 0 && failures == attempted)
	if len(errs) > 0 {
		report.Error = errors.Join(errs...).Error()
	}

	s.record(report, failed)
	if failed {
		metrics.ObserveRefreshCycle(metrics.OutcomeError)
		logger.Error("refresh cycle failed", slog.String("error", report.Error))
	} else {
		metrics.ObserveRefreshCycle(metrics.OutcomeSuccess)
		logger.Info("refresh cycle completed",
			slog.Int("entities", report.Entities),
			slog.Int("entity_failures", report.EntityFailures),
			slog.Int("map_rows", report.MapRows),
			slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
		)
	}
	return report
}

// Healthy reports whether fewer than UnhealthyAfter cycles in a row have failed.
func (s *Scheduler) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consecutiveFailures < s.cfg.UnhealthyAfter
}

// Last returns the most recent cycle report.
func (s *Scheduler) Last() CycleReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Scheduler) refreshEntity(ctx context.Context, id string) error {
	result, err := s.runner.EntityView(ctx, models.UserSelection{EntityID: id, RadiusKm: s.cfg.RadiusKm, MinMag: s.cfg.MinMag})
	if err != nil {
		return fmt.Errorf("entity %s: %w", id, err)
	}
	return s.sink.PublishEntity(ctx, present.NewEntityPanel(result.View, s.now()))
}

func (s *Scheduler) refreshMap(ctx context.Context) (int, error) {
	view, err := s.runner.MapView(ctx, s.cfg.Map)
	if err != nil {
		return 0, fmt.Errorf("map: %w", err)
	}
	if err := s.sink.PublishMap(ctx, present.NewMapLayer(view, s.now())); err != nil {
		return 0, err
	}
	return len(view.Rows), nil
}

func (s *Scheduler) record(report CycleReport, failed bool) {
	s.mu.Lock()
	wasHealthy := s.consecutiveFailures < s.cfg.UnhealthyAfter
	if failed {
		s.consecutiveFailures++
	} else {
		if s.consecutiveFailures > 0 {
			s.logger.Info("refresh recovered", slog.Int("after_failures", s.consecutiveFailures))
		}
		s.consecutiveFailures = 0
	}
	healthy := s.consecutiveFailures < s.cfg.UnhealthyAfter
	s.last = report
	s.mu.Unlock()

	if healthy != wasHealthy && s.onHealth != nil {
		s.onHealth(healthy)
	}
}
