package stats

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/natachasiqueira/clinicamentalize/internal/observability/metrics"
	"github.com/natachasiqueira/clinicamentalize/internal/scheduling"
	"github.com/natachasiqueira/clinicamentalize/pkg/logging"
)

// Snapshotter loads the ledger state for a report.
type Snapshotter interface {
	Load(ctx context.Context, since time.Time) (Snapshot, error)
}

// Service computes the dashboard. Concurrent callers share one load.
type Service struct {
	loader  Snapshotter
	clock   scheduling.Clock
	opts    Options
	flight  singleflight.Group
	metrics *metrics.SchedulingMetrics
	logger  *logging.Logger
}

func NewService(loader Snapshotter, clock scheduling.Clock, opts Options, logger *logging.Logger) *Service {
	if loader == nil {
		panic("stats: loader required")
	}
	if clock == nil {
		clock = scheduling.SystemClock{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{loader: loader, clock: clock, opts: opts.normalized(), logger: logger}
}

func (s *Service) WithMetrics(m *metrics.SchedulingMetrics) *Service {
	s.metrics = m
	return s
}

// Dashboard computes the report as of the service clock. The shared load
// outlives any single caller; each caller stops waiting when its own ctx ends.
func (s *Service) Dashboard(ctx context.Context) (Report, error) {
	ch := s.flight.DoChan("dashboard", func() (any, error) {
		return s.compute(context.WithoutCancel(ctx), s.clock.Now())
	})
	select {
	case <-ctx.Done():
		return Report{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Report{}, res.Err
		}
		if res.Shared {
			s.logger.Debug("dashboard computation shared")
		}
		return res.Val.(Report), nil
	}
}

// At computes the report for an explicit reference time.
func (s *Service) At(ctx context.Context, now time.Time) (Report, error) {
	return s.compute(ctx, now)
}

func (s *Service) compute(ctx context.Context, now time.Time) (Report, error) {
	started := time.Now()
	snap, err := s.loader.Load(ctx, now.Add(-max(s.opts.Window, s.opts.CaseloadWindow)))
	if err != nil {
		s.logger.Error("dashboard load failed", "error", err)
		return Report{}, err
	}
	report := Compute(snap, now, s.opts)
	s.metrics.ObserveStats(time.Since(started).Seconds())
	s.logger.Debug("dashboard computed",
		"appointments", len(snap.Appointments),
		"psychologists", len(snap.Psychologists),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return report, nil
}
