package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
	"github.com/angelmondragon/supportdesk-backend/pkg/metrics"
)

const defaultTick = time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	// Interval is the tick; each job still runs on its own cadence.
	Interval time.Duration
}

// Service runs background jobs inside the API process. Every tick one
// replica wins the lock and runs whichever jobs are due.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	tick     time.Duration
	now      func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	if p.Lock == nil {
		return nil, errors.New("lock required")
	}
	s := &Service{
		logg:     p.Logger,
		registry: p.Registry,
		lock:     p.Lock,
		metrics:  p.Metrics,
		tick:     p.Interval,
		now:      time.Now,
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.tick <= 0 {
		s.tick = defaultTick
	}
	return s, nil
}

// Run ticks until ctx is canceled, running a first cycle immediately.
func (s *Service) Run(ctx context.Context) error {
	ctx = s.logg.WithField(ctx, "component", "cron")
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs": len(s.registry.Jobs()),
		"tick": s.tick.String(),
	}), "cron service started")

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "cron service stopped")
			return err
		}
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	release, won, err := s.lock.TryAcquire(ctx)
	if err != nil {
		s.metrics.Cycle(metrics.CycleLockError)
		return err
	}
	if !won {
		s.metrics.Cycle(metrics.CycleSkipped)
		s.logg.Debug(ctx, "cron lock held elsewhere; skipping cycle")
		return nil
	}
	s.metrics.Cycle(metrics.CycleLeader)
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "cron lock release failed", err)
		}
	}()

	for _, job := range s.registry.Due(s.now()) {
		s.runJob(ctx, job)
	}
	return nil
}

// runJob isolates one job: failures and panics are logged and counted but
// never stop the rest of the cycle.
func (s *Service) runJob(ctx context.Context, job Job) {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	started := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panic: %v", r)
			}
		}()
		return job.Run(ctx)
	}()
	took := time.Since(started)
	s.metrics.Observe(job.Name(), took, err)

	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron job failed", err)
		return
	}
	s.logg.Debug(ctx, "cron job completed")
}
