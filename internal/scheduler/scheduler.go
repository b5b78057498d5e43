package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/studentpen/pen-batch-engine/internal/lock"
	"github.com/studentpen/pen-batch-engine/internal/observability"
	"go.uber.org/zap"
)

// JobFunc is one scheduled unit of work. The int result is the number of
// items the run handled, recorded for observability only.
type JobFunc func(ctx context.Context) (int, error)

// Scheduler triggers jobs on cron expressions and serializes each job name
// cluster-wide through the distributed lock. Different job names run
// concurrently; two instances never run the same job at once, and the
// lock's minimum hold keeps a fast finisher from letting the next tick
// re-trigger immediately.
type Scheduler struct {
	cron    *cron.Cron
	locks   lock.ClusterLock
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time

	baseCtx context.Context
}

func New(locks lock.ClusterLock, logger *zap.Logger) (*Scheduler, error) {
	if locks == nil {
		return nil, fmt.Errorf("cluster lock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		locks:   locks,
		logger:  logger,
		now:     time.Now,
		baseCtx: context.Background(),
	}, nil
}

func (s *Scheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Register schedules a job under a cluster-wide name. The spec uses
// 6-field cron syntax with a leading seconds field.
func (s *Scheduler) Register(name string, spec string, job JobFunc) error {
	if name == "" {
		return fmt.Errorf("job name is required")
	}
	if job == nil {
		return fmt.Errorf("job %s has no function", name)
	}

	_, err := s.cron.AddFunc(spec, func() {
		s.runLocked(name, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s with spec %q: %w", name, spec, err)
	}

	s.logger.Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Start launches the cron loop. Jobs fire until Stop.
func (s *Scheduler) Start(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
	s.cron.Start()
}

// Stop halts triggering and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// runLocked executes one tick of a job behind the cluster lock. A tick that
// loses the lock is skipped, not queued: the next tick tries again.
func (s *Scheduler) runLocked(name string, job JobFunc) {
	ctx := s.baseCtx

	handle, acquired, err := s.locks.TryAcquire(ctx, name)
	if err != nil {
		s.logger.Error("failed to acquire job lock", zap.String("job", name), zap.Error(err))
		s.metrics.RecordJobRun(name, "lock_error", 0)
		return
	}
	if !acquired {
		s.metrics.RecordJobRun(name, "skipped", 0)
		return
	}
	defer func() {
		if err := handle.Release(ctx); err != nil {
			s.logger.Warn("failed to release job lock", zap.String("job", name), zap.Error(err))
		}
	}()

	started := s.now()
	handled, err := job(ctx)
	elapsed := s.now().Sub(started)

	if err != nil {
		s.logger.Error("job run failed",
			zap.String("job", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		s.metrics.RecordJobRun(name, "error", elapsed)
		return
	}

	if handled > 0 {
		s.logger.Info("job run complete",
			zap.String("job", name),
			zap.Int("handled", handled),
			zap.Duration("elapsed", elapsed))
	}
	s.metrics.RecordJobRun(name, "ok", elapsed)
}
