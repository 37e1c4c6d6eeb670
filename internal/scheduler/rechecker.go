package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/servicemonitor/internal/health"
)

// Evaluator runs one evaluation cycle over every group.
type Evaluator interface {
	EvaluateAll(ctx context.Context) ([]health.Summary, error)
}

// Rechecker drives evaluation on a fixed interval. A pass always finishes
// before the next tick is handled; ticks that fire meanwhile are dropped.
type Rechecker struct {
	Logger   *zap.Logger
	Engine   Evaluator
	Alerter  *Alerter
	Interval time.Duration
}

func NewRechecker(logger *zap.Logger, engine Evaluator, alerter *Alerter, interval time.Duration) *Rechecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval < 0 {
		interval = 0
	}
	return &Rechecker{
		Logger:   logger,
		Engine:   engine,
		Alerter:  alerter,
		Interval: interval,
	}
}

// Run does an immediate pass, then one per tick, until ctx is cancelled.
func (r *Rechecker) Run(ctx context.Context) {
	if r.Interval == 0 {
		r.Logger.Info("rechecker_disabled")
		return
	}
	t := time.NewTicker(r.Interval)
	defer t.Stop()

	r.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("rechecker_stopped")
			return
		case <-t.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce evaluates every group and dispatches the resulting events.
func (r *Rechecker) RunOnce(ctx context.Context) {
	start := time.Now()
	sums, err := r.Engine.EvaluateAll(ctx)
	if err != nil {
		// per-group failures; the groups in sums still completed
		r.Logger.Warn("rechecker_cycle_errors", zap.Error(err))
	}

	events := 0
	for _, sum := range sums {
		if r.Alerter == nil {
			continue
		}
		events += len(r.Alerter.Dispatch(ctx, sum))
	}
	r.Logger.Info("rechecker_pass_done",
		zap.Int("groups", len(sums)),
		zap.Int("events", events),
		zap.Duration("took", time.Since(start)))
}
