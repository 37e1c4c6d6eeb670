package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/servicemonitor/internal/alert"
	"github.com/hamed0406/servicemonitor/internal/health"
	"github.com/hamed0406/servicemonitor/internal/notify"
)

type AlerterConfig struct {
	// CertWarnDays are the days-left values that trigger an expiry warning.
	CertWarnDays []int
}

// Alerter decides which events a cycle produced and hands them to the
// notifier. Delivery failures are logged, never retried.
type Alerter struct {
	notifier notify.Notifier
	cfg      AlerterConfig
	log      *zap.Logger
	now      func() time.Time
}

func NewAlerter(n notify.Notifier, cfg AlerterConfig, log *zap.Logger) *Alerter {
	if cfg.CertWarnDays == nil {
		cfg.CertWarnDays = alert.DefaultThresholds
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Alerter{notifier: n, cfg: cfg, log: log, now: time.Now}
}

// Dispatch sends every event decided for sum and returns them.
func (a *Alerter) Dispatch(ctx context.Context, sum health.Summary) []alert.Event {
	now := sum.EvaluatedAt
	if now.IsZero() {
		now = a.now().UTC()
	}
	events := alert.Decide(sum, now, a.cfg.CertWarnDays)
	for _, ev := range events {
		if err := a.notifier.Notify(ctx, ev); err != nil {
			a.log.Warn("notify_failed",
				zap.String("group", ev.GroupID),
				zap.String("service", ev.Service.Name),
				zap.String("kind", string(ev.Kind)),
				zap.Error(err))
			continue
		}
		a.log.Debug("notify_sent",
			zap.String("group", ev.GroupID),
			zap.String("service", ev.Service.Name),
			zap.String("kind", string(ev.Kind)))
	}
	return events
}
