package notify

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/servicemonitor/internal/alert"
)

// Notifier delivers one event. Delivery is best effort; callers log
// failures and move on.
type Notifier interface {
	Notify(ctx context.Context, ev alert.Event) error
}

// Multi fans an event out to every notifier and combines their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev alert.Event) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Notify(ctx, ev))
	}
	return err
}

// Log writes events to the process log. It is always wired so events are
// visible even without any external channel.
type Log struct {
	Logger *zap.Logger
}

func (l Log) Notify(_ context.Context, ev alert.Event) error {
	l.Logger.Info("notification",
		zap.String("kind", string(ev.Kind)),
		zap.String("group", ev.GroupID),
		zap.String("service", ev.Service.Name),
		zap.String("status", string(ev.Service.Status)))
	return nil
}
