package probe

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/servicemonitor/internal/domain"
)

// SocketChecker reports a service healthy when a TCP connection to
// host:port can be opened.
type SocketChecker struct {
	Timeout time.Duration
	Log     *zap.Logger
}

func NewSocketChecker(timeout time.Duration, log *zap.Logger) *SocketChecker {
	if log == nil {
		log = zap.NewNop()
	}
	return &SocketChecker{Timeout: timeout, Log: log}
}

func (c *SocketChecker) Check(ctx context.Context, svc domain.Service, _ *Session) Result {
	d := net.Dialer{Timeout: c.Timeout}
	conn, err := d.DialContext(ctx, "tcp", svc.Address())
	if err != nil {
		c.Log.Warn("probe_failed", zap.String("service", svc.Name), zap.String("addr", svc.Address()),
			zap.String("reason", classify(err)), zap.Error(err))
		return Failed()
	}
	_ = conn.Close()
	return Result{Healthy: true}
}
