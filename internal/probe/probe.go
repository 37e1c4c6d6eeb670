package probe

import (
	"context"
	"time"

	"github.com/hamed0406/servicemonitor/internal/domain"
)

// Result is the outcome of a single probe. Checkers never return errors:
// every failure is an unhealthy Result with the optional fields left nil.
type Result struct {
	Healthy        bool
	ElapsedSeconds *float64
	ExpireDate     *time.Time
	StatusCode     *int
}

// Failed is the result every transport-level failure collapses to.
func Failed() Result { return Result{} }

// Checker probes one service using the cycle's shared session.
type Checker interface {
	Check(ctx context.Context, svc domain.Service, sess *Session) Result
}

// CheckerFunc adapts a plain function to Checker.
type CheckerFunc func(ctx context.Context, svc domain.Service, sess *Session) Result

func (f CheckerFunc) Check(ctx context.Context, svc domain.Service, sess *Session) Result {
	return f(ctx, svc, sess)
}

// Table maps each transport kind to its strategy.
type Table map[domain.TransportKind]Checker

// Lookup returns the checker registered for kind.
func (t Table) Lookup(kind domain.TransportKind) (Checker, bool) {
	c, ok := t[kind]
	return c, ok
}
