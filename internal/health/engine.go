package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/servicemonitor/internal/domain"
	"github.com/hamed0406/servicemonitor/internal/probe"
	"github.com/hamed0406/servicemonitor/internal/repo"
)

// Observer sees every reconciled service and every finished cycle.
type Observer interface {
	ObserveService(group string, svc domain.Service, res probe.Result)
	ObserveCycle(group string, sum Summary, elapsed time.Duration, err error)
}

// Config bounds one evaluation cycle.
type Config struct {
	ProbeTimeout     time.Duration
	Session          probe.Options
	GroupConcurrency int
}

// Engine runs evaluation cycles over the groups of a repository.
type Engine struct {
	repo     repo.Repository
	locks    *repo.GroupLocks
	cycles   *repo.GroupLocks
	checkers probe.Table
	cfg      Config
	log      *zap.Logger
	observer Observer
	now      func() time.Time
}

// Option customizes an Engine built by New.
type Option func(*Engine)

// WithObserver reports every probed service and finished cycle to o.
func WithObserver(o Observer) Option { return func(e *Engine) { e.observer = o } }

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// New builds an Engine. Nil locks and log get working defaults.
func New(r repo.Repository, locks *repo.GroupLocks, checkers probe.Table, cfg Config, log *zap.Logger, opts ...Option) *Engine {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.GroupConcurrency < 1 {
		cfg.GroupConcurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	if locks == nil {
		locks = repo.NewGroupLocks()
	}
	e := &Engine{
		repo:     r,
		locks:    locks,
		cycles:   repo.NewGroupLocks(),
		checkers: checkers,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// EvaluateAll runs one cycle for every known group, a bounded number at a
// time. A failing group does not stop the others; all failures are
// returned combined.
func (e *Engine) EvaluateAll(ctx context.Context) ([]Summary, error) {
	ids, err := e.repo.ListGroupIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	var (
		mu     sync.Mutex
		out    []Summary
		errAll error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.GroupConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			sum, err := e.EvaluateGroup(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.log.Error("group_evaluation_failed", zap.String("group", id), zap.Error(err))
				errAll = multierr.Append(errAll, err)
				return nil
			}
			out = append(out, sum)
			return nil
		})
	}
	_ = g.Wait()
	return out, errAll
}

// EvaluateGroup probes every enabled service of group, reconciles the
// results against the stored state and persists the whole set once.
func (e *Engine) EvaluateGroup(ctx context.Context, group string) (Summary, error) {
	release := e.cycles.Lock(group)
	defer release()

	start := time.Now()
	sum, err := e.evaluate(ctx, group)
	if e.observer != nil {
		e.observer.ObserveCycle(group, sum, time.Since(start), err)
	}
	return sum, err
}

func (e *Engine) evaluate(ctx context.Context, group string) (Summary, error) {
	services, err := e.load(ctx, group)
	if err != nil {
		return Summary{GroupID: group}, err
	}

	active := make([]domain.Service, 0, len(services))
	for _, s := range services {
		if s.Enabled {
			active = append(active, s)
		}
	}
	sum := Summary{GroupID: group, TimeDown: map[string]time.Duration{}}
	if len(active) == 0 {
		sum.Services = services
		return sum, nil
	}

	now := e.now().UTC().Truncate(time.Second)
	sum.EvaluatedAt = now
	results := e.probeAll(ctx, group, active)
	// A cancelled cycle says nothing about the services; drop it unsaved.
	if err := ctx.Err(); err != nil {
		return Summary{GroupID: group}, fmt.Errorf("group %s: cycle aborted: %w", group, err)
	}

	reconciled := make([]domain.Service, 0, len(active))
	for i, svc := range active {
		o := reconcile(svc, results[i], now)
		reconciled = append(reconciled, o.svc)
		switch o.change {
		case wentDown:
			sum.BecameUnhealthy = append(sum.BecameUnhealthy, o.svc)
		case cameUp:
			sum.BecameHealthy = append(sum.BecameHealthy, o.svc)
			if o.downKnown {
				sum.TimeDown[o.svc.Name] = o.down
			}
		}
		if e.observer != nil {
			e.observer.ObserveService(group, o.svc, results[i])
		}
	}

	persisted, err := e.persist(ctx, group, active, reconciled)
	if err != nil {
		return sum, err
	}
	sum.Services = persisted

	e.log.Info("group_evaluated",
		zap.String("group", group),
		zap.Int("probed", len(active)),
		zap.Int("became_unhealthy", len(sum.BecameUnhealthy)),
		zap.Int("became_healthy", len(sum.BecameHealthy)))
	return sum, nil
}

func (e *Engine) load(ctx context.Context, group string) ([]domain.Service, error) {
	unlock := e.locks.Lock(group)
	defer unlock()
	recs, err := e.repo.FetchAll(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("group %s: fetch: %w", group, err)
	}
	services, err := domain.FromRecords(recs)
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", group, err)
	}
	return services, nil
}

// probeAll runs one probe per service concurrently and waits for all of
// them. Each probe has its own deadline, so the wait is bounded by the
// probe timeout rather than the number of services.
func (e *Engine) probeAll(ctx context.Context, group string, active []domain.Service) []probe.Result {
	sess := probe.NewSession(e.cfg.Session, len(active))
	defer sess.Close()

	results := make([]probe.Result, len(active))
	var wg sync.WaitGroup
	for i, svc := range active {
		chk, ok := e.checkers.Lookup(svc.Kind)
		if !ok {
			e.log.Warn("no_checker_for_kind", zap.String("group", group),
				zap.String("service", svc.Name), zap.String("kind", string(svc.Kind)))
			results[i] = probe.Failed()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, e.cfg.ProbeTimeout)
			defer cancel()
			results[i] = chk.Check(pctx, svc, sess)
		}()
	}
	wg.Wait()
	return results
}

// persist overlays the reconciled services onto whatever the group holds
// now. Services removed while probes ran stay removed, services added
// meanwhile are kept untouched.
func (e *Engine) persist(ctx context.Context, group string, probed, reconciled []domain.Service) ([]domain.Service, error) {
	unlock := e.locks.Lock(group)
	defer unlock()

	recs, err := e.repo.FetchAll(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("group %s: refetch: %w", group, err)
	}
	current, err := domain.FromRecords(recs)
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", group, err)
	}

	merged := make([]domain.Service, 0, len(current))
	for _, cur := range current {
		replaced := false
		for i, p := range probed {
			if domain.SameName(cur.Name, p.Name) && sameTarget(cur, p) {
				merged = append(merged, reconciled[i])
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, cur)
		}
	}

	if err := e.repo.BulkReplace(ctx, group, domain.ToRecords(merged)); err != nil {
		return nil, fmt.Errorf("group %s: write: %w", group, err)
	}
	return merged, nil
}

// sameTarget tells a service apart from a re-registration under the same
// name with a different target.
func sameTarget(a, b domain.Service) bool {
	if a.URL != b.URL || a.Kind != b.Kind || a.Enabled != b.Enabled {
		return false
	}
	if (a.Port == nil) != (b.Port == nil) {
		return false
	}
	return a.Port == nil || *a.Port == *b.Port
}
