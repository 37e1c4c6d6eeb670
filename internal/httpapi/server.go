package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hamed0406/servicemonitor/internal/health"
	apimw "github.com/hamed0406/servicemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/servicemonitor/internal/monitor"
	"github.com/hamed0406/servicemonitor/internal/probe"
	"github.com/hamed0406/servicemonitor/internal/scheduler"
)

// GroupEvaluator runs one evaluation cycle for a single group.
type GroupEvaluator interface {
	EvaluateGroup(ctx context.Context, group string) (health.Summary, error)
}

// Forgetter drops per-service state kept outside the repository, such as
// metric series, once a service is removed.
type Forgetter interface {
	Forget(group, name string)
}

type Server struct {
	Logger   *zap.Logger
	Registry *monitor.Registry
	Engine   GroupEvaluator
	Alerter  *scheduler.Alerter

	// Optional.
	Resolver probe.Resolver      // DNS advisory on add; skipped when nil
	Forget   Forgetter           // called after a remove
	Gatherer prometheus.Gatherer // defaults to prometheus.DefaultGatherer
}

func NewServer(l *zap.Logger, reg *monitor.Registry, eng GroupEvaluator, a *scheduler.Alerter) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Registry: reg, Engine: eng, Alerter: a}
}

// Limits are the per-IP request budgets for read and write routes.
type Limits struct {
	PublicRPM, PublicBurst int
	AdminRPM, AdminBurst   int
}

// Router mounts the command surface. allowGroups restricts which group ids
// may be addressed; empty allows all.
func (s *Server) Router(keys apimw.Keys, allowGroups []string, lim Limits) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	g := s.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	r.Route("/api/groups/{group}", func(r chi.Router) {
		r.Use(apimw.AllowGroups("group", allowGroups))

		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(lim.PublicRPM, lim.PublicBurst))
			r.Use(apimw.RequireAny(keys))
			r.Get("/services", s.handleList)
		})

		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(lim.AdminRPM, lim.AdminBurst))
			r.Use(apimw.RequireAdmin(keys))
			r.Post("/services", s.handleAdd)
			r.Delete("/services/{name}", s.handleRemove)
			r.Post("/check", s.handleCheck)
		})
	})

	return r
}
