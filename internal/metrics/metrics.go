// Package metrics exports probe and cycle outcomes to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hamed0406/servicemonitor/internal/domain"
	"github.com/hamed0406/servicemonitor/internal/health"
	"github.com/hamed0406/servicemonitor/internal/probe"
)

var _ health.Observer = (*Exporter)(nil)

var latencyBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

type Exporter struct {
	up          *prometheus.GaugeVec
	ttfb        *prometheus.HistogramVec
	certExpiry  *prometheus.GaugeVec
	cycles      *prometheus.CounterVec
	cycleTime   *prometheus.HistogramVec
	transitions *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
// (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer) (*Exporter, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	e := &Exporter{
		up: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "servicemonitor_service_up",
			Help: "Whether the last probe of a service succeeded (1 = healthy, 0 = failing)",
		}, []string{"group", "service", "kind"}),
		ttfb: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "servicemonitor_probe_ttfb_seconds",
			Help:    "Time to first byte of successful HTTP probes",
			Buckets: latencyBuckets,
		}, []string{"group"}),
		certExpiry: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "servicemonitor_cert_expiry_timestamp_seconds",
			Help: "Unix time at which the service's TLS certificate expires",
		}, []string{"group", "service"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicemonitor_cycles_total",
			Help: "Evaluation cycles by outcome",
		}, []string{"group", "result"}),
		cycleTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "servicemonitor_cycle_duration_seconds",
			Help:    "Wall time of one group evaluation cycle",
			Buckets: prometheus.DefBuckets,
		}, []string{"group"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicemonitor_transitions_total",
			Help: "Health transitions detected, by direction",
		}, []string{"group", "direction"}),
	}
	for _, c := range []prometheus.Collector{e.up, e.ttfb, e.certExpiry, e.cycles, e.cycleTime, e.transitions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Exporter) ObserveService(group string, svc domain.Service, res probe.Result) {
	v := 0.0
	if svc.Status == domain.StatusHealthy {
		v = 1
	}
	e.up.WithLabelValues(group, svc.Name, string(svc.Kind)).Set(v)
	if res.Healthy && res.ElapsedSeconds != nil {
		e.ttfb.WithLabelValues(group).Observe(*res.ElapsedSeconds)
	}
	if svc.ExpireDate != nil {
		e.certExpiry.WithLabelValues(group, svc.Name).Set(float64(svc.ExpireDate.Unix()))
	}
}

func (e *Exporter) ObserveCycle(group string, sum health.Summary, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	e.cycles.WithLabelValues(group, result).Inc()
	e.cycleTime.WithLabelValues(group).Observe(elapsed.Seconds())
	if n := len(sum.BecameUnhealthy); n > 0 {
		e.transitions.WithLabelValues(group, "down").Add(float64(n))
	}
	if n := len(sum.BecameHealthy); n > 0 {
		e.transitions.WithLabelValues(group, "up").Add(float64(n))
	}
}

// Forget drops the per-service series of a removed service.
func (e *Exporter) Forget(group, name string) {
	e.up.DeletePartialMatch(prometheus.Labels{"group": group, "service": name})
	e.certExpiry.DeleteLabelValues(group, name)
}
