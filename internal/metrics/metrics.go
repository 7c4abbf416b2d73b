package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Command kinds.
const (
	KindRules = "rules"
	KindApply = "apply"
)

// Registry holds the panel's metrics on an isolated prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	CommandRuns     *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	HTTPRequests    *prometheus.CounterVec
	AuthFailures    prometheus.Counter
}

func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fwpanel_command_runs_total",
		Help: "External commands run, by kind and result (ok, error, timeout).",
	}, []string{"kind", "result"})
	r.CommandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fwpanel_command_duration_seconds",
		Help:    "Wall time of external commands.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
	}, []string{"kind"})
	r.HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fwpanel_http_requests_total",
		Help: "HTTP requests served, by route and status code.",
	}, []string{"route", "code"})
	r.AuthFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fwpanel_auth_failures_total",
		Help: "Requests rejected for missing or bad credentials.",
	})

	r.reg.MustRegister(
		r.CommandRuns,
		r.CommandDuration,
		r.HTTPRequests,
		r.AuthFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveCommand records one finished command.
func (r *Registry) ObserveCommand(kind string, code int, timedOut bool, d time.Duration) {
	result := "ok"
	switch {
	case timedOut:
		result = "timeout"
	case code != 0:
		result = "error"
	}
	r.CommandRuns.WithLabelValues(kind, result).Inc()
	r.CommandDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (r *Registry) ObserveRequest(route string, code int) {
	r.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry, isolated from the global default.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
