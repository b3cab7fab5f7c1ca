// Package metrics exposes Prometheus instrumentation for the session
// supervisor. Registration is lazy and idempotent so isolated tests can
// touch the package without wiring a daemon.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type supervisorMetrics struct {
	activeSessions  prometheus.Gauge
	sessionsStarted *prometheus.CounterVec
	loopFailures    *prometheus.CounterVec
	authorizations  *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *supervisorMetrics
	registry    *prometheus.Registry
)

func getMetrics() *supervisorMetrics {
	metricsOnce.Do(func() {
		registry = prometheus.NewRegistry()

		m := &supervisorMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "lintas_active_sessions",
					Help: "Current number of registered sessions.",
				},
			),
			sessionsStarted: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "lintas_sessions_started_total",
					Help: "Total session loops scheduled, by session.",
				},
				[]string{"session"},
			),
			loopFailures: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "lintas_loop_failures_total",
					Help: "Total unrecoverable session loop failures, by session.",
				},
				[]string{"session"},
			),
			authorizations: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "lintas_authorizations_total",
					Help: "Total authorization attempts, by session and outcome.",
				},
				[]string{"session", "status"},
			),
		}

		registry.MustRegister(
			m.activeSessions,
			m.sessionsStarted,
			m.loopFailures,
			m.authorizations,
		)

		metricsInst = m
	})
	return metricsInst
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	getMetrics()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// SetActiveSessions records the current registry size.
func SetActiveSessions(n int) {
	getMetrics().activeSessions.Set(float64(n))
}

// RecordSessionStarted counts one scheduled session loop.
func RecordSessionStarted(session string) {
	getMetrics().sessionsStarted.WithLabelValues(session).Inc()
}

// RecordLoopFailure counts one unrecoverable loop failure.
func RecordLoopFailure(session string) {
	getMetrics().loopFailures.WithLabelValues(session).Inc()
}

// RecordAuthorization counts one authorization attempt.
func RecordAuthorization(session string, ok bool) {
	status := "failed"
	if ok {
		status = "ok"
	}
	getMetrics().authorizations.WithLabelValues(session, status).Inc()
}
