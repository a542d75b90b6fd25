// Package metrics exposes Prometheus collectors for poll sessions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/billpoll"
)

// Recorder turns poll session events into Prometheus metrics.
//
// Each Recorder owns its registry, so several recorders (one per test, for
// example) never collide on metric names.
type Recorder struct {
	registry *prometheus.Registry

	attemptsTotal   *prometheus.CounterVec
	warningsTotal   prometheus.Counter
	sessionsTotal   *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	nextDelay       prometheus.Histogram
}

// New creates a Recorder with the Go runtime and process collectors
// registered alongside the poll metrics.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billpoll_attempts_total",
				Help: "Total number of probe attempts that did not complete, labeled by result.",
			},
			[]string{"result"},
		),
		warningsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "billpoll_warnings_total",
				Help: "Total number of sessions that ran past their warning threshold.",
			},
		),
		sessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billpoll_sessions_total",
				Help: "Total number of finished poll sessions, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		sessionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billpoll_session_duration_seconds",
				Help:    "Histogram of poll session durations, labeled by outcome.",
				Buckets: []float64{1, 5, 10, 20, 40, 60, 120, 300},
			},
			[]string{"outcome"},
		),
		nextDelay: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "billpoll_retry_delay_seconds",
				Help:    "Histogram of waits scheduled between attempts.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
	}
}

// Observe records one session event. It is meant to be registered with
// billpoll.WithObserver.
func (r *Recorder) Observe(ev billpoll.Event) {
	switch ev.Kind {
	case billpoll.EventAttempt:
		r.attemptsTotal.WithLabelValues("pending").Inc()
		r.observeDelay(ev)
	case billpoll.EventProbeError:
		r.attemptsTotal.WithLabelValues("error").Inc()
		r.observeDelay(ev)
	case billpoll.EventWarning:
		r.warningsTotal.Inc()
	case billpoll.EventSuccess, billpoll.EventStop:
		outcome := string(ev.Outcome)
		r.sessionsTotal.WithLabelValues(outcome).Inc()
		r.sessionDuration.WithLabelValues(outcome).Observe(ev.Elapsed.Seconds())
	}
}

func (r *Recorder) observeDelay(ev billpoll.Event) {
	if ev.Delay > 0 {
		r.nextDelay.Observe(ev.Delay.Seconds())
	}
}

// Handler returns an http.Handler exposing the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
