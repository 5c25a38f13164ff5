package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taf"

// Metrics holds the orchestrator collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	runsStarted     *prometheus.CounterVec
	runsFinished    *prometheus.CounterVec
	runDuration     prometheus.Histogram
	runsInFlight    prometheus.Gauge
	pendingTriggers prometheus.Gauge
	recurring       prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Runs handed to the executor, by trigger type.",
		}, []string{"trigger"}),
		runsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Runs that reached a terminal status, by status.",
		}, []string{"status"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of executor invocations.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}),
		runsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Runs currently executing.",
		}),
		pendingTriggers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_one_off_triggers",
			Help:      "One-off triggers waiting to fire.",
		}),
		recurring: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recurring_schedules",
			Help:      "Registered recurring schedules.",
		}),
	}
}

func (m *Metrics) RunStarted(trigger string) {
	if m == nil {
		return
	}
	m.runsStarted.WithLabelValues(trigger).Inc()
	m.runsInFlight.Inc()
}

func (m *Metrics) RunFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runsFinished.WithLabelValues(status).Inc()
	m.runDuration.Observe(elapsed.Seconds())
	m.runsInFlight.Dec()
}

func (m *Metrics) SetPendingTriggers(n int) {
	if m == nil {
		return
	}
	m.pendingTriggers.Set(float64(n))
}

func (m *Metrics) SetRecurringSchedules(n int) {
	if m == nil {
		return
	}
	m.recurring.Set(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
