// Package metrics exposes Prometheus collectors for dispatch outcomes.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const logPrefix = "metrics:metrics"

// Unresolved replaces system and action labels for requests that named an unknown
// target, so arbitrary client input cannot grow label cardinality.
const Unresolved = "unresolved"

// Metrics holds the dispatcher's collectors. A nil *Metrics records nothing.
type Metrics struct {
	dispatches *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	panics     *prometheus.CounterVec
	inFlight   prometheus.Gauge
}

// Observation describes one finished dispatch.
type Observation struct {
	System    string
	Action    string
	Status    string
	ErrorType string
	Resolved  bool
	Duration  time.Duration
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actions",
			Name:      "dispatch_total",
			Help:      "Dispatched action requests by outcome.",
		}, []string{"system", "action", "status", "error_type"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "actions",
			Name:      "dispatch_duration_seconds",
			Help:      "Time from request decode to response, per action.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"system", "action"}),
		panics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actions",
			Name:      "handler_panics_total",
			Help:      "Recovered panics in handlers and formatters.",
		}, []string{"system", "action"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "actions",
			Name:      "dispatch_in_flight",
			Help:      "Dispatches currently executing.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.dispatches, m.duration, m.panics, m.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("%s - failed to register collector: %w", logPrefix, err)
		}
	}
	return m, nil
}

// Observe records a finished dispatch.
func (m *Metrics) Observe(o Observation) {
	if m == nil {
		return
	}
	system, action := o.System, o.Action
	if !o.Resolved {
		system, action = Unresolved, Unresolved
	}
	m.dispatches.WithLabelValues(system, action, o.Status, o.ErrorType).Inc()
	m.duration.WithLabelValues(system, action).Observe(o.Duration.Seconds())
}

// Panic records a recovered panic.
func (m *Metrics) Panic(system, action string) {
	if m == nil {
		return
	}
	m.panics.WithLabelValues(system, action).Inc()
}

// Begin marks a dispatch as started and returns the func that marks it finished.
func (m *Metrics) Begin() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}
