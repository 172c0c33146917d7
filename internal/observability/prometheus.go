package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver implements Observer on top of a prometheus registry:
// events increment a labeled counter by name, and IncrementCounter feeds a
// dedicated counter vector.
type PrometheusObserver struct {
	events   *prometheus.CounterVec
	counters *prometheus.CounterVec
	registry *prometheus.Registry
}

// NewPrometheusObserver builds and registers the runtime's metric
// families on a fresh registry, which callers reach through Registry().
func NewPrometheusObserver() *PrometheusObserver {
	reg := prometheus.NewRegistry()
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ghostclaw",
		Name:      "events_total",
		Help:      "Count of runtime events by name.",
	}, []string{"event"})
	counters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ghostclaw",
		Name:      "metric_total",
		Help:      "Generic named counters emitted by the runtime core.",
	}, []string{"metric"})
	reg.MustRegister(events, counters)
	return &PrometheusObserver{events: events, counters: counters, registry: reg}
}

func (p *PrometheusObserver) Registry() *prometheus.Registry { return p.registry }

func (p *PrometheusObserver) RecordEvent(e Event) {
	p.events.WithLabelValues(e.Name).Inc()
}

func (p *PrometheusObserver) IncrementCounter(name string, value float64, labels map[string]string) {
	p.counters.WithLabelValues(name).Add(value)
}

var _ Observer = (*PrometheusObserver)(nil)
