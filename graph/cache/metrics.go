package cache

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts GetOrCreate outcomes per purpose.
type Metrics struct {
	requests *prometheus.CounterVec
}

// NewMetrics registers the cache metrics with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "contentflow",
			Name:      "cache_requests_total",
			Help:      "Context cache requests by purpose and outcome",
		}, []string{"purpose", "outcome"}),
	}
	if registry != nil {
		registry.MustRegister(m.requests)
	}
	return m
}

func (m *Metrics) observe(purpose, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(purpose, outcome).Inc()
}
