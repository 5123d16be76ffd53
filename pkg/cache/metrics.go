package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	tierLocal = "local"
	tierStore = "store"
	tierMiss  = "miss"
)

// Metrics counts resolver lookups by tier. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	lookups        *prometheus.CounterVec
	generateErrors *prometheus.CounterVec
}

// NewMetrics creates resolver metrics and registers them with reg.
// A nil reg leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "go_identity",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Resolver lookups partitioned by the tier that answered them.",
		}, []string{"key", "tier"}),
		generateErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "go_identity",
			Subsystem: "cache",
			Name:      "generate_errors_total",
			Help:      "Cache misses whose generator returned an error.",
		}, []string{"key"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.lookups, m.generateErrors} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observe(key, tier string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(key, tier).Inc()
}

func (m *Metrics) generateFailed(key string) {
	if m == nil {
		return
	}
	m.generateErrors.WithLabelValues(key).Inc()
}
