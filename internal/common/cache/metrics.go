package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Tier labels used on every metric.
const (
	tierFast    = "fast"
	tierDurable = "durable"
)

// Metrics holds Prometheus counters for read-through lookups. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	durableErrors *prometheus.CounterVec
	producerCalls *prometheus.CounterVec
}

// NewMetrics creates the cache counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if namespace == "" {
		namespace = "places"
	}

	m := &Metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Lookups answered by a cache tier",
		}, []string{"tier"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Lookups that fell through a cache tier",
		}, []string{"tier"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "rejected_total",
			Help:      "Entries present in a tier but not served",
		}, []string{"tier", "reason"}),
		durableErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "durable_errors_total",
			Help:      "Durable tier read or write failures",
		}, []string{"op"}),
		producerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "producer_calls_total",
			Help:      "Producer invocations by outcome",
		}, []string{"result"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.hits, m.misses, m.rejected, m.durableErrors, m.producerCalls} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func (m *Metrics) hit(tier string) {
	if m != nil {
		m.hits.WithLabelValues(tier).Inc()
	}
}

func (m *Metrics) miss(tier string) {
	if m != nil {
		m.misses.WithLabelValues(tier).Inc()
	}
}

func (m *Metrics) reject(tier, reason string) {
	if m != nil {
		m.rejected.WithLabelValues(tier, reason).Inc()
	}
}

func (m *Metrics) durableError(op string) {
	if m != nil {
		m.durableErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) producerCall(result string) {
	if m != nil {
		m.producerCalls.WithLabelValues(result).Inc()
	}
}
