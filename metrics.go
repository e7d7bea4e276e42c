package docodb

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// backendMetrics holds Prometheus metrics for Backend operations. A nil
// *backendMetrics records nothing.
type backendMetrics struct {
	operations    *prometheus.CounterVec   // by op and status
	remoteLatency *prometheus.HistogramVec // by document store call
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
}

func newBackendMetrics(reg prometheus.Registerer) (*backendMetrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &backendMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docodb",
			Subsystem: "backend",
			Name:      "operations_total",
			Help:      "Total number of backend operations by outcome",
		}, []string{"op", "status"}),

		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docodb",
			Subsystem: "docstore",
			Name:      "request_duration_seconds",
			Help:      "Document store round-trip duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call"}),

		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docodb",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of object cache hits",
		}),

		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docodb",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of object cache misses",
		}),
	}

	var err error
	if m.operations, err = register(reg, m.operations); err != nil {
		return nil, err
	}
	if m.remoteLatency, err = register(reg, m.remoteLatency); err != nil {
		return nil, err
	}
	if m.cacheHits, err = register(reg, m.cacheHits); err != nil {
		return nil, err
	}
	if m.cacheMisses, err = register(reg, m.cacheMisses); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c, reusing an identical collector registered by another
// Backend on the same registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *backendMetrics) observe(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, StatusOf(err).String()).Inc()
}

func (m *backendMetrics) since(call string, start time.Time) {
	if m == nil {
		return
	}
	m.remoteLatency.WithLabelValues(call).Observe(time.Since(start).Seconds())
}

func (m *backendMetrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}
