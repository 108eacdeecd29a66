package docstore

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/docmesh/errors"
	"github.com/c360/docmesh/metric"
)

// RegisterMetrics exposes stats through the registry as func-backed
// collectors, so nothing on the lookup path touches prometheus.
func RegisterMetrics(registrar metric.MetricsRegistrar, stats *Statistics) error {
	collectors := map[string]prometheus.Collector{
		"hits": prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "docmesh",
			Subsystem: "store",
			Name:      "hits_total",
			Help:      "Document lookups served from the store",
		}, func() float64 { return float64(stats.Hits()) }),
		"misses": prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "docmesh",
			Subsystem: "store",
			Name:      "misses_total",
			Help:      "Document lookups that found nothing",
		}, func() float64 { return float64(stats.Misses()) }),
		"sets": prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "docmesh",
			Subsystem: "store",
			Name:      "sets_total",
			Help:      "Documents written to the store",
		}, func() float64 { return float64(stats.Sets()) }),
		"persist_failures": prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "docmesh",
			Subsystem: "store",
			Name:      "persist_failures_total",
			Help:      "Documents served from memory whose bucket write failed",
		}, func() float64 { return float64(stats.PersistFailures()) }),
		"size": prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "docmesh",
			Subsystem: "store",
			Name:      "documents",
			Help:      "Documents currently held",
		}, func() float64 { return float64(stats.Size()) }),
	}

	for name, c := range collectors {
		if err := registrar.RegisterCollector("docstore", name, c); err != nil {
			return errors.Wrap(err, "docstore", "RegisterMetrics", "register "+name)
		}
	}
	return nil
}
