// Package metrics exports the page events of a collection to Prometheus.
//
//	registry := prometheus.NewRegistry()
//	observer, err := metrics.New(registry, "articles")
//	...
//	pagevirt.NewBuilder[Article](100, nil, pagevirt.WithObserver(observer))
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/djdv/go-pagevirt"
	"github.com/prometheus/client_golang/prometheus"
)

// Observer is a [pagevirt.Observer] backed by Prometheus collectors.
// Constructed by [New].
type Observer struct {
	requests     *prometheus.CounterVec // By result (hit/miss).
	loads        *prometheus.CounterVec // By status (ok/error/canceled).
	loadDuration prometheus.Histogram
	evictions    prometheus.Counter
}

const (
	namespace = "pagevirt"
	subsystem = "pages"
)

var _ pagevirt.Observer = (*Observer)(nil)

// New creates an Observer and registers its collectors with registerer.
// collection is attached to every series as a constant label,
// so that several collections may share a registry.
func New(registerer prometheus.Registerer, collection string) (*Observer, error) {
	labels := prometheus.Labels{"collection": collection}
	o := &Observer{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "requests_total",
			Help:        "Total number of reads, by whether the page was loaded",
			ConstLabels: labels,
		}, []string{"result"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "loads_total",
			Help:        "Total number of settled page fetches, by outcome",
			ConstLabels: labels,
		}, []string{"status"}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "load_duration_seconds",
			Help:        "Page fetch duration in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.0005, 4, 8), // 0.5ms to ~8s
			ConstLabels: labels,
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "evicted_total",
			Help:        "Total number of pages removed from the cache",
			ConstLabels: labels,
		}),
	}
	for _, collector := range []prometheus.Collector{
		o.requests, o.loads, o.loadDuration, o.evictions,
	} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *Observer) PageRequested(_ int, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	o.requests.WithLabelValues(result).Inc()
}

func (o *Observer) PageLoaded(_ int, elapsed time.Duration, err error) {
	var status string
	switch {
	case err == nil:
		status = "ok"
	case errors.Is(err, context.Canceled):
		status = "canceled"
	default:
		status = "error"
	}
	o.loads.WithLabelValues(status).Inc()
	if err == nil {
		o.loadDuration.Observe(elapsed.Seconds())
	}
}

func (o *Observer) PagesEvicted(pageKeys []int) {
	o.evictions.Add(float64(len(pageKeys)))
}
