// Package metrics exposes the engine's prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	PoolHits   *prometheus.CounterVec
	PoolMisses *prometheus.CounterVec

	BreakerOpen     prometheus.Gauge
	BreakerOpenings prometheus.Counter

	DispatchDepth   prometheus.Gauge
	DispatchDropped prometheus.Counter

	Scheduled prometheus.Counter
	Cancelled prometheus.Counter
	Delivered prometheus.Counter
	Errors    prometheus.Counter
	Evicted   prometheus.Counter

	Flushes       prometheus.Counter
	FlushFailures prometheus.Counter
}

var (
	global     *Collector
	globalOnce sync.Once
)

// Default returns the process-wide collector, registering it on first use.
// Collectors can only be registered once per process, hence the cache.
func Default() *Collector {
	globalOnce.Do(func() {
		global = &Collector{
			PoolHits: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "localnotify_pool_hits_total",
				Help: "Object pool acquisitions served from the pool",
			}, []string{"pool"}),
			PoolMisses: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "localnotify_pool_misses_total",
				Help: "Object pool acquisitions that allocated fresh",
			}, []string{"pool"}),
			BreakerOpen: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "localnotify_breaker_open",
				Help: "1 while the circuit breaker is open",
			}),
			BreakerOpenings: promauto.NewCounter(prometheus.CounterOpts{
				Name: "localnotify_breaker_openings_total",
				Help: "Times the circuit breaker tripped open",
			}),
			DispatchDepth: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "localnotify_dispatch_queue_depth",
				Help: "Actions waiting in the dispatcher queue",
			}),
			DispatchDropped: promauto.NewCounter(prometheus.CounterOpts{
				Name: "localnotify_dispatch_dropped_total",
				Help: "Queued actions dropped under the drop-oldest policy",
			}),
			Scheduled: promauto.NewCounter(prometheus.CounterOpts{
				Name: "localnotify_scheduled_total",
				Help: "Notifications accepted by a platform backend",
			}),
			Cancelled: promauto.NewCounter(prometheus.CounterOpts{
				Name: "localnotify_cancelled_total",
				Help: "Notifications cancelled before delivery",
			}),
			Delivered: promauto.NewCounter(prometheus.CounterOpts{
				Name: "localnotify_delivered_total",
				Help: "Notifications fired by a backend",
			}),
			Errors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "localnotify_platform_errors_total",
				Help: "Failed platform backend calls",
			}),
			Evicted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "localnotify_index_evictions_total",
				Help: "Oldest-entry evictions from the schedule index",
			}),
			Flushes: promauto.NewCounter(prometheus.CounterOpts{
				Name: "localnotify_store_flushes_total",
				Help: "Snapshot flushes written to disk",
			}),
			FlushFailures: promauto.NewCounter(prometheus.CounterOpts{
				Name: "localnotify_store_flush_failures_total",
				Help: "Snapshot flushes that failed with an I/O error",
			}),
		}
	})
	return global
}
