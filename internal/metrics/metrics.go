// Package metrics exposes Prometheus collectors for HandlerSocket client
// operations and cache lookups.
package metrics

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/gohs/pkg/hs"
	"github.com/dmitrijs2005/gohs/pkg/hscache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors. Build one per process and hand out
// per-group observers.
type Metrics struct {
	// IndexOpens counts index opens that reached the backend.
	IndexOpens *prometheus.CounterVec
	// OperationsTotal counts operations by outcome.
	OperationsTotal *prometheus.CounterVec
	// OperationDuration is the round trip latency of operations.
	OperationDuration *prometheus.HistogramVec
	// CacheLookups counts cache reads by result (hit, miss, expired).
	CacheLookups *prometheus.CounterVec
	// CacheCollected counts entries removed by garbage collection.
	CacheCollected *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IndexOpens: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gohs_index_opens_total",
				Help: "Total number of index opens sent to the backend",
			},
			[]string{"group", "class"},
		),
		OperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gohs_operations_total",
				Help: "Total number of HandlerSocket operations",
			},
			[]string{"group", "operation", "class", "status"},
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gohs_operation_duration_seconds",
				Help:    "HandlerSocket operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"group", "operation"},
		),
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gohs_cache_lookups_total",
				Help: "Total number of cache reads",
			},
			[]string{"group", "result"},
		),
		CacheCollected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gohs_cache_collected_total",
				Help: "Total number of expired entries removed by garbage collection",
			},
			[]string{"group"},
		),
	}
}

// Status classifies an operation error for the status label.
func Status(err error) string {
	var pe *hs.ProtocolError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &pe) && pe.IsTransport():
		return "transport"
	case errors.As(err, &pe):
		return "rejected"
	default:
		return "error"
	}
}

// Observer reports the events of one config group.
type Observer struct {
	m     *Metrics
	group string
}

var (
	_ hs.Observer      = Observer{}
	_ hscache.Observer = Observer{}
)

// For returns the observer of group.
func (m *Metrics) For(group string) Observer {
	return Observer{m: m, group: group}
}

func (o Observer) IndexOpened(class hs.ModeClass) {
	o.m.IndexOpens.WithLabelValues(o.group, class.String()).Inc()
}

func (o Observer) OperationDone(op string, class hs.ModeClass, d time.Duration, err error) {
	o.m.OperationsTotal.WithLabelValues(o.group, op, class.String(), Status(err)).Inc()
	o.m.OperationDuration.WithLabelValues(o.group, op).Observe(d.Seconds())
}

func (o Observer) CacheLookup(result string) {
	o.m.CacheLookups.WithLabelValues(o.group, result).Inc()
}

func (o Observer) CacheCollected(n int) {
	if n > 0 {
		o.m.CacheCollected.WithLabelValues(o.group).Add(float64(n))
	}
}
