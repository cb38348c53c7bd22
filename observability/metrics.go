// Package observability exposes routing counters as Prometheus collectors.
package observability

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "courier"

// RouterStats is a point-in-time view of the counters, for logs and the CLI.
type RouterStats struct {
	Routed          uint64 `json:"routed"`
	Delivered       uint64 `json:"delivered"`
	DeliveryDropped uint64 `json:"delivery_dropped"`
	Failures        uint64 `json:"failures"`
	Sessions        int64  `json:"sessions"`
}

// RouterMetrics keeps both Prometheus collectors and plain atomic counters.
type RouterMetrics struct {
	routedTotal       *prometheus.CounterVec
	deliveriesTotal   *prometheus.CounterVec
	failuresTotal     *prometheus.CounterVec
	processorDuration *prometheus.HistogramVec
	activeSessions    prometheus.Gauge

	routed          atomic.Uint64
	delivered       atomic.Uint64
	deliveryDropped atomic.Uint64
	failures        atomic.Uint64
	sessions        atomic.Int64

	registerer  prometheus.Registerer
	once        sync.Once
	registerErr error
}

// NewRouterMetrics builds the collectors; a nil registerer means the default one.
func NewRouterMetrics(registerer prometheus.Registerer) *RouterMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &RouterMetrics{
		routedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "messages_routed_total",
			Help:      "Messages accepted by the router, per routing pattern.",
		}, []string{"pattern"}),
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "live_deliveries_total",
			Help:      "Push attempts to connected sessions, per result.",
		}, []string{"result"}),
		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "failures_total",
			Help:      "Routing failures reported to senders, per reason.",
		}, []string{"reason"}),
		processorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "duration_seconds",
			Help:      "Time spent in service processors.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "active_sessions",
			Help:      "Identities currently bound to a live session.",
		}),
		registerer: registerer,
	}
}

// Register registers the collectors once. Already registered collectors are not an error.
func (m *RouterMetrics) Register() error {
	m.once.Do(func() {
		for _, c := range []prometheus.Collector{
			m.routedTotal, m.deliveriesTotal, m.failuresTotal, m.processorDuration, m.activeSessions,
		} {
			if err := m.registerer.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					m.registerErr = err
					return
				}
			}
		}
	})
	return m.registerErr
}

func (m *RouterMetrics) Routed(pattern string) {
	m.routed.Add(1)
	m.routedTotal.WithLabelValues(pattern).Inc()
}

func (m *RouterMetrics) Delivered() {
	m.delivered.Add(1)
	m.deliveriesTotal.WithLabelValues("delivered").Inc()
}

// DeliveryDropped counts a push that failed; the message stays durable.
func (m *RouterMetrics) DeliveryDropped() {
	m.deliveryDropped.Add(1)
	m.deliveriesTotal.WithLabelValues("dropped").Inc()
}

func (m *RouterMetrics) Failed(reason string) {
	m.failures.Add(1)
	m.failuresTotal.WithLabelValues(reason).Inc()
}

func (m *RouterMetrics) ObserveProcessor(service string, elapsed time.Duration) {
	m.processorDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}

func (m *RouterMetrics) SessionOpened() {
	m.sessions.Add(1)
	m.activeSessions.Inc()
}

func (m *RouterMetrics) SessionClosed() {
	m.sessions.Add(-1)
	m.activeSessions.Dec()
}

func (m *RouterMetrics) Snapshot() RouterStats {
	return RouterStats{
		Routed:          m.routed.Load(),
		Delivered:       m.delivered.Load(),
		DeliveryDropped: m.deliveryDropped.Load(),
		Failures:        m.failures.Load(),
		Sessions:        m.sessions.Load(),
	}
}
