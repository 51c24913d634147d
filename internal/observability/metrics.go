package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "refgate",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Total protocol requests.",
		},
		[]string{"op", "outcome"},
	)
	connections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "refgate",
			Subsystem: "gateway",
			Name:      "connections_total",
			Help:      "Total accepted client connections.",
		},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "refgate",
			Subsystem: "gateway",
			Name:      "active_sessions",
			Help:      "Client sessions currently held by the gateway.",
		},
	)
	registrySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "refgate",
			Subsystem: "registry",
			Name:      "objects",
			Help:      "Live object references across all sessions.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(requests, connections, activeSessions, registrySize)
	})
}

func RecordRequest(op string, err error) {
	RegisterMetrics()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	requests.WithLabelValues(op, outcome).Inc()
}

func RecordConnection() {
	RegisterMetrics()
	connections.Inc()
}

func SessionOpened() {
	RegisterMetrics()
	activeSessions.Inc()
}

func SessionClosed() {
	RegisterMetrics()
	activeSessions.Dec()
}

func SetRegistrySize(n int) {
	RegisterMetrics()
	registrySize.Set(float64(n))
}
