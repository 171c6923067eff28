package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tallybook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	writes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Writes by where they were persisted.",
		},
		[]string{"persisted"},
	)

	drainEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_entries_total",
			Help:      "Queue entries processed by drain passes, by outcome.",
		},
		[]string{"outcome"},
	)

	drainPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_passes_total",
			Help:      "Drain passes by trigger reason.",
		},
		[]string{"reason"},
	)

	unsynced = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_unsynced",
		Help:      "Queue entries not yet confirmed by the remote.",
	})

	online = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connectivity_online",
		Help:      "1 when the remote is considered reachable.",
	})
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, writes, drainEntries, drainPasses, unsynced, online)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncWrite counts a write persisted remotely or locally.
func IncWrite(persisted string) {
	writes.WithLabelValues(persisted).Inc()
}

// ObserveDrain records the outcome counts of a finished pass.
func ObserveDrain(synced, failed int) {
	if synced > 0 {
		drainEntries.WithLabelValues("synced").Add(float64(synced))
	}
	if failed > 0 {
		drainEntries.WithLabelValues("failed").Add(float64(failed))
	}
}

// IncDrainPass counts a pass started for reason.
func IncDrainPass(reason string) {
	drainPasses.WithLabelValues(reason).Inc()
}

// SetUnsynced publishes the current queue depth.
func SetUnsynced(n int) {
	unsynced.Set(float64(n))
}

// SetOnline publishes the connectivity state.
func SetOnline(isOnline bool) {
	if isOnline {
		online.Set(1)
		return
	}
	online.Set(0)
}
