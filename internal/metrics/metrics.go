// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

type Registry struct {
	SunsetFetches    *prometheus.CounterVec
	ReferenceUnix    prometheus.Gauge
	Ticks            prometheus.Counter
	TickersStarted   prometheus.Counter
	PublishErrors    *prometheus.CounterVec
	WebsocketClients prometheus.Gauge
	LocationEvents   *prometheus.CounterVec
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.SunsetFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solarclock_sunset_fetch_attempts_total",
		Help: "Sunset provider attempts by provider and result",
	}, []string{"provider", "result"})

	r.ReferenceUnix = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solarclock_reference_sunset_unix_seconds",
		Help: "Unix time of the current reference sunset",
	})

	r.Ticks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solarclock_ticks_total",
		Help: "Display ticks computed",
	})

	r.TickersStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solarclock_tickers_started_total",
		Help: "Times the one-second ticker was (re)started",
	})

	r.PublishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solarclock_publish_errors_total",
		Help: "Frame publish failures by sink",
	}, []string{"sink"})

	r.WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solarclock_websocket_clients",
		Help: "Connected websocket clients",
	})

	r.LocationEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solarclock_location_events_total",
		Help: "Location resolutions by outcome",
	}, []string{"outcome"})

	return r
}
