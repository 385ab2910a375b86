// Package metrics provides Prometheus instrumentation for the chat client.
// It exposes counters for inbound events and outbound actions, a gauge for
// connection status and roster size, and counters for reconnects and
// stale-generation drops.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connected is 1 while the transport reports an active connection.
	Connected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parley_connected",
		Help: "Whether the client currently holds an active connection",
	})

	// EventsTotal counts inbound server events, labeled by event name.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_events_total",
		Help: "Total number of inbound server events processed",
	}, []string{"event"})

	// ActionsTotal counts outbound actions, labeled by event name.
	ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_actions_total",
		Help: "Total number of outbound actions emitted",
	}, []string{"event"})

	// StaleDropsTotal counts events and timer completions discarded because
	// they belonged to a previous connection generation.
	StaleDropsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parley_stale_drops_total",
		Help: "Total number of stale-generation events discarded",
	})

	// ReconnectsTotal counts established connections beyond the first.
	ReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parley_reconnects_total",
		Help: "Total number of reconnections",
	})

	// RosterSize tracks the current number of users in the roster.
	RosterSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parley_roster_size",
		Help: "Current number of connected users in the roster",
	})
)

func init() {
	prometheus.MustRegister(
		Connected,
		EventsTotal,
		ActionsTotal,
		StaleDropsTotal,
		ReconnectsTotal,
		RosterSize,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
