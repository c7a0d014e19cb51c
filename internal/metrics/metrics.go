// Package metrics registers the process-wide prometheus collectors exposed
// on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RoomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laneduel_rooms_created_total",
		Help: "Rooms created since process start.",
	})
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "laneduel_rooms_active",
		Help: "Rooms currently held in the room store.",
	})
	MatchesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laneduel_matches_started_total",
		Help: "Matches started since process start.",
	})
	ActiveMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "laneduel_matches_active",
		Help: "Matches currently active.",
	})
	TurnsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laneduel_turns_resolved_total",
		Help: "Turns resolved across all matches.",
	})
	FallbackActions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laneduel_fallback_actions_total",
		Help: "Actions synthesized because a player missed the deadline.",
	})
	Forfeits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laneduel_forfeits_total",
		Help: "Matches ended by forfeit (leave or disconnect budget).",
	})
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "laneduel_clients_connected",
		Help: "Websocket clients currently connected.",
	})
)
