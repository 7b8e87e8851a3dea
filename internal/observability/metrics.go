package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the game counters exported at /metrics.
type Metrics struct {
	RacesStarted     prometheus.Counter
	PointsWagered    prometheus.Counter
	ItemsApplied     *prometheus.CounterVec
	Settlements      *prometheus.CounterVec
	SettleReplays    prometheus.Counter
	MinigameRounds   *prometheus.CounterVec
	RejectedRequests *prometheus.CounterVec
}

// NewMetrics creates the game counters and registers them with reg.
//
// Precondition: reg must be non-nil and must not already hold these metrics.
// Postcondition: every counter is registered and starts at zero.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RacesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "derby",
			Name:      "races_started_total",
			Help:      "Races created with a deducted wager.",
		}),
		PointsWagered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "derby",
			Name:      "points_wagered_total",
			Help:      "Points staked on races.",
		}),
		ItemsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "derby",
			Name:      "items_applied_total",
			Help:      "Items purchased during races.",
		}, []string{"item"}),
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "derby",
			Name:      "settlements_total",
			Help:      "Races settled, by outcome.",
		}, []string{"outcome"}),
		SettleReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "derby",
			Name:      "settlement_replays_total",
			Help:      "Settle calls answered from an already-settled race.",
		}),
		MinigameRounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "derby",
			Name:      "minigame_rounds_total",
			Help:      "Minigame rounds played, by game and outcome.",
		}, []string{"game", "outcome"}),
		RejectedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "derby",
			Name:      "rejected_requests_total",
			Help:      "Operations rejected, by error kind.",
		}, []string{"op", "kind"}),
	}
	reg.MustRegister(
		m.RacesStarted,
		m.PointsWagered,
		m.ItemsApplied,
		m.Settlements,
		m.SettleReplays,
		m.MinigameRounds,
		m.RejectedRequests,
	)
	return m
}
