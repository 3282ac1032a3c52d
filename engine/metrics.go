package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	incrementsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "gamifyd_increments_total", Help: "Total metric increments committed"},
	)
	incrementConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "gamifyd_increment_conflicts_total", Help: "Total transaction conflicts retried during increments"},
	)
	incrementsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "gamifyd_increments_failed_total", Help: "Total metric increments that failed after retries"},
	)
	badgesAwarded = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "gamifyd_badges_awarded_total", Help: "Total badges awarded"},
	)
	levelUps = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "gamifyd_level_ups_total", Help: "Total user level-ups"},
	)
	rewardsClaimed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "gamifyd_rewards_claimed_total", Help: "Total rewards claimed"},
	)
)

// RegisterMetrics registers the engine counters on the given registry.
// Pass prometheus.DefaultRegisterer for the usual /metrics endpoint.
func RegisterMetrics(r prometheus.Registerer) {
	r.MustRegister(incrementsProcessed, incrementConflicts, incrementsFailed, badgesAwarded, levelUps, rewardsClaimed)
}
