// Package metrics exports solver and job activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwbudde/resistornet/internal/solver"
)

// knownStrategies bounds the strategy label; anything else is "unknown"
var knownStrategies = map[string]bool{
	"uniform": true,
	"mayfly":  true,
}

func sanitizeStrategy(name string) string {
	if knownStrategies[name] {
		return name
	}
	return "unknown"
}

var (
	restartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resistornet",
			Subsystem: "solver",
			Name:      "restarts_total",
			Help:      "Total restarts by strategy",
		},
		[]string{"strategy"},
	)

	improvementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resistornet",
			Subsystem: "solver",
			Name:      "improvements_total",
			Help:      "Total best-network improvements by strategy",
		},
		[]string{"strategy"},
	)

	refinementMoves = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "resistornet",
			Subsystem: "solver",
			Name:      "refinement_moves",
			Help:      "Hill-climbing moves applied per restart",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
		},
		[]string{"strategy"},
	)

	restartCost = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "resistornet",
			Subsystem: "solver",
			Name:      "restart_cost",
			Help:      "Relative error of each restart's refined network",
			Buckets:   prometheus.ExponentialBuckets(1e-9, 10, 10),
		},
		[]string{"strategy"},
	)

	// JobsActive is the number of running jobs
	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "resistornet",
			Subsystem: "server",
			Name:      "jobs_active",
			Help:      "Number of jobs currently running",
		},
	)

	// JobsFinished counts jobs by terminal state
	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "resistornet",
			Subsystem: "server",
			Name:      "jobs_finished_total",
			Help:      "Total finished jobs by terminal state",
		},
		[]string{"state"},
	)
)

// Observer records solver notifications as metrics. It is safe to share
// between parallel workers.
type Observer struct {
	restarts     prometheus.Counter
	improvements prometheus.Counter
	moves        prometheus.Observer
	cost         prometheus.Observer
}

// NewObserver returns an Observer labelled with strategy
func NewObserver(strategy string) *Observer {
	label := sanitizeStrategy(strategy)
	return &Observer{
		restarts:     restartsTotal.WithLabelValues(label),
		improvements: improvementsTotal.WithLabelValues(label),
		moves:        refinementMoves.WithLabelValues(label),
		cost:         restartCost.WithLabelValues(label),
	}
}

func (o *Observer) OnRestart(s solver.RestartStats) {
	o.restarts.Inc()
	o.moves.Observe(float64(s.Moves))
	o.cost.Observe(s.Cost)
}

func (o *Observer) OnImprovement(solver.Progress) {
	o.improvements.Inc()
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
