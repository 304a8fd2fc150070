package solver

import (
	"bytes"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/cwbudde/resistornet/internal/network"
	"github.com/cwbudde/resistornet/internal/store"
)

// RestartStats describes one finished restart
type RestartStats struct {
	Restart  int
	Cost     float64
	BestCost float64
	Moves    int
	Groups   int
}

// Progress is emitted whenever a restart beats the best network.
// Best is owned by the solver and must be treated as read-only.
type Progress struct {
	Restart int
	Cost    float64
	Elapsed time.Duration
	Best    *network.Node
	Problem *network.Problem
	Bound   float64
}

// Observer receives notifications from the restart loop. Implementations
// run on the solver's goroutine and must return quickly.
type Observer interface {
	OnRestart(RestartStats)
	OnImprovement(Progress)
}

// NopObserver ignores all notifications
type NopObserver struct{}

// OnRestart does nothing
func (NopObserver) OnRestart(RestartStats) {}

// OnImprovement does nothing
func (NopObserver) OnImprovement(Progress) {}

// Observers fans notifications out in order
type Observers []Observer

// OnRestart forwards s to every observer
func (o Observers) OnRestart(s RestartStats) {
	for _, obs := range o {
		obs.OnRestart(s)
	}
}

// OnImprovement forwards p to every observer
func (o Observers) OnImprovement(p Progress) {
	for _, obs := range o {
		obs.OnImprovement(p)
	}
}

// LogObserver logs every improvement with the network summary
type LogObserver struct {
	Logger *slog.Logger
}

func (l LogObserver) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// OnRestart logs at debug level
func (l LogObserver) OnRestart(s RestartStats) {
	l.logger().Debug("Restart finished",
		"restart", s.Restart,
		"cost", s.Cost,
		"best_cost", s.BestCost,
		"moves", s.Moves,
		"groups", s.Groups,
	)
}

// OnImprovement logs the new best network
func (l LogObserver) OnImprovement(p Progress) {
	var buf bytes.Buffer
	_ = network.Format(&buf, p.Problem, p.Best, "  ")

	l.logger().Info("Found after "+formatSeconds(p.Elapsed)+" seconds",
		"restart", p.Restart,
		"cost", p.Cost,
		"lower_bound", p.Bound,
		"network", network.Expression(p.Best),
	)
	l.logger().Debug("Best network", "summary", buf.String())
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// Throttle forwards restart stats to Next at most at the limiter's rate.
// Improvements are never dropped.
type Throttle struct {
	Next    Observer
	limiter *rate.Limiter
}

// NewThrottle limits restart notifications to perSecond with the given burst
func NewThrottle(next Observer, perSecond float64, burst int) *Throttle {
	if burst < 1 {
		burst = 1
	}
	return &Throttle{Next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// OnRestart forwards s when the limiter has a token, otherwise drops it
func (t *Throttle) OnRestart(s RestartStats) {
	if t.limiter.Allow() {
		t.Next.OnRestart(s)
	}
}

// OnImprovement always forwards p
func (t *Throttle) OnImprovement(p Progress) {
	t.Next.OnImprovement(p)
}

// TraceObserver appends one trace line per restart
type TraceObserver struct {
	Writer *store.TraceWriter
}

// OnRestart writes the restart's trace entry
func (t TraceObserver) OnRestart(s RestartStats) {
	err := t.Writer.Write(store.TraceEntry{
		Restart:   s.Restart,
		Cost:      s.Cost,
		BestCost:  s.BestCost,
		Moves:     s.Moves,
		Timestamp: time.Now(),
	})
	if err != nil {
		slog.Warn("Failed to write trace entry", "error", err)
	}
}

// OnImprovement writes an improved entry carrying the new best network
func (t TraceObserver) OnImprovement(p Progress) {
	err := t.Writer.Write(store.TraceEntry{
		Restart:   p.Restart,
		Cost:      p.Cost,
		BestCost:  p.Cost,
		Improved:  true,
		Network:   network.Expression(p.Best),
		Timestamp: time.Now(),
	})
	if err != nil {
		slog.Warn("Failed to write trace entry", "error", err)
	}
}
