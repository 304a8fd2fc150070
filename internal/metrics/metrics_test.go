package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cwbudde/resistornet/internal/solver"
)

func TestObserverCountsRestartsAndImprovements(t *testing.T) {
	restartsBefore := testutil.ToFloat64(restartsTotal.WithLabelValues("mayfly"))
	improvementsBefore := testutil.ToFloat64(improvementsTotal.WithLabelValues("mayfly"))

	obs := NewObserver("mayfly")
	for i := 0; i < 4; i++ {
		obs.OnRestart(solver.RestartStats{Restart: i, Cost: 0.01, Moves: 2})
	}
	obs.OnImprovement(solver.Progress{Restart: 0, Cost: 0.01})

	if got := testutil.ToFloat64(restartsTotal.WithLabelValues("mayfly")) - restartsBefore; got != 4 {
		t.Errorf("Expected 4 restarts, got %v", got)
	}
	if got := testutil.ToFloat64(improvementsTotal.WithLabelValues("mayfly")) - improvementsBefore; got != 1 {
		t.Errorf("Expected 1 improvement, got %v", got)
	}
}

func TestSanitizeStrategy(t *testing.T) {
	tests := map[string]string{
		"uniform": "uniform",
		"mayfly":  "mayfly",
		"":        "unknown",
		"genetic": "unknown",
	}
	for in, want := range tests {
		if got := sanitizeStrategy(in); got != want {
			t.Errorf("sanitizeStrategy(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHandlerExposesSolverMetrics(t *testing.T) {
	NewObserver("uniform").OnRestart(solver.RestartStats{Cost: 0.5, Moves: 1})

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "resistornet_solver_restarts_total") {
		t.Error("Expected restarts counter in exposition")
	}
}
