package server

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/cwbudde/resistornet/internal/config"
	"github.com/cwbudde/resistornet/internal/network"
	"github.com/cwbudde/resistornet/internal/tabulate"
)

// Defaults applied to job requests that leave a field unset
const (
	defaultGroupSize   = 4
	defaultSeries      = "E12"
	defaultStrategy    = "uniform"
	defaultMaxRestarts = 1000
)

// maxJobSubsets bounds the lookup table a single job may build
const maxJobSubsets = 1_000_000

// validateJobConfig rejects jobs the server cannot run in bounded time and
// memory. Call it after applyJobDefaults.
func validateJobConfig(jc JobConfig) error {
	if _, err := jc.Problem(); err != nil {
		return err
	}
	if jc.Strategy != "uniform" && jc.Strategy != "mayfly" {
		return fmt.Errorf("unknown strategy: %s", jc.Strategy)
	}
	if jc.GroupSize > tabulate.GroupSizeLimit {
		return fmt.Errorf("groupSize must be at most %d, got %d", tabulate.GroupSizeLimit, jc.GroupSize)
	}
	if jc.Workers > config.MaxWorkers {
		return fmt.Errorf("workers must be at most %d, got %d", config.MaxWorkers, jc.Workers)
	}
	if n := tabulate.SubsetCount(jc.Values, jc.GroupSize); n > maxJobSubsets {
		return fmt.Errorf("values=%d with groupSize=%d needs %.0f table entries, limit is %d",
			jc.Values, jc.GroupSize, n, maxJobSubsets)
	}
	return nil
}

// applyJobDefaults fills unset fields. Jobs are always bounded: without a
// time limit the restart budget defaults to defaultMaxRestarts.
func applyJobDefaults(config *JobConfig) {
	if config.GroupSize <= 0 {
		config.GroupSize = defaultGroupSize
	}
	if config.Series == "" {
		config.Series = defaultSeries
	}
	if config.Strategy == "" {
		config.Strategy = defaultStrategy
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.MaxRestarts <= 0 && config.TimeLimit <= 0 {
		config.MaxRestarts = defaultMaxRestarts
	}
}

func jobElapsed(job Job) time.Duration {
	if job.EndTime != nil {
		return job.EndTime.Sub(job.StartTime)
	}
	return time.Since(job.StartTime)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>resistornet jobs</title></head>
<body>
<h1>Jobs</h1>
{{if .}}<table>
<tr><th>ID</th><th>State</th><th>Values</th><th>Target</th><th>Restarts</th><th>Best cost</th><th>Network</th></tr>
{{range .}}<tr>
<td><a href="/api/v1/jobs/{{.ID}}/status">{{.ID}}</a></td>
<td>{{.State}}</td>
<td>{{.Values}} ({{.Series}})</td>
<td>{{.Target}}</td>
<td>{{.Restarts}}</td>
<td>{{printf "%.3e" .BestCost}}</td>
<td><code>{{.Network}}</code></td>
</tr>{{end}}
</table>{{else}}<p>No jobs yet.</p>{{end}}
</body>
</html>
`))

type jobListItem struct {
	ID       string
	State    JobState
	Values   int
	Series   string
	Target   float64
	Restarts int
	BestCost float64
	Network  string
}

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	jobs := s.jobManager.ListJobs()
	items := make([]jobListItem, len(jobs))
	for i, job := range jobs {
		items[i] = jobListItem{
			ID:       job.ID,
			State:    job.State,
			Values:   job.Config.Values,
			Series:   job.Config.Series,
			Target:   job.Config.Target,
			Restarts: job.Restarts,
			BestCost: job.BestCost,
		}
		if job.Best != nil {
			items[i].Network = network.Expression(job.Best)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, items); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}
