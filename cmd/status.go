package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	if len(args) == 0 {
		body, err := fetch(fmt.Sprintf("%s/api/v1/jobs", serverURL), "")
		if err != nil {
			return err
		}
		return printJobs(w, body)
	}

	jobID := args[0]
	body, err := fetch(fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
	if err != nil {
		return err
	}
	return printJobStatus(w, body)
}

func fetch(url, jobID string) ([]byte, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound && jobID != "" {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned error: %s", string(body))
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("server returned invalid JSON")
	}
	return body, nil
}

func printJobs(w io.Writer, body []byte) error {
	jobs := gjson.ParseBytes(body).Array()
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return nil
	}

	fmt.Fprintf(w, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(w, "Job ID: %s\n", job.Get("id").String())
		fmt.Fprintf(w, "  State: %s\n", job.Get("state").String())
		fmt.Fprintf(w, "  Problem: %d x %s, target %g ohm\n",
			job.Get("config.values").Int(),
			job.Get("config.series").String(),
			job.Get("config.target").Float(),
		)
		fmt.Fprintf(w, "  Restarts: %d\n", job.Get("restarts").Int())
		if job.Get("best").Exists() {
			fmt.Fprintf(w, "  Best Cost: %.3e\n", job.Get("bestCost").Float())
		}
		fmt.Fprintln(w)
	}
	return nil
}

func printJobStatus(w io.Writer, body []byte) error {
	status := gjson.ParseBytes(body)

	fmt.Fprintf(w, "Job: %s\n", status.Get("id").String())
	fmt.Fprintf(w, "State: %s\n", status.Get("state").String())
	if from := status.Get("resumedFrom"); from.Exists() {
		fmt.Fprintf(w, "Resumed from: %s\n", from.String())
	}
	fmt.Fprintln(w)

	config := status.Get("config")
	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  Values: %d (%s)\n", config.Get("values").Int(), config.Get("series").String())
	fmt.Fprintf(w, "  Target: %g ohm\n", config.Get("target").Float())
	fmt.Fprintf(w, "  Group size: %d\n", config.Get("groupSize").Int())
	fmt.Fprintf(w, "  Strategy: %s\n", config.Get("strategy").String())
	if n := config.Get("maxRestarts").Int(); n > 0 {
		fmt.Fprintf(w, "  Max restarts: %d\n", n)
	}
	if n := config.Get("timeLimit").Int(); n > 0 {
		fmt.Fprintf(w, "  Time limit: %ds\n", n)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Progress:")
	fmt.Fprintf(w, "  Restarts: %d\n", status.Get("restarts").Int())
	fmt.Fprintf(w, "  Improvements: %d\n", status.Get("improvements").Int())
	if net := status.Get("network"); net.Exists() {
		fmt.Fprintf(w, "  Best Cost: %.3e\n", status.Get("bestCost").Float())
		fmt.Fprintf(w, "  Network: %s\n", net.String())
	}
	if lb := status.Get("lowerBound").Float(); lb > 0 {
		fmt.Fprintf(w, "  Lower Bound: %.3e\n", lb)
	}
	if status.Get("converged").Bool() {
		fmt.Fprintln(w, "  Converged: yes")
	}

	elapsed := time.Duration(status.Get("elapsed").Float() * float64(time.Second))
	fmt.Fprintf(w, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if rps := status.Get("restartsPerSecond").Float(); rps > 0 {
		fmt.Fprintf(w, "  Throughput: %.0f restarts/sec\n", rps)
	}

	if msg := status.Get("error").String(); msg != "" {
		fmt.Fprintf(w, "\nError: %s\n", msg)
	}
	return nil
}
