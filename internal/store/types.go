package store

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cwbudde/resistornet/internal/network"
)

// JobConfig holds the configuration of a synthesis job (checkpoint copy).
// This avoids import cycles with the server package.
type JobConfig struct {
	Values             int     `json:"values"`
	GroupSize          int     `json:"groupSize"`
	Series             string  `json:"series"`
	Target             float64 `json:"target"`
	Seed               int64   `json:"seed"`
	Strategy           string  `json:"strategy,omitempty"`           // uniform, mayfly
	MaxRestarts        int     `json:"maxRestarts,omitempty"`        // 0 = until time limit
	TimeLimit          int     `json:"timeLimit,omitempty"`          // seconds, 0 = until max restarts
	Workers            int     `json:"workers,omitempty"`            // parallel seeds, 0 = 1
	Patience           int     `json:"patience,omitempty"`           // restarts without improvement, 0 = disabled
	Threshold          float64 `json:"threshold,omitempty"`          // relative improvement that resets patience
	CheckpointInterval int     `json:"checkpointInterval,omitempty"` // Checkpoint every N seconds (0 = disabled)
}

// Problem builds the network problem described by the config
func (c JobConfig) Problem() (*network.Problem, error) {
	series, err := network.ParseSeries(c.Series)
	if err != nil {
		return nil, err
	}
	return network.NewProblem(c.Values, series, c.Target)
}

// Checkpoint represents the best network of a job at one point in time.
//
// Only the best network is saved. Resuming seeds a new solver with it as
// the incumbent; the random source and restart counter start fresh, so a
// resumed run diverges from an uninterrupted one but never gets worse.
type Checkpoint struct {
	// JobID is the unique identifier for this job
	JobID string `json:"jobId"`

	// Best is the lowest-cost network found so far
	Best *network.Node `json:"best"`

	// BestCost is the cost of Best
	BestCost float64 `json:"bestCost"`

	// Restarts is the number of completed restarts
	Restarts int `json:"restarts"`

	// Timestamp records when this checkpoint was created
	Timestamp time.Time `json:"timestamp"`

	// Config holds the job configuration, needed for validation during resume
	Config JobConfig `json:"config"`
}

// CheckpointInfo contains metadata about a checkpoint without the network.
type CheckpointInfo struct {
	JobID      string    `json:"jobId"`
	BestCost   float64   `json:"bestCost"`
	Restarts   int       `json:"restarts"`
	Timestamp  time.Time `json:"timestamp"`
	Values     int       `json:"values"`
	Series     string    `json:"series"`
	Target     float64   `json:"target"`
	Expression string    `json:"expression"`
}

// NewCheckpoint creates a checkpoint from job state.
func NewCheckpoint(jobID string, best *network.Node, bestCost float64, restarts int, config JobConfig) *Checkpoint {
	return &Checkpoint{
		JobID:     jobID,
		Best:      best,
		BestCost:  bestCost,
		Restarts:  restarts,
		Timestamp: time.Now(),
		Config:    config,
	}
}

// ToInfo converts a full Checkpoint to CheckpointInfo (metadata only).
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		JobID:      c.JobID,
		BestCost:   c.BestCost,
		Restarts:   c.Restarts,
		Timestamp:  c.Timestamp,
		Values:     c.Config.Values,
		Series:     c.Config.Series,
		Target:     c.Config.Target,
		Expression: network.Expression(c.Best),
	}
}

// Validate checks if the checkpoint has valid data.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if c.Best == nil {
		return &ValidationError{Field: "Best", Reason: "cannot be nil"}
	}
	if c.BestCost < 0 || math.IsNaN(c.BestCost) {
		return &ValidationError{Field: "BestCost", Reason: "must be a non-negative number"}
	}
	if c.Restarts < 0 {
		return &ValidationError{Field: "Restarts", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if c.Config.Values <= 0 {
		return &ValidationError{Field: "Config.Values", Reason: "must be positive"}
	}
	if c.Config.GroupSize <= 0 {
		return &ValidationError{Field: "Config.GroupSize", Reason: "must be positive"}
	}
	if _, err := network.ParseSeries(c.Config.Series); err != nil {
		return &ValidationError{Field: "Config.Series", Reason: err.Error()}
	}
	if c.Config.Target <= 0 || math.IsInf(c.Config.Target, 0) || math.IsNaN(c.Config.Target) {
		return &ValidationError{Field: "Config.Target", Reason: "must be a positive finite resistance"}
	}
	if err := network.CheckCoverage(c.Best, c.Config.Values); err != nil {
		return &ValidationError{
			Field:  "Best",
			Reason: fmt.Sprintf("does not use each of the %d values once: %v", c.Config.Values, err),
		}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks if this checkpoint can seed a run with the given config.
// The problem must be identical; search settings may differ.
func (c *Checkpoint) IsCompatible(config JobConfig) error {
	if c.Config.Values != config.Values {
		return &CompatibilityError{
			Field:    "Values",
			Expected: strconv.Itoa(c.Config.Values),
			Actual:   strconv.Itoa(config.Values),
		}
	}
	if !strings.EqualFold(c.Config.Series, config.Series) {
		return &CompatibilityError{
			Field:    "Series",
			Expected: c.Config.Series,
			Actual:   config.Series,
		}
	}
	if c.Config.Target != config.Target {
		return &CompatibilityError{
			Field:    "Target",
			Expected: strconv.FormatFloat(c.Config.Target, 'g', -1, 64),
			Actual:   strconv.FormatFloat(config.Target, 'g', -1, 64),
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
