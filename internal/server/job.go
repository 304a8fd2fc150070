package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/resistornet/internal/network"
	"github.com/cwbudde/resistornet/internal/store"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether a job in state s will not change any more
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// errJobCancelled is the cancel cause of jobs stopped through the API
var errJobCancelled = errors.New("job cancelled")

// JobConfig is an alias to avoid duplication with store.JobConfig
type JobConfig = store.JobConfig

// Job is a synthesis job. Values handed out by JobManager are copies.
type Job struct {
	ID           string        `json:"id"`
	State        JobState      `json:"state"`
	Config       JobConfig     `json:"config"`
	Best         *network.Node `json:"best,omitempty"`
	BestCost     float64       `json:"bestCost"`
	Restarts     int           `json:"restarts"`
	Improvements int           `json:"improvements"`
	LowerBound   float64       `json:"lowerBound"`
	Converged    bool          `json:"converged,omitempty"`
	ResumedFrom  string        `json:"resumedFrom,omitempty"`
	StartTime    time.Time     `json:"startTime"`
	EndTime      *time.Time    `json:"endTime,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	cancels     map[string]context.CancelCauseFunc
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		cancels:     make(map[string]context.CancelCauseFunc),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob creates a new pending job with the given configuration
func (jm *JobManager) CreateJob(config JobConfig) Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}

	jm.jobs[job.ID] = job
	return *job
}

// GetJob returns a snapshot of the job
func (jm *JobManager) GetJob(id string) (Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return Job{}, false
	}
	return *job, true
}

// ListJobs returns snapshots of all jobs, oldest first
func (jm *JobManager) ListJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartTime.Before(jobs[j].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	running := make([]Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			running = append(running, *job)
		}
	}
	return running
}

// attach registers the cancel function of a started job
func (jm *JobManager) attach(id string, cancel context.CancelCauseFunc) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.cancels[id] = cancel
}

// detach forgets the cancel function of a finished job
func (jm *JobManager) detach(id string) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	delete(jm.cancels, id)
}

// CancelJob stops a running job. It reports false if the job is unknown or
// already finished.
func (jm *JobManager) CancelJob(id string) bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	cancel, ok := jm.cancels[id]
	if !ok {
		return false
	}
	cancel(errJobCancelled)
	return true
}

// CancelAll stops every running job, used on shutdown
func (jm *JobManager) CancelAll() {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	for _, cancel := range jm.cancels {
		cancel(errJobCancelled)
	}
}
