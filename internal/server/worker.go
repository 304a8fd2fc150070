package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/resistornet/internal/metrics"
	"github.com/cwbudde/resistornet/internal/network"
	"github.com/cwbudde/resistornet/internal/pipeline"
	"github.com/cwbudde/resistornet/internal/solver"
	"github.com/cwbudde/resistornet/internal/store"
)

// WorkerOptions configures how jobs run
type WorkerOptions struct {
	// Store receives periodic and final checkpoints; nil disables them
	Store store.Store

	// TraceDir enables per-job restart traces under TraceDir/jobs/<id>/
	TraceDir string

	MayflyIterations int
	MayflyPopulation int
	Bound            string
}

// jobObserver mirrors solver progress into the job record
type jobObserver struct {
	jm    *JobManager
	jobID string
}

func (o jobObserver) OnRestart(s solver.RestartStats) {
	o.jm.UpdateJob(o.jobID, func(j *Job) {
		j.Restarts++
	})
}

func (o jobObserver) OnImprovement(p solver.Progress) {
	o.jm.UpdateJob(o.jobID, func(j *Job) {
		// parallel workers report their own bests
		if j.Best == nil || p.Cost < j.BestCost {
			j.Best = p.Best
			j.BestCost = p.Cost
		}
		j.Improvements++
		j.LowerBound = p.Bound
	})
}

// runJob executes a job in the background.
// If opts.Store is set and the job has checkpointInterval > 0, periodic
// checkpoints are saved; a final checkpoint is saved whenever a store is set.
func runJob(ctx context.Context, jm *JobManager, opts WorkerOptions, jobID string, incumbent *network.Node) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}
	metrics.JobsActive.Inc()
	defer metrics.JobsActive.Dec()

	slog.Info("Starting job", "job_id", jobID, "values", job.Config.Values, "target", job.Config.Target)

	observers := solver.Observers{
		jobObserver{jm: jm, jobID: jobID},
		metrics.NewObserver(job.Config.Strategy),
	}
	if opts.TraceDir != "" {
		tw, err := store.NewTraceWriter(opts.TraceDir, jobID, incumbent != nil)
		if err != nil {
			markJobFailed(jm, jobID, err)
			return err
		}
		defer tw.Close()
		observers = append(observers, solver.TraceObserver{Writer: tw})
	}

	start := time.Now()
	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, start, progressDone)

	checkpointDone := make(chan struct{})
	if opts.Store != nil && job.Config.CheckpointInterval > 0 {
		go monitorCheckpoints(ctx, jm, opts.Store, jobID, checkpointDone)
	} else {
		close(checkpointDone)
	}

	out, err := pipeline.Run(ctx, job.Config, pipeline.Options{
		Incumbent:        incumbent,
		Observer:         observers,
		MayflyIterations: opts.MayflyIterations,
		MayflyPopulation: opts.MayflyPopulation,
		Bound:            opts.Bound,
	})

	close(progressDone)
	if opts.Store != nil && job.Config.CheckpointInterval > 0 {
		close(checkpointDone)
	}

	cancelled := errors.Is(context.Cause(ctx), errJobCancelled)
	if err != nil {
		if cancelled {
			// stopped before a first result, typically during tabulation
			markJobCancelled(jm, jobID)
			return ctx.Err()
		}
		markJobFailed(jm, jobID, err)
		return err
	}

	res := out.Result
	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		if cancelled {
			j.State = StateCancelled
		}
		j.Best = res.Best
		j.BestCost = res.BestCost
		j.Restarts = job.Restarts + res.Restarts
		j.LowerBound = res.Bound
		j.Converged = res.Converged
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	if opts.Store != nil {
		if err := saveCheckpoint(jm, opts.Store, jobID); err != nil {
			slog.Error("Failed to save final checkpoint", "job_id", jobID, "error", err)
		}
	}

	final, _ := jm.GetJob(jobID)
	elapsed := time.Since(start)
	metrics.JobsFinished.WithLabelValues(string(final.State)).Inc()

	slog.Info("Job finished",
		"job_id", jobID,
		"state", final.State,
		"elapsed", elapsed,
		"restarts", res.Restarts,
		"best_cost", res.BestCost,
		"network", network.Expression(res.Best),
	)

	jm.broadcaster.Broadcast(newProgressEvent(final, elapsed))
	if cancelled {
		return ctx.Err()
	}
	return nil
}

// monitorProgress periodically broadcasts progress events while a job runs
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, startTime time.Time, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}
			jm.broadcaster.Broadcast(newProgressEvent(job, time.Since(startTime)))
		}
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	metrics.JobsFinished.WithLabelValues(string(StateFailed)).Inc()
	slog.Error("Job failed", "job_id", jobID, "error", err)

	if job, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(newProgressEvent(job, endTime.Sub(job.StartTime)))
	}
}

// markJobCancelled records a job stopped by a cancel request
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	metrics.JobsFinished.WithLabelValues(string(StateCancelled)).Inc()
	slog.Info("Job cancelled", "job_id", jobID)

	if job, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(newProgressEvent(job, endTime.Sub(job.StartTime)))
	}
}

// monitorCheckpoints periodically saves checkpoints while a job runs
func monitorCheckpoints(ctx context.Context, jm *JobManager, checkpointStore store.Store, jobID string, done chan struct{}) {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return
	}

	ticker := time.NewTicker(time.Duration(job.Config.CheckpointInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveCheckpoint(jm, checkpointStore, jobID); err != nil {
				slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
			}
		}
	}
}

// saveCheckpoint saves a checkpoint for the given job
func saveCheckpoint(jm *JobManager, checkpointStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if job.Best == nil {
		slog.Debug("Skipping checkpoint, no best network yet", "job_id", jobID)
		return nil
	}

	checkpoint := store.NewCheckpoint(jobID, job.Best, job.BestCost, job.Restarts, job.Config)
	if err := checkpointStore.SaveCheckpoint(jobID, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Info("Checkpoint saved",
		"job_id", jobID,
		"restarts", job.Restarts,
		"best_cost", job.BestCost,
	)
	return nil
}
