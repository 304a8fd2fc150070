// Package store persists solver checkpoints and restart traces.
//
// A checkpoint keeps the best network of a job together with the job
// configuration, so a later run can continue from it as an incumbent.
package store

// Store defines the interface for checkpoint persistence operations.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if checkpoint doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveCheckpoint saves a checkpoint for the given job, replacing any
	// previous one. A failed save must leave the previous checkpoint intact.
	SaveCheckpoint(jobID string, checkpoint *Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for the given job.
	// Returns ErrNotFound if no checkpoint exists for this jobID.
	LoadCheckpoint(jobID string) (*Checkpoint, error)

	// ListCheckpoints returns metadata for all available checkpoints.
	ListCheckpoints() ([]CheckpointInfo, error)

	// DeleteCheckpoint removes the checkpoint and its trace.
	// Returns ErrNotFound if no checkpoint exists for this jobID.
	DeleteCheckpoint(jobID string) error

	// Close releases resources held by the store
	Close() error
}

// ErrNotFound is returned when a requested checkpoint does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing checkpoint error.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	if e.JobID != "" {
		return "checkpoint not found: " + e.JobID
	}
	return "checkpoint not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// Open returns the store selected by kind ("fs" or "badger") rooted at dataDir
func Open(kind, dataDir string) (Store, error) {
	switch kind {
	case "", "fs":
		return NewFSStore(dataDir)
	case "badger":
		return NewBadgerStore(BadgerOptions{Dir: dataDir})
	default:
		return nil, &ValidationError{Field: "store", Reason: "must be fs or badger, got " + kind}
	}
}
