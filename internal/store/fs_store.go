package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// FSStore implements the Store interface on the filesystem.
// Each job owns <baseDir>/jobs/<jobID>/ holding checkpoint.json and, when
// tracing is enabled, trace.jsonl.
//
// Writes go through a temp file and rename, so concurrent readers never see
// a partial checkpoint.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

func (fs *FSStore) jobDir(jobID string) string {
	return filepath.Join(fs.baseDir, "jobs", jobID)
}

func (fs *FSStore) checkpointPath(jobID string) string {
	return filepath.Join(fs.jobDir(jobID), "checkpoint.json")
}

// SaveCheckpoint atomically saves a checkpoint for the given job.
func (fs *FSStore) SaveCheckpoint(jobID string, checkpoint *Checkpoint) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}

	if err := os.MkdirAll(fs.jobDir(jobID), 0755); err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	finalPath := fs.checkpointPath(jobID)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp checkpoint file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename checkpoint file: %w", err)
	}

	slog.Debug("Checkpoint saved", "jobID", jobID, "path", finalPath, "bestCost", checkpoint.BestCost)
	return nil
}

// LoadCheckpoint retrieves the checkpoint for the given job.
func (fs *FSStore) LoadCheckpoint(jobID string) (*Checkpoint, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}

	path := fs.checkpointPath(jobID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{JobID: jobID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to deserialize checkpoint: %w", err)
	}

	slog.Debug("Checkpoint loaded", "jobID", jobID, "path", path)
	return &checkpoint, nil
}

// ListCheckpoints returns metadata for all readable checkpoints, newest first.
// Directories without a checkpoint and corrupted files are skipped.
func (fs *FSStore) ListCheckpoints() ([]CheckpointInfo, error) {
	entries, err := os.ReadDir(filepath.Join(fs.baseDir, "jobs"))
	if os.IsNotExist(err) {
		return []CheckpointInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs directory: %w", err)
	}

	infos := []CheckpointInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		checkpoint, err := fs.LoadCheckpoint(entry.Name())
		if err != nil {
			if _, missing := err.(*NotFoundError); !missing {
				slog.Warn("Failed to load checkpoint for listing", "jobID", entry.Name(), "error", err)
			}
			continue
		}
		infos = append(infos, checkpoint.ToInfo())
	}

	sortInfos(infos)
	slog.Debug("Listed checkpoints", "count", len(infos))
	return infos, nil
}

// DeleteCheckpoint removes the job directory with its checkpoint and trace.
func (fs *FSStore) DeleteCheckpoint(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}

	jobDir := fs.jobDir(jobID)
	if _, err := os.Stat(jobDir); os.IsNotExist(err) {
		return &NotFoundError{JobID: jobID}
	} else if err != nil {
		return fmt.Errorf("failed to stat job directory: %w", err)
	}

	if err := os.RemoveAll(jobDir); err != nil {
		return fmt.Errorf("failed to remove job directory: %w", err)
	}

	slog.Debug("Checkpoint deleted", "jobID", jobID, "path", jobDir)
	return nil
}

// Close implements Store; the filesystem store holds no resources
func (fs *FSStore) Close() error {
	return nil
}

// sortInfos orders checkpoints newest first, then by job ID
func sortInfos(infos []CheckpointInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].Timestamp.Equal(infos[j].Timestamp) {
			return infos[i].Timestamp.After(infos[j].Timestamp)
		}
		return infos[i].JobID < infos[j].JobID
	})
}
