package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
)

const checkpointPrefix = "checkpoint/"

// BadgerOptions configures a BadgerStore
type BadgerOptions struct {
	// Dir is the data directory; the database lives in Dir/badger
	Dir string

	// InMemory keeps everything in memory, for tests
	InMemory bool

	// Logger receives badger's internal messages. Nil silences them.
	Logger *slog.Logger
}

// BadgerStore implements Store on an embedded badger database. Traces stay
// on the filesystem under Dir, next to the database.
type BadgerStore struct {
	db  *badger.DB
	dir string
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// NewBadgerStore opens (or creates) a badger-backed checkpoint store
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("data directory is required for persistent store")
	}

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		path := filepath.Join(opts.Dir, "badger")
		if err := os.MkdirAll(path, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		bopts = badger.DefaultOptions(path).WithSyncWrites(true)
	}
	bopts = bopts.WithNumVersionsToKeep(1)

	if opts.Logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{logger: opts.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerStore{db: db, dir: opts.Dir}, nil
}

func checkpointKey(jobID string) []byte {
	return []byte(checkpointPrefix + jobID)
}

// SaveCheckpoint implements Store. The write is a single transaction.
func (s *BadgerStore) SaveCheckpoint(jobID string, checkpoint *Checkpoint) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}

	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(checkpointKey(jobID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Debug("Checkpoint saved", "jobID", jobID, "store", "badger", "bestCost", checkpoint.BestCost)
	return nil
}

// LoadCheckpoint implements Store
func (s *BadgerStore) LoadCheckpoint(jobID string) (*Checkpoint, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(checkpointKey(jobID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &NotFoundError{JobID: jobID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to deserialize checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// ListCheckpoints implements Store
func (s *BadgerStore) ListCheckpoints() ([]CheckpointInfo, error) {
	infos := []CheckpointInfo{}
	prefix := []byte(checkpointPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var checkpoint Checkpoint
				if err := json.Unmarshal(val, &checkpoint); err != nil {
					slog.Warn("Skipping corrupted checkpoint", "key", string(item.Key()), "error", err)
					return nil
				}
				infos = append(infos, checkpoint.ToInfo())
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	sortInfos(infos)
	return infos, nil
}

// DeleteCheckpoint implements Store. The job's trace file is removed too.
func (s *BadgerStore) DeleteCheckpoint(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(checkpointKey(jobID)); err != nil {
			return err
		}
		return txn.Delete(checkpointKey(jobID))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return &NotFoundError{JobID: jobID}
	}
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	if s.dir != "" {
		if err := DeleteTrace(s.dir, jobID); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Store
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
