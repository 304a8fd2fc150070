package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewBadgerStore_RequiresDir(t *testing.T) {
	if _, err := NewBadgerStore(BadgerOptions{}); err == nil {
		t.Fatal("Expected error without data directory")
	}
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewBadgerStore(BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("NewBadgerStore failed: %v", err)
	}
	if err := s.SaveCheckpoint("job", createTestCheckpoint("job")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "badger")); err != nil {
		t.Fatalf("Database directory missing: %v", err)
	}

	s, err = NewBadgerStore(BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s.Close()

	loaded, err := s.LoadCheckpoint("job")
	if err != nil {
		t.Fatalf("Load after reopen failed: %v", err)
	}
	if loaded.Restarts != 500 {
		t.Errorf("Expected 500 restarts, got %d", loaded.Restarts)
	}
}

func TestBadgerStore_DeleteRemovesTrace(t *testing.T) {
	dir := t.TempDir()
	s, err := NewBadgerStore(BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("NewBadgerStore failed: %v", err)
	}
	defer s.Close()

	if err := s.SaveCheckpoint("job", createTestCheckpoint("job")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	tw, err := NewTraceWriter(dir, "job", false)
	if err != nil {
		t.Fatalf("NewTraceWriter failed: %v", err)
	}
	tw.Close()

	if err := s.DeleteCheckpoint("job"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "jobs", "job", "trace.jsonl")); !os.IsNotExist(err) {
		t.Error("Trace should be removed with the checkpoint")
	}
}
