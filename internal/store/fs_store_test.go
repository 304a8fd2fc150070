package store

import (
	"os"
	"path/filepath"
	"testing"
)

// setupTestStore creates a temporary directory and returns an FSStore for testing.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	return store, tempDir
}

func TestNewFSStore_CreatesBaseDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	if store.BaseDir() != dir {
		t.Errorf("BaseDir mismatch: expected %s, got %s", dir, store.BaseDir())
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Fatal("Base directory was not created")
	}
}

func TestFSStore_SaveLeavesNoTempFile(t *testing.T) {
	store, tempDir := setupTestStore(t)

	if err := store.SaveCheckpoint("job", createTestCheckpoint("job")); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	expectedPath := filepath.Join(tempDir, "jobs", "job", "checkpoint.json")
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Fatalf("Checkpoint file was not created at %s", expectedPath)
	}
	if _, err := os.Stat(expectedPath + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("Temp file should not exist after save")
	}
}

func TestFSStore_ListSkipsInvalidDirectories(t *testing.T) {
	store, tempDir := setupTestStore(t)

	if err := store.SaveCheckpoint("good", createTestCheckpoint("good")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// directory without a checkpoint
	if err := os.MkdirAll(filepath.Join(tempDir, "jobs", "empty"), 0755); err != nil {
		t.Fatal(err)
	}
	// corrupted checkpoint
	badDir := filepath.Join(tempDir, "jobs", "corrupt")
	if err := os.MkdirAll(badDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(badDir, "checkpoint.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	// stray file
	if err := os.WriteFile(filepath.Join(tempDir, "jobs", "README"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	infos, err := store.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints failed: %v", err)
	}
	if len(infos) != 1 || infos[0].JobID != "good" {
		t.Errorf("Expected only the good checkpoint, got %+v", infos)
	}
}

func TestFSStore_DeleteRemovesTrace(t *testing.T) {
	store, tempDir := setupTestStore(t)

	if err := store.SaveCheckpoint("job", createTestCheckpoint("job")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	tw, err := NewTraceWriter(tempDir, "job", false)
	if err != nil {
		t.Fatalf("NewTraceWriter failed: %v", err)
	}
	tw.Close()

	if err := store.DeleteCheckpoint("job"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "jobs", "job")); !os.IsNotExist(err) {
		t.Error("Job directory should be gone after delete")
	}
}
