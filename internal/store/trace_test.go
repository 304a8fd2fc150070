package store

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestTraceWriter_WriteAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-123"

	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	entries := []TraceEntry{
		{Restart: 0, Cost: 0.4, BestCost: 0.4, Moves: 3, Timestamp: time.Now()},
		{Restart: 0, Cost: 0.4, BestCost: 0.4, Improved: true, Network: "(R0 + R1)", Timestamp: time.Now()},
		{Restart: 1, Cost: 0.6, BestCost: 0.4, Moves: 1, Timestamp: time.Now()},
		{Restart: 2, Cost: 0.1, BestCost: 0.1, Moves: 5, Timestamp: time.Now()},
	}
	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	tracePath := filepath.Join(tmpDir, "jobs", jobID, "trace.jsonl")
	if writer.Path() != tracePath {
		t.Errorf("Path mismatch: expected %s, got %s", tracePath, writer.Path())
	}

	readEntries, err := ReadTrace(tmpDir, jobID)
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(readEntries) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(readEntries))
	}

	for i, entry := range readEntries {
		if entry.Restart != entries[i].Restart || entry.Cost != entries[i].Cost || entry.BestCost != entries[i].BestCost {
			t.Errorf("Entry %d mismatch: expected %+v, got %+v", i, entries[i], entry)
		}
		if entry.Improved != entries[i].Improved || entry.Network != entries[i].Network {
			t.Errorf("Entry %d improvement mismatch: expected %+v, got %+v", i, entries[i], entry)
		}
	}
}

func TestTraceWriter_OmitsEmptyFields(t *testing.T) {
	tmpDir := t.TempDir()

	writer, err := NewTraceWriter(tmpDir, "job", false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	writer.Write(TraceEntry{Restart: 4, Cost: 1, BestCost: 1, Timestamp: time.Now()})
	writer.Close()

	data, err := os.ReadFile(writer.Path())
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	for _, key := range []string{"improved", "network", "moves"} {
		if strings.Contains(line, key) {
			t.Errorf("Expected %q to be omitted from %s", key, line)
		}
	}
}

func TestTraceWriter_Append(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-append"

	for round := 0; round < 2; round++ {
		writer, err := NewTraceWriter(tmpDir, jobID, round > 0)
		if err != nil {
			t.Fatalf("Failed to create trace writer: %v", err)
		}
		for i := 0; i < 3; i++ {
			writer.Write(TraceEntry{Restart: round*3 + i, Timestamp: time.Now()})
		}
		writer.Close()
	}

	entries, err := ReadTrace(tmpDir, jobID)
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(entries) != 6 {
		t.Fatalf("Expected 6 entries after append, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Restart != i {
			t.Errorf("Entry %d: expected restart %d, got %d", i, i, e.Restart)
		}
	}

	// A fresh writer truncates
	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatal(err)
	}
	writer.Close()
	entries, _ = ReadTrace(tmpDir, jobID)
	if len(entries) != 0 {
		t.Errorf("Expected truncated trace, got %d entries", len(entries))
	}
}

func TestTraceWriter_FlushMakesEntriesVisible(t *testing.T) {
	tmpDir := t.TempDir()
	writer, err := NewTraceWriter(tmpDir, "job", false)
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()

	writer.Write(TraceEntry{Restart: 1, Timestamp: time.Now()})
	if err := writer.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	reader, err := NewTraceReader(tmpDir, "job")
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	entry, err := reader.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if entry.Restart != 1 {
		t.Errorf("Expected restart 1, got %d", entry.Restart)
	}
	if _, err := reader.Read(); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

func TestTraceReader_NotFound(t *testing.T) {
	_, err := NewTraceReader(t.TempDir(), "nonexistent")
	if _, ok := err.(*NotFoundError); !ok {
		t.Errorf("Expected NotFoundError, got %v", err)
	}
}

func TestDeleteTrace(t *testing.T) {
	tmpDir := t.TempDir()
	writer, err := NewTraceWriter(tmpDir, "job", false)
	if err != nil {
		t.Fatal(err)
	}
	writer.Close()

	if err := DeleteTrace(tmpDir, "job"); err != nil {
		t.Fatalf("DeleteTrace failed: %v", err)
	}
	if _, err := os.Stat(writer.Path()); !os.IsNotExist(err) {
		t.Error("Trace file should be deleted")
	}
	if err := DeleteTrace(tmpDir, "job"); err != nil {
		t.Errorf("DeleteTrace should not error for nonexistent file, got: %v", err)
	}
}

func TestTraceWriter_ConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()
	writer, err := NewTraceWriter(tmpDir, "job", false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(restart int) {
			defer wg.Done()
			if err := writer.Write(TraceEntry{Restart: restart, Timestamp: time.Now()}); err != nil {
				t.Errorf("Concurrent write failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
	writer.Close()

	entries, err := ReadTrace(tmpDir, "job")
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(entries) != 10 {
		t.Errorf("Expected 10 entries, got %d", len(entries))
	}
}
