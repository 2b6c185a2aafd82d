package runlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func testEntry(jobID string, i int) Entry {
	return Entry{
		Timestamp: time.Now().UTC(),
		JobID:     jobID,
		Action:    ActionFinished,
		Status:    "success",
		Summary:   fmt.Sprintf("entry %d", i),
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open log: %v", err)
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Errorf("line %d is not valid JSON: %v", n, err)
		}
	}
	return n
}

func TestWriter_AppendAndTail(t *testing.T) {
	w, err := NewWriter(t.TempDir(), 1<<20, 500)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		if err := w.Append("job-1", testEntry("job-1", i)); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	entries, err := w.Tail("job-1", 3)
	if err != nil {
		t.Fatalf("tail failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[2].Summary != "entry 4" {
		t.Errorf("expected newest entry last, got %q", entries[2].Summary)
	}
}

func TestWriter_TailMissingFile(t *testing.T) {
	w, err := NewWriter(t.TempDir(), 1<<20, 500)
	if err != nil {
		t.Fatal(err)
	}

	entries, err := w.Tail("never-written", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty tail, got %d entries", len(entries))
	}
}

func TestWriter_PruneKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	// Tiny threshold so every append triggers pruning.
	w, err := NewWriter(dir, 512, 4)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 50; i++ {
		if err := w.Append("job-2", testEntry("job-2", i)); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	path := filepath.Join(dir, "job-2.jsonl")
	if got := countLines(t, path); got > 4 {
		t.Errorf("expected at most 4 lines after prune, got %d", got)
	}

	entries, err := w.Tail("job-2", 0)
	if err != nil {
		t.Fatal(err)
	}
	last := entries[len(entries)-1]
	if last.Summary != "entry 49" {
		t.Errorf("prune dropped the newest entry, last is %q", last.Summary)
	}
}

func TestWriter_ConcurrentAppends(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, 1<<20, 500)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if err := w.Append("job-3", testEntry("job-3", g*100+i)); err != nil {
					t.Errorf("append failed: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	path := filepath.Join(dir, "job-3.jsonl")
	if got := countLines(t, path); got != 200 {
		t.Errorf("expected 200 intact lines, got %d", got)
	}
}

func TestWriter_RejectsUnsafeJobID(t *testing.T) {
	w, err := NewWriter(t.TempDir(), 1<<20, 500)
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"../../etc/passwd", "a/b", "", "dots.."} {
		if err := w.Append(id, testEntry(id, 0)); err == nil {
			t.Errorf("Append(%q): expected error for unsafe name", id)
		}
	}
}
