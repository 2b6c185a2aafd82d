// Package runlog persists per-job run history on disk: an append-only
// JSONL event log per job and a message-transcript file per run.
package runlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry actions.
const (
	ActionStarted  = "started"
	ActionFinished = "finished"
)

// Entry is one line of a job's run log. Appended, never mutated.
type Entry struct {
	Timestamp  time.Time  `json:"ts"`
	JobID      string     `json:"job_id"`
	Action     string     `json:"action"`
	Status     string     `json:"status,omitempty"`
	Error      string     `json:"error,omitempty"`
	Summary    string     `json:"summary,omitempty"`
	DurationMs int64      `json:"duration_ms,omitempty"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
	Attempt    int        `json:"attempt,omitempty"`
}

// Writer appends run-log entries to {dir}/{jobID}.jsonl. Writes to the
// same file are serialized by a per-path lock so concurrent runners
// never interleave within one file. Once a file exceeds maxBytes the
// oldest entries are pruned, retaining keepLines lines.
type Writer struct {
	dir       string
	maxBytes  int64
	keepLines int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewWriter creates the log directory if needed.
func NewWriter(dir string, maxBytes int64, keepLines int) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	if keepLines <= 0 {
		keepLines = 500
	}
	return &Writer{
		dir:       dir,
		maxBytes:  maxBytes,
		keepLines: keepLines,
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

func (w *Writer) pathLock(path string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.locks[path]
	if !ok {
		l = &sync.Mutex{}
		w.locks[path] = l
	}
	return l
}

func (w *Writer) pathFor(jobID string) (string, error) {
	name, err := safeName(jobID)
	if err != nil {
		return "", err
	}
	return filepath.Join(w.dir, name+".jsonl"), nil
}

// Append writes one entry to the job's log, pruning afterwards if the
// file has outgrown the size threshold.
func (w *Writer) Append(jobID string, e Entry) error {
	path, err := w.pathFor(jobID)
	if err != nil {
		return err
	}

	line, err := json.Marshal(e)
	if err != nil {
		return err
	}

	l := w.pathLock(path)
	l.Lock()
	defer l.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}
	_, writeErr := f.Write(append(line, '\n'))
	closeErr := f.Close()
	if writeErr != nil {
		return fmt.Errorf("failed to append run log: %w", writeErr)
	}
	if closeErr != nil {
		return closeErr
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() > w.maxBytes {
		return w.prune(path)
	}
	return nil
}

// prune rewrites the file keeping only the newest keepLines lines. The
// rewrite goes through a temp file and rename so readers always see
// valid line-delimited JSON. Caller holds the path lock.
func (w *Writer) prune(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	lines := bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n"))
	if len(lines) > w.keepLines {
		lines = lines[len(lines)-w.keepLines:]
	}

	tmp := path + ".tmp"
	out := append(bytes.Join(lines, []byte("\n")), '\n')
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("failed to write pruned log: %w", err)
	}
	return os.Rename(tmp, path)
}

// Tail returns up to limit newest entries of a job's log, oldest
// first. A missing log file yields an empty slice.
func (w *Writer) Tail(jobID string, limit int) ([]Entry, error) {
	path, err := w.pathFor(jobID)
	if err != nil {
		return nil, err
	}

	l := w.pathLock(path)
	l.Lock()
	defer l.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}
