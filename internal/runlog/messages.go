package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MessageStore persists full run transcripts as {dir}/{runID}.json so
// large event payloads never inflate database rows. Writes are atomic:
// temp file then rename.
type MessageStore struct {
	dir string
}

// NewMessageStore creates the transcript directory if needed.
func NewMessageStore(dir string) (*MessageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create messages dir: %w", err)
	}
	return &MessageStore{dir: dir}, nil
}

// Write stores the transcript and returns a URI reference for the run
// record.
func (s *MessageStore) Write(runID string, payload interface{}) (string, error) {
	name, err := safeName(runID)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, name+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to finalize transcript: %w", err)
	}

	return "file://" + path, nil
}
