package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Snapshot is the on-disk form of a profiled Descriptor, written for
// inspection only.
type Snapshot struct {
	GeneratedAt time.Time  `json:"generated_at"`
	SampleSize  int        `json:"sample_size"`
	Fields      Descriptor `json:"fields"`
}

func WriteSnapshot(path string, s Snapshot) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

func ReadSnapshot(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", path, err)
	}
	return &s, nil
}
