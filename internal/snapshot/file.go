package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileSink writes snapshots into a local directory.
type FileSink struct {
	Dir string
}

// Put writes data to Dir/key through a temp file and rename, so readers
// never observe a partial snapshot.
func (s FileSink) Put(_ context.Context, key string, data []byte) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, key)
	tmp, err := os.CreateTemp(dir, key+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename snapshot: %w", err)
	}
	return path, nil
}
