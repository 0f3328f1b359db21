package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TempStore hands out scratch directories for media acquisition attempts.
// Each attempt owns its directory exclusively and removes it when done.
type TempStore struct {
	baseDir string
}

// NewTempStore creates a TempStore rooted at baseDir, creating the
// directory if needed. An empty baseDir falls back to a "slidecast"
// directory under os.TempDir().
func NewTempStore(baseDir string) (*TempStore, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "slidecast")
	}

	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	return &TempStore{baseDir: baseDir}, nil
}

// BaseDir returns the scratch root.
func (s *TempStore) BaseDir() string {
	return s.baseDir
}

// CreateDir makes a fresh unique directory for one acquisition attempt.
// The hint appears in the directory name for debuggability.
func (s *TempStore) CreateDir(ctx context.Context, hint string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	dir, err := os.MkdirTemp(s.baseDir, dirPattern(hint))
	if err != nil {
		return "", fmt.Errorf("create acquisition directory: %w", err)
	}
	return dir, nil
}

// RemoveDir deletes an acquisition directory and its contents. It takes no
// context on purpose: cleanup has to run even when the run was cancelled.
// Missing directories are not an error.
func (s *TempStore) RemoveDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove acquisition directory: %w", err)
	}
	return nil
}

func dirPattern(hint string) string {
	hint = strings.ReplaceAll(hint, string(os.PathSeparator), "-")
	if hint == "" {
		hint = "media"
	}
	return hint + "-*"
}
