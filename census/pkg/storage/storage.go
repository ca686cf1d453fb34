// Package storage turns the storage paths rendered from the dataset
// catalog into locations an engine can read.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when a data file does not exist.
var ErrNotFound = errors.New("data file not found")

// Resolver maps a rendered storage path to a readable location.
type Resolver interface {
	Resolve(ctx context.Context, path string) (string, error)
}

// Local resolves paths on the local filesystem. Relative paths are taken
// relative to BaseDir, normally the directory of the configuration file.
type Local struct {
	BaseDir string
}

func (l Local) Resolve(ctx context.Context, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.BaseDir, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, abs)
		}
		return "", fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	return abs, nil
}
