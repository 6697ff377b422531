// Package storage holds the binary course materials referenced by storage paths.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrObjectNotFound is returned when nothing is stored under a path.
var ErrObjectNotFound = errors.New("object not found")

// Store reads and writes material binaries by relative path.
type Store interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, data []byte) (string, error)
	Delete(ctx context.Context, path string) error
}

// CleanPath normalises a storage path and rejects anything that escapes the root.
func CleanPath(raw string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(raw, "\\", "/"))
	if trimmed == "" {
		return "", errors.New("storage path is empty")
	}
	cleaned := path.Clean("/" + trimmed)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", errors.New("storage path is empty")
	}
	for _, part := range strings.Split(trimmed, "/") {
		if part == ".." {
			return "", errors.New("storage path must not contain ..")
		}
	}
	return cleaned, nil
}
