// Package storage lists the directory trees being compared.
package storage

import (
	"context"
	"fmt"

	"github.com/sdejongh/asmdiff/pkg/models"
)

// Backend defines the interface for reading one compared root.
// Implementations resolve root-relative, "/"-separated paths.
type Backend interface {
	// ReadDir returns the immediate subdirectories and files of rel, each
	// sorted by name
	ReadDir(ctx context.Context, rel string) (dirs, files []models.FileEntry, err error)

	// Abs returns the filesystem path of rel
	Abs(rel string) string

	// Root returns the root path the backend was opened on
	Root() string

	// Close releases any resources held by the backend
	Close() error
}

// FilesystemError reports a failure to list or inspect a directory. It ends
// a tree comparison.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}
