package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/sdejongh/asmdiff/internal/platform"
	"github.com/sdejongh/asmdiff/pkg/logging"
	"github.com/sdejongh/asmdiff/pkg/models"
)

// Local is a filesystem-based storage backend
type Local struct {
	rootPath string
	realRoot string
	logger   logging.Logger
}

// LocalOption configures a Local backend
type LocalOption func(*Local)

// WithLogger sets the logger used for skipped entries
func WithLogger(logger logging.Logger) LocalOption {
	return func(l *Local) {
		l.logger = logger
	}
}

// NewLocal creates a new local filesystem backend
func NewLocal(rootPath string, opts ...LocalOption) (*Local, error) {
	absPath, err := filepath.Abs(platform.TrimRoot(rootPath))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, &FilesystemError{Op: "open", Path: absPath, Err: err}
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", absPath)
	}

	realRoot, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		realRoot = absPath
	}

	l := &Local{rootPath: absPath, realRoot: realRoot}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.OrNull(l.logger)
	return l, nil
}

// ReadDir lists one directory level. Symbolic links are classified by their
// target; a dangling link is listed as a file. Entries that are neither
// directories nor regular files (pipes, sockets, devices) are skipped.
// A directory reached through a link that leads back to one of its own
// ancestors is listed as empty.
func (l *Local) ReadDir(ctx context.Context, rel string) ([]models.FileEntry, []models.FileEntry, error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	default:
	}

	fullPath := l.Abs(rel)
	if l.loops(rel) {
		l.logger.Debug(ctx, "not following directory link back into its own ancestry", logging.Fields{
			"path": rel,
		})
		return nil, nil, nil
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, nil, &FilesystemError{Op: "list", Path: fullPath, Err: err}
	}

	var dirs, files []models.FileEntry
	for _, d := range entries {
		entry := models.FileEntry{
			RelativePath: platform.JoinRel(rel, d.Name()),
			AbsolutePath: filepath.Join(fullPath, d.Name()),
			Name:         d.Name(),
		}

		info, err := d.Info()
		if d.Type()&fs.ModeSymlink != 0 {
			info, err = os.Stat(entry.AbsolutePath)
		}
		if err != nil {
			// Vanished entries and dangling links still show up; the
			// content comparison reports them as unreadable.
			files = append(files, entry)
			continue
		}

		switch {
		case info.IsDir():
			entry.IsDir = true
			dirs = append(dirs, entry)
		case info.Mode().IsRegular():
			entry.Size = info.Size()
			files = append(files, entry)
		default:
			l.logger.Debug(ctx, "skipping special file", logging.Fields{
				"path": entry.RelativePath,
				"mode": info.Mode().String(),
			})
		}
	}

	byName := func(s []models.FileEntry) {
		sort.Slice(s, func(i, j int) bool { return s[i].Name < s[j].Name })
	}
	byName(dirs)
	byName(files)

	return dirs, files, nil
}

// loops reports whether rel resolves to the same directory as one of its
// ancestors
func (l *Local) loops(rel string) bool {
	if rel == "" {
		return false
	}

	target, err := filepath.EvalSymlinks(l.Abs(rel))
	if err != nil || target == filepath.Join(l.realRoot, filepath.FromSlash(rel)) {
		return false
	}

	for dir := path.Dir(rel); ; dir = path.Dir(dir) {
		if dir == "." {
			dir = ""
		}
		if ancestor, err := filepath.EvalSymlinks(l.Abs(dir)); err == nil && ancestor == target {
			return true
		}
		if dir == "" {
			return false
		}
	}
}

// Abs returns the filesystem path of a root-relative path
func (l *Local) Abs(rel string) string {
	if rel == "" {
		return l.rootPath
	}
	return filepath.Join(l.rootPath, filepath.FromSlash(rel))
}

// Root returns the absolute root path
func (l *Local) Root() string {
	return l.rootPath
}

// Close releases resources (no-op for local filesystem)
func (l *Local) Close() error {
	return nil
}
