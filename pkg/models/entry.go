package models

// FileEntry is a file or directory found under one of the compared roots
type FileEntry struct {
	// RelativePath is the path relative to its root, with "/" separators
	RelativePath string

	// AbsolutePath is the full path on the filesystem
	AbsolutePath string

	// Name is the last path element as listed by the filesystem
	Name string

	// Size in bytes (zero for directories)
	Size int64

	// IsDir indicates if this is a directory
	IsDir bool
}
