package models

import "fmt"

// EventKind classifies a difference between the two roots
type EventKind string

const (
	// Added means the entry exists only under the second root
	Added EventKind = "added"
	// Removed means the entry exists only under the first root
	Removed EventKind = "removed"
	// Modified means a file exists under both roots with different content
	Modified EventKind = "modified"
)

// Symbol returns the single-character marker used in listings
func (k EventKind) Symbol() string {
	switch k {
	case Added:
		return "+"
	case Removed:
		return "-"
	case Modified:
		return "!"
	default:
		return "?"
	}
}

// Inverse returns the kind seen when the two roots are swapped
func (k EventKind) Inverse() EventKind {
	switch k {
	case Added:
		return Removed
	case Removed:
		return Added
	default:
		return k
	}
}

// DiffEvent is one reported difference.
// Path is relative to the second root for Added and Modified events and to
// the first root for Removed events.
type DiffEvent struct {
	Kind   EventKind `json:"kind"`
	Path   string    `json:"path"`
	IsDir  bool      `json:"is_dir"`
	Reason string    `json:"reason,omitempty"`
}

// EntryType returns "dir" or "file"
func (e DiffEvent) EntryType() string {
	if e.IsDir {
		return "dir"
	}
	return "file"
}

// String renders the event as "<symbol> <type> : <path>"
func (e DiffEvent) String() string {
	return fmt.Sprintf("%s %s : %s", e.Kind.Symbol(), e.EntryType(), e.Path)
}
