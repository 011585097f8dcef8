package platform

import (
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// TrimRoot removes trailing path separators from a root argument.
// A bare separator (or drive root on Windows) is left intact.
func TrimRoot(path string) string {
	trimmed := strings.TrimRight(path, `/\`)
	if trimmed == "" {
		return path
	}

	// On Windows, "C:" is not the same as "C:\"
	if runtime.GOOS == "windows" && len(trimmed) == 2 && trimmed[1] == ':' {
		return trimmed + `\`
	}

	return trimmed
}

// ToSlash converts a root-relative path to forward slashes without a leading separator
func ToSlash(rel string) string {
	rel = strings.ReplaceAll(filepath.ToSlash(rel), `\`, "/")
	return strings.TrimLeft(rel, "/")
}

// JoinRel joins a root-relative directory and an entry name using forward slashes
func JoinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// FoldKey returns the case-insensitive lookup key for an entry name.
// Two names match across roots when their keys are equal.
func FoldKey(name string) string {
	return folder.String(name)
}

// HasExt reports whether path ends with one of the given extensions, ignoring case
func HasExt(path string, exts ...string) bool {
	ext := filepath.Ext(path)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// IsUNCPath checks if a path is a UNC path (Windows network share)
func IsUNCPath(path string) bool {
	if runtime.GOOS != "windows" {
		return false
	}
	return strings.HasPrefix(path, "\\\\") || strings.HasPrefix(path, "//")
}

// ValidatePath checks if a path is valid for the current platform
func ValidatePath(path string) error {
	if path == "" {
		return &PathError{Path: path, Message: "path is empty"}
	}

	if runtime.GOOS == "windows" {
		invalidChars := []string{"<", ">", "\"", "|", "?", "*"}
		for _, char := range invalidChars {
			if strings.Contains(path, char) && !IsUNCPath(path) {
				return &PathError{Path: path, Message: "path contains invalid character: " + char}
			}
		}
	}

	return nil
}

// PathError represents a path validation error
type PathError struct {
	Path    string
	Message string
}

func (e *PathError) Error() string {
	return "invalid path '" + e.Path + "': " + e.Message
}
