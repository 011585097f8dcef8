// Package output renders comparison results for people and for scripts.
package output

import (
	"fmt"
	"io"

	"github.com/sdejongh/asmdiff/pkg/models"
)

// Format names an output format
type Format string

const (
	FormatHuman Format = "human"
	FormatJSON  Format = "json"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatHuman:
		return FormatHuman, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (valid: human, json)", s)
	}
}

// Formatter defines the interface for output formatting
// Implementations include human-readable, JSON and progress-bar formatters
type Formatter interface {
	// Start initializes the formatter for a new comparison run
	Start(writer io.Writer, report *models.Report) error

	// Event reports one difference as soon as it is found
	Event(ev models.DiffEvent) error

	// Complete finalizes output and displays the verdict
	Complete(report *models.Report) error

	// Error reports a failure that ended the run
	Error(err error) error

	// Name returns the formatter name
	Name() string
}

// ProgressObserver is implemented by formatters that track individual file
// comparisons
type ProgressObserver interface {
	FileCompared(path string)
}
