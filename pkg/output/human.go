package output

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sdejongh/asmdiff/pkg/models"
)

// Verdict lines of a single-file comparison
const (
	FilesSame      = "The files are the same."
	FilesDifferent = "The files are different."
	doneLine       = "Done."
)

// HumanFormatter prints one line per difference:
//
//	- dir : removed/dir
//	+ file : added.dll
//	! file : changed.dll
//
// followed by "Done." for tree comparisons, or a one-line verdict for
// single files.
type HumanFormatter struct {
	writer  io.Writer
	summary bool
}

// NewHumanFormatter creates a new human-readable formatter. When summary is
// set, Complete also prints run statistics.
func NewHumanFormatter(summary bool) *HumanFormatter {
	return &HumanFormatter{summary: summary}
}

// Start initializes the formatter
func (f *HumanFormatter) Start(writer io.Writer, report *models.Report) error {
	f.writer = writer
	return nil
}

// Event prints a difference line
func (f *HumanFormatter) Event(ev models.DiffEvent) error {
	if f.writer == nil {
		return nil
	}
	_, err := fmt.Fprintln(f.writer, ev.String())
	return err
}

// Complete prints the verdict and, optionally, a summary
func (f *HumanFormatter) Complete(report *models.Report) error {
	if f.writer == nil {
		f.writer = io.Discard
	}

	if report.Status == models.StatusFailed {
		return nil
	}

	if report.Mode == models.ModeFile {
		if report.Match {
			fmt.Fprintln(f.writer, FilesSame)
		} else {
			fmt.Fprintln(f.writer, FilesDifferent)
		}
	} else {
		fmt.Fprintln(f.writer, doneLine)
	}

	if f.summary {
		writeSummary(f.writer, report)
	}
	return nil
}

// Error reports an error
func (f *HumanFormatter) Error(err error) error {
	if f.writer != nil {
		fmt.Fprintf(f.writer, "Error: %v\n", err)
	}
	return nil
}

// Name returns the formatter name
func (f *HumanFormatter) Name() string {
	return "human"
}

func writeSummary(w io.Writer, report *models.Report) {
	s := report.Stats

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Summary:\n")
	if report.Mode == models.ModeDirectory {
		fmt.Fprintf(w, "  Scanned:\n")
		fmt.Fprintf(w, "    Path 1:        %s files, %s dirs\n", humanize.Comma(s.LeftFiles), humanize.Comma(s.LeftDirs))
		fmt.Fprintf(w, "    Path 2:        %s files, %s dirs\n", humanize.Comma(s.RightFiles), humanize.Comma(s.RightDirs))
		fmt.Fprintf(w, "    Filtered:      %s\n", humanize.Comma(s.Filtered))
	}
	fmt.Fprintf(w, "  Compared:\n")
	fmt.Fprintf(w, "    Files:         %s (%s managed)\n", humanize.Comma(s.FilesCompared), humanize.Comma(s.ManagedCompared))
	fmt.Fprintf(w, "    Unreadable:    %s\n", humanize.Comma(s.Unreadable))
	fmt.Fprintf(w, "    Data hashed:   %s\n", humanize.IBytes(uint64(max(s.BytesHashed, 0))))
	if report.Mode == models.ModeDirectory {
		fmt.Fprintf(w, "  Differences:\n")
		fmt.Fprintf(w, "    Added:         %s\n", humanize.Comma(s.Added))
		fmt.Fprintf(w, "    Removed:       %s\n", humanize.Comma(s.Removed))
		fmt.Fprintf(w, "    Modified:      %s\n", humanize.Comma(s.Modified))
	}
	fmt.Fprintf(w, "  Duration:        %s\n", report.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Run ID:          %s\n", report.RunID)
}
