package output

import (
	"io"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/term"

	"github.com/sdejongh/asmdiff/pkg/models"
)

const progressTemplate = `{{ cycle . "|" "/" "-" "\\" }} {{ counters . }} files compared, {{ string . "diffs" }} differences {{ string . "path" }}`

// getUpdateInterval returns the progress update interval based on OS
// Windows terminals have higher latency with ANSI sequences, so we use a longer interval
func getUpdateInterval() time.Duration {
	if runtime.GOOS == "windows" {
		return 300 * time.Millisecond
	}
	return 100 * time.Millisecond
}

// IsTerminal reports whether f is attached to a terminal
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// ProgressFormatter shows a live counter of compared files on a terminal
// while the walk runs. Difference lines are held back and printed by the
// wrapped formatter once the bar is finished.
type ProgressFormatter struct {
	inner    Formatter
	barOut   io.Writer
	bar      *pb.ProgressBar
	pending  []models.DiffEvent
	diffs    int
	mu       sync.Mutex
	width    int
	template string
}

// NewProgressFormatter wraps inner; the bar is drawn on barOut
func NewProgressFormatter(inner Formatter, barOut io.Writer) *ProgressFormatter {
	if barOut == nil {
		barOut = os.Stderr
	}
	return &ProgressFormatter{
		inner:    inner,
		barOut:   barOut,
		template: progressTemplate,
	}
}

// Start initializes the inner formatter and starts the bar
func (f *ProgressFormatter) Start(writer io.Writer, report *models.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.inner.Start(writer, report); err != nil {
		return err
	}

	// Detect terminal width to prevent line wrapping issues
	if file, ok := f.barOut.(*os.File); ok {
		if width, _, err := term.GetSize(int(file.Fd())); err == nil && width > 0 {
			f.width = width
		}
	}
	if f.width == 0 {
		f.width = 120
	}

	f.bar = pb.ProgressBarTemplate(f.template).New(0)
	f.bar.SetWriter(f.barOut)
	f.bar.SetWidth(f.width)
	f.bar.SetRefreshRate(getUpdateInterval())
	f.bar.Set("diffs", "0")
	f.bar.Set("path", "")
	f.bar.Start()
	return nil
}

// FileCompared advances the bar
func (f *ProgressFormatter) FileCompared(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bar == nil {
		return
	}
	f.bar.Set("path", truncatePath(path, f.width/2))
	f.bar.Increment()
}

// Event holds the difference back until the bar is finished
func (f *ProgressFormatter) Event(ev models.DiffEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, ev)
	f.diffs++
	if f.bar != nil {
		f.bar.Set("diffs", strconv.Itoa(f.diffs))
	}
	return nil
}

// Complete finishes the bar and flushes held events
func (f *ProgressFormatter) Complete(report *models.Report) error {
	if err := f.finish(); err != nil {
		return err
	}
	return f.inner.Complete(report)
}

// Error finishes the bar and forwards the error
func (f *ProgressFormatter) Error(err error) error {
	if ferr := f.finish(); ferr != nil {
		return ferr
	}
	return f.inner.Error(err)
}

// Name returns the formatter name
func (f *ProgressFormatter) Name() string {
	return "progress"
}

func (f *ProgressFormatter) finish() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.bar != nil {
		f.bar.Set("path", "")
		f.bar.Finish()
		f.bar = nil
	}

	for _, ev := range f.pending {
		if err := f.inner.Event(ev); err != nil {
			return err
		}
	}
	f.pending = nil
	return nil
}

// truncatePath keeps the tail of long paths
func truncatePath(path string, maxLen int) string {
	if maxLen < 4 || len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}
