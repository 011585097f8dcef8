package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/sdejongh/asmdiff/pkg/models"
)

// JSONFormatter formats output as a single JSON document for automation and
// scripting. Events are buffered until Complete.
type JSONFormatter struct {
	writer io.Writer
	events []models.DiffEvent
	err    error
}

// JSONReportData is the document written by Complete
type JSONReportData struct {
	RunID        string             `json:"run_id"`
	Mode         string             `json:"mode"`
	Path1        string             `json:"path1"`
	Path2        string             `json:"path2"`
	Filters      []string           `json:"filters,omitempty"`
	FilterPolicy string             `json:"filter_policy,omitempty"`
	Status       string             `json:"status"`
	Match        *bool              `json:"match,omitempty"`
	StartTime    string             `json:"start_time"`
	Duration     string             `json:"duration"`
	DurationMs   int64              `json:"duration_ms"`
	Stats        JSONStatsData      `json:"stats"`
	Events       []models.DiffEvent `json:"events"`
	Error        string             `json:"error,omitempty"`
}

// JSONStatsData represents statistics in JSON format
type JSONStatsData struct {
	Scanned     JSONScannedData     `json:"scanned"`
	Compared    JSONComparedData    `json:"compared"`
	Differences JSONDifferencesData `json:"differences"`
}

// JSONScannedData represents listed entry counts
type JSONScannedData struct {
	Path1Files int64 `json:"path1_files"`
	Path1Dirs  int64 `json:"path1_dirs"`
	Path2Files int64 `json:"path2_files"`
	Path2Dirs  int64 `json:"path2_dirs"`
	Filtered   int64 `json:"filtered"`
}

// JSONComparedData represents content comparison counts
type JSONComparedData struct {
	Files       int64 `json:"files"`
	Managed     int64 `json:"managed"`
	Unreadable  int64 `json:"unreadable"`
	BytesHashed int64 `json:"bytes_hashed"`
}

// JSONDifferencesData represents event counts
type JSONDifferencesData struct {
	Added    int64 `json:"added"`
	Removed  int64 `json:"removed"`
	Modified int64 `json:"modified"`
	Total    int64 `json:"total"`
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{
		events: make([]models.DiffEvent, 0),
	}
}

// Start initializes the formatter
func (f *JSONFormatter) Start(writer io.Writer, report *models.Report) error {
	if writer == nil {
		writer = os.Stdout
	}
	f.writer = writer
	return nil
}

// Event buffers a difference
func (f *JSONFormatter) Event(ev models.DiffEvent) error {
	f.events = append(f.events, ev)
	return nil
}

// Complete writes the report document
func (f *JSONFormatter) Complete(report *models.Report) error {
	if f.writer == nil {
		f.writer = io.Discard
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(f.reportData(report))
}

func (f *JSONFormatter) reportData(report *models.Report) JSONReportData {
	s := report.Stats
	data := JSONReportData{
		RunID:        report.RunID,
		Mode:         string(report.Mode),
		Path1:        report.Root1,
		Path2:        report.Root2,
		Filters:      report.Filters,
		FilterPolicy: report.FilterPolicy,
		Status:       string(report.Status),
		StartTime:    report.StartTime.Format(time.RFC3339),
		Duration:     report.Duration.Round(time.Millisecond).String(),
		DurationMs:   report.Duration.Milliseconds(),
		Stats: JSONStatsData{
			Scanned: JSONScannedData{
				Path1Files: s.LeftFiles,
				Path1Dirs:  s.LeftDirs,
				Path2Files: s.RightFiles,
				Path2Dirs:  s.RightDirs,
				Filtered:   s.Filtered,
			},
			Compared: JSONComparedData{
				Files:       s.FilesCompared,
				Managed:     s.ManagedCompared,
				Unreadable:  s.Unreadable,
				BytesHashed: s.BytesHashed,
			},
			Differences: JSONDifferencesData{
				Added:    s.Added,
				Removed:  s.Removed,
				Modified: s.Modified,
				Total:    s.Differences(),
			},
		},
		Events: f.events,
		Error:  report.Error,
	}

	if report.Mode == models.ModeFile && report.Status != models.StatusFailed {
		match := report.Match
		data.Match = &match
	}
	if data.Error == "" && f.err != nil {
		data.Error = f.err.Error()
	}
	return data
}

// Error records the failure for the final document
func (f *JSONFormatter) Error(err error) error {
	f.err = err
	return nil
}

// Name returns the formatter name
func (f *JSONFormatter) Name() string {
	return "json"
}
