package models

import (
	"time"
)

// Mode is the kind of comparison that was run
type Mode string

const (
	// ModeDirectory compares two directory trees
	ModeDirectory Mode = "directory"
	// ModeFile compares two individual files
	ModeFile Mode = "file"
)

// Report represents the results of one comparison run
type Report struct {
	// Run details
	RunID        string
	Root1        string
	Root2        string
	Mode         Mode
	Filters      []string
	FilterPolicy string

	// Timing
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	// Differences in emission order
	Events []DiffEvent

	// Match is the verdict of a file-mode comparison
	Match bool

	// Statistics
	Stats Statistics

	// Error is set when the run failed
	Error string

	// Overall status
	Status Status
}

// Statistics holds comparison metrics
type Statistics struct {
	// Entries listed under each root (after filtering)
	LeftDirs   int64
	LeftFiles  int64
	RightDirs  int64
	RightFiles int64

	// Entries dropped by the filter set
	Filtered int64

	// Content comparisons
	FilesCompared   int64
	ManagedCompared int64
	Unreadable      int64
	BytesHashed     int64

	// Events
	Added    int64
	Removed  int64
	Modified int64
}

// Differences returns the total number of events
func (s Statistics) Differences() int64 {
	return s.Added + s.Removed + s.Modified
}

// Status represents the overall result
type Status string

const (
	// StatusIdentical indicates no differences were found
	StatusIdentical Status = "identical"
	// StatusDifferent indicates at least one difference was found
	StatusDifferent Status = "different"
	// StatusFailed indicates the comparison could not complete
	StatusFailed Status = "failed"
)

// ExitCode returns the process exit code for the status
func (s Status) ExitCode() int {
	switch s {
	case StatusIdentical:
		return 0
	case StatusDifferent:
		return 1
	default:
		return 2
	}
}

// Add appends an event and updates the event counters
func (r *Report) Add(ev DiffEvent) {
	r.Events = append(r.Events, ev)
	switch ev.Kind {
	case Added:
		r.Stats.Added++
	case Removed:
		r.Stats.Removed++
	case Modified:
		r.Stats.Modified++
	}
}

// Finish stamps the end time and derives the status
func (r *Report) Finish(err error) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)

	switch {
	case err != nil:
		r.Status = StatusFailed
		r.Error = err.Error()
	case r.Mode == ModeFile && !r.Match:
		r.Status = StatusDifferent
	case r.Mode == ModeFile:
		r.Status = StatusIdentical
	case len(r.Events) > 0:
		r.Status = StatusDifferent
	default:
		r.Status = StatusIdentical
	}
}
