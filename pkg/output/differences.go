package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sdejongh/asmdiff/pkg/models"
)

// WriteDifferencesReport writes the differences report to a file
// Format can be "human" or "json"
func WriteDifferencesReport(report *models.Report, filepath string, format Format) error {
	if len(report.Events) == 0 {
		// No differences - don't create empty file
		return nil
	}

	file, err := os.Create(filepath)
	if err != nil {
		return fmt.Errorf("failed to create differences file: %w", err)
	}
	defer file.Close()

	switch format {
	case FormatJSON:
		err = writeDifferencesJSON(report, file)
	default:
		err = writeDifferencesHuman(report, file)
	}
	if err != nil {
		return fmt.Errorf("failed to write differences file: %w", err)
	}
	return file.Close()
}

// writeDifferencesHuman writes differences in human-readable format
func writeDifferencesHuman(report *models.Report, w io.Writer) error {
	fmt.Fprintf(w, "Differences Report\n")
	fmt.Fprintf(w, "==================\n\n")
	fmt.Fprintf(w, "Generated: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "Run ID: %s\n", report.RunID)
	fmt.Fprintf(w, "Path 1: %s\n", report.Root1)
	fmt.Fprintf(w, "Path 2: %s\n", report.Root2)
	if len(report.Filters) > 0 {
		fmt.Fprintf(w, "Filters: %s (%s)\n", strings.Join(report.Filters, ";"), report.FilterPolicy)
	}
	fmt.Fprintf(w, "\nTotal Differences: %d\n\n", len(report.Events))

	byKind := make(map[models.EventKind][]models.DiffEvent)
	for _, ev := range report.Events {
		byKind[ev.Kind] = append(byKind[ev.Kind], ev)
	}

	kindOrder := []models.EventKind{models.Removed, models.Added, models.Modified}
	kindLabels := map[models.EventKind]string{
		models.Removed:  "Only in Path 1",
		models.Added:    "Only in Path 2",
		models.Modified: "Content Differences",
	}

	for _, kind := range kindOrder {
		events := byKind[kind]
		if len(events) == 0 {
			continue
		}

		label := fmt.Sprintf("%s (%d)", kindLabels[kind], len(events))
		fmt.Fprintf(w, "%s\n", label)
		fmt.Fprintf(w, "%s\n", strings.Repeat("-", len(label)))

		for _, ev := range events {
			fmt.Fprintf(w, "  %s\n", ev.String())
			if ev.Reason != "" {
				fmt.Fprintf(w, "    Reason: %s\n", ev.Reason)
			}
		}
		fmt.Fprintf(w, "\n")
	}

	return nil
}

// writeDifferencesJSON writes differences in JSON format
func writeDifferencesJSON(report *models.Report, w io.Writer) error {
	output := struct {
		Generated   string             `json:"generated"`
		RunID       string             `json:"run_id"`
		Path1       string             `json:"path1"`
		Path2       string             `json:"path2"`
		Filters     []string           `json:"filters,omitempty"`
		TotalCount  int                `json:"total_count"`
		Differences []models.DiffEvent `json:"differences"`
	}{
		Generated:   time.Now().Format(time.RFC3339),
		RunID:       report.RunID,
		Path1:       report.Root1,
		Path2:       report.Root2,
		Filters:     report.Filters,
		TotalCount:  len(report.Events),
		Differences: report.Events,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
