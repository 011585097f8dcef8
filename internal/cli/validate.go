package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sdejongh/asmdiff/internal/platform"
	"github.com/sdejongh/asmdiff/pkg/config"
	"github.com/sdejongh/asmdiff/pkg/filter"
	"github.com/sdejongh/asmdiff/pkg/logging"
	"github.com/sdejongh/asmdiff/pkg/models"
	"github.com/sdejongh/asmdiff/pkg/output"
)

const missingPathMessage = "specified directory or file does not exist"

// resolveMode decides between a tree and a single-file comparison.
// Both paths must be directories, or both must be files.
func resolveMode(path1, path2 string) (models.Mode, error) {
	for _, p := range []string{path1, path2} {
		if err := platform.ValidatePath(p); err != nil {
			return "", &UsageError{Message: err.Error()}
		}
	}

	info1, err1 := os.Stat(path1)
	info2, err2 := os.Stat(path2)
	if err1 != nil || err2 != nil {
		return "", &UsageError{Message: missingPathMessage}
	}

	switch {
	case info1.IsDir() && info2.IsDir():
		return models.ModeDirectory, nil
	case info1.Mode().IsRegular() && info2.Mode().IsRegular():
		return models.ModeFile, nil
	default:
		return "", &UsageError{Message: missingPathMessage}
	}
}

// loadConfig loads configuration from file or returns default
func loadConfig() (*config.Config, error) {
	if globalFlags.ConfigFile != "" {
		return config.LoadFromFile(globalFlags.ConfigFile)
	}
	return config.LoadDefault()
}

// applyFlagsToConfig overrides config values with command-line flags
func applyFlagsToConfig(cmd *cobra.Command, cfg *config.Config, flags *CompareFlags, listArg string) error {
	// Filters given on the command line replace configured ones
	var tokens []string
	if listArg != "" {
		tokens = append(tokens, filter.ParseList(listArg)...)
	}
	for _, f := range flags.Filters {
		tokens = append(tokens, filter.ParseList(f)...)
	}
	if listArg != "" || len(flags.Filters) > 0 {
		cfg.Compare.Filters = tokens
	}

	if cmd.Flags().Changed("filter-policy") {
		cfg.Compare.FilterPolicy = flags.FilterPolicy
	}

	if flags.Strict {
		cfg.Compare.ManagedHashing = false
	}

	if flags.Workers > 0 {
		cfg.Performance.MaxWorkers = flags.Workers
	}
	if flags.BufferSize > 0 {
		cfg.Performance.BufferSize = flags.BufferSize
	}

	if flags.MaxReadRate != "" {
		cfg.Performance.MaxReadRate = flags.MaxReadRate
	}

	if flags.Output != "" {
		cfg.Output.Format = flags.Output
	}
	if cmd.Flags().Changed("progress") {
		cfg.Output.Progress = flags.Progress
	}

	if flags.LogFile != "" {
		cfg.Logging.Enabled = true
		cfg.Logging.File = flags.LogFile
	}
	if flags.LogLevel != "" {
		cfg.Logging.Enabled = true
		cfg.Logging.Level = flags.LogLevel
	}
	if flags.LogFormat != "" {
		cfg.Logging.Format = flags.LogFormat
	}

	// Disable progress in quiet mode
	if globalFlags.Quiet {
		cfg.Output.Progress = false
		cfg.Output.Quiet = true
	}

	if _, err := output.ParseFormat(flags.ReportFormat); err != nil {
		return &UsageError{Message: err.Error()}
	}

	if err := cfg.Validate(); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			return &UsageError{Message: fmt.Sprintf("invalid option %s", verr.Error())}
		}
		return err
	}
	return nil
}

// newLogger builds the run logger; disabled logging yields a NullLogger
func newLogger(cfg *config.Config) logging.Logger {
	if !cfg.Logging.Enabled {
		return logging.NewNullLogger()
	}
	return logging.New(logging.Config{
		Format:     logging.Format(cfg.Logging.Format),
		Level:      logging.ParseLevel(cfg.Logging.Level),
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
}
