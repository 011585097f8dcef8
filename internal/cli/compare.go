package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sdejongh/asmdiff/internal/platform"
	"github.com/sdejongh/asmdiff/pkg/compare"
	"github.com/sdejongh/asmdiff/pkg/config"
	"github.com/sdejongh/asmdiff/pkg/diff"
	"github.com/sdejongh/asmdiff/pkg/filter"
	"github.com/sdejongh/asmdiff/pkg/hash"
	"github.com/sdejongh/asmdiff/pkg/logging"
	"github.com/sdejongh/asmdiff/pkg/models"
	"github.com/sdejongh/asmdiff/pkg/output"
	"github.com/sdejongh/asmdiff/pkg/ratelimit"
)

// NewCompareCommand creates the compare command
func NewCompareCommand() *cobra.Command {
	flags := &CompareFlags{}

	cmd := &cobra.Command{
		Use:   "compare <path-1> <path-2> [filters]",
		Short: "Compare two directory trees or two files",
		Long: `Compare two directory trees, or two individual files, and report the
differences. Managed assemblies are compared with build noise masked out
(timestamps, checksums, signatures, debug records and module GUIDs).

Filters are a semicolon separated list of path patterns; a pattern
prefixed with - excludes matching entries. Example: "-*.pdb;-obj".

Options must precede the paths, so a filter list starting with - is not
read as an option.

Exit codes: 0 identical, 1 different, 2 failure.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, args, flags)
		},
	}

	flags.register(cmd)
	cmd.Flags().SetInterspersed(false)

	return cmd
}

func runCompare(cmd *cobra.Command, args []string, flags *CompareFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override config with command-line flags
	var listArg string
	if len(args) == 3 {
		listArg = args[2]
	}
	if err := applyFlagsToConfig(cmd, cfg, flags, listArg); err != nil {
		return err
	}

	path1 := platform.TrimRoot(args[0])
	path2 := platform.TrimRoot(args[1])
	mode, err := resolveMode(path1, path2)
	if err != nil {
		return err
	}

	filters, err := buildFilters(cfg)
	if err != nil {
		return &UsageError{Message: err.Error()}
	}

	logger := newLogger(cfg)
	defer logger.Close()
	runID := uuid.New().String()
	runLogger := logger.WithFields(logging.Fields{"run_id": runID})

	readRate, _ := ratelimit.ParseRate(cfg.Performance.MaxReadRate)
	selector := hash.NewSelector(
		hash.WithBufferSize(cfg.Performance.BufferSize),
		hash.WithReadLimit(ratelimit.NewLimiter(readRate)),
		hash.WithManagedHashing(cfg.Compare.ManagedHashing),
		hash.WithLogger(runLogger),
	)
	comparator := compare.NewComparator(selector, runLogger)

	report := &models.Report{
		RunID:        runID,
		Root1:        path1,
		Root2:        path2,
		Mode:         mode,
		Filters:      cfg.Compare.Filters,
		FilterPolicy: cfg.Compare.FilterPolicy,
		StartTime:    time.Now(),
	}

	formatter := createFormatter(cfg)
	var out io.Writer = cmd.OutOrStdout()
	if cfg.Output.Quiet {
		out = io.Discard
	}
	if err := formatter.Start(out, report); err != nil {
		return fmt.Errorf("failed to start output: %w", err)
	}

	runLogger.Info(ctx, "comparison started", logging.Fields{
		"root1":   path1,
		"root2":   path2,
		"mode":    string(mode),
		"filters": filters.String(),
		"managed": cfg.Compare.ManagedHashing,
		"workers": cfg.Performance.MaxWorkers,
		"rate":    readRate,
	})

	var runErr error
	switch mode {
	case models.ModeDirectory:
		runErr = compareTrees(ctx, cfg, filters, comparator, formatter, runLogger, report)
	case models.ModeFile:
		compareFiles(ctx, comparator, report)
	}
	report.Stats.BytesHashed = selector.BytesRead()
	report.Finish(runErr)

	if runErr != nil {
		runLogger.Error(ctx, "comparison failed", runErr, nil)
		if err := formatter.Error(runErr); err != nil {
			return err
		}
	}
	if err := formatter.Complete(report); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	runLogger.Info(ctx, "comparison finished", logging.Fields{
		"status":      string(report.Status),
		"differences": report.Stats.Differences(),
		"duration_ms": report.Duration.Milliseconds(),
	})

	// Write differences report if requested
	if flags.Report != "" {
		format, _ := output.ParseFormat(flags.ReportFormat)
		if err := output.WriteDifferencesReport(report, flags.Report, format); err != nil {
			return fmt.Errorf("failed to write differences report: %w", err)
		}
	}

	if report.Status == models.StatusIdentical {
		return nil
	}
	exitErr := &ExitError{Code: report.Status.ExitCode()}
	if runErr != nil && cfg.Output.Quiet {
		exitErr.Err = runErr
	}
	return exitErr
}

func compareTrees(ctx context.Context, cfg *config.Config, filters *filter.Set, comparator diff.FileComparator, formatter output.Formatter, logger logging.Logger, report *models.Report) error {
	opts := []diff.Option{
		diff.WithWorkers(cfg.Performance.MaxWorkers),
		diff.WithLogger(logger),
	}
	if observer, ok := formatter.(output.ProgressObserver); ok {
		opts = append(opts, diff.WithProgress(observer.FileCompared))
	}

	differ := diff.New(filters, comparator, opts...)
	err := differ.Walk(ctx, report.Root1, report.Root2, func(ev models.DiffEvent) error {
		report.Add(ev)
		return formatter.Event(ev)
	})
	report.Stats = differ.Stats()
	return err
}

func compareFiles(ctx context.Context, comparator *compare.Comparator, report *models.Report) {
	c := comparator.Compare(ctx, report.Root1, report.Root2)
	report.Match = c.Match()
	report.Stats.FilesCompared = 1
	if c.LeftStrategy == hash.KindManagedAssembly && c.RightStrategy == hash.KindManagedAssembly {
		report.Stats.ManagedCompared = 1
	}
	if c.Result == compare.Error {
		report.Stats.Unreadable = 1
	}
}

func buildFilters(cfg *config.Config) (*filter.Set, error) {
	policy, err := filter.ParsePolicy(cfg.Compare.FilterPolicy)
	if err != nil {
		return nil, err
	}
	return filter.Compile(cfg.Compare.Filters, filter.WithPolicy(policy))
}

func createFormatter(cfg *config.Config) output.Formatter {
	format, _ := output.ParseFormat(cfg.Output.Format)
	if format == output.FormatJSON {
		return output.NewJSONFormatter()
	}

	var formatter output.Formatter = output.NewHumanFormatter(globalFlags.Verbose)
	if cfg.Output.Progress && output.IsTerminal(os.Stderr) {
		formatter = output.NewProgressFormatter(formatter, os.Stderr)
	}
	return formatter
}
