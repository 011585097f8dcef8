package cli

import (
	"github.com/spf13/cobra"
)

// GlobalFlags holds global flag values
type GlobalFlags struct {
	ConfigFile string
	Verbose    bool
	Quiet      bool
}

var globalFlags GlobalFlags

// AddGlobalFlags adds global flags to the root command
func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&globalFlags.ConfigFile,
		"config",
		"",
		"config file (default is $HOME/.config/asmdiff/config.yaml)",
	)
	cmd.PersistentFlags().BoolVarP(
		&globalFlags.Verbose,
		"verbose",
		"v",
		false,
		"print a summary after the comparison",
	)
	cmd.PersistentFlags().BoolVarP(
		&globalFlags.Quiet,
		"quiet",
		"q",
		false,
		"suppress difference listing; rely on the exit code",
	)
}

// CompareFlags holds compare command flag values
type CompareFlags struct {
	Filters      []string
	FilterPolicy string
	Strict       bool
	Workers      int
	BufferSize   int
	MaxReadRate  string
	Output       string
	Progress     bool
	Report       string
	ReportFormat string
	LogFile      string
	LogLevel     string
	LogFormat    string
}

func (f *CompareFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.Filters, "filter", "f", nil, "filter token, repeatable; prefix with - to exclude (e.g. -*.pdb)")
	cmd.Flags().StringVar(&f.FilterPolicy, "filter-policy", "", "filter evaluation: first-match, first-rule")
	cmd.Flags().BoolVar(&f.Strict, "strict", false, "compare managed assemblies byte for byte")
	cmd.Flags().IntVarP(&f.Workers, "workers", "w", 0, "files compared concurrently per directory")
	cmd.Flags().IntVar(&f.BufferSize, "buffer-size", 0, "read buffer size in bytes")
	cmd.Flags().StringVar(&f.MaxReadRate, "max-read-rate", "", "cap combined read throughput, e.g. 50MiB (default unlimited)")
	cmd.Flags().StringVarP(&f.Output, "output", "o", "", "output format: human, json")
	cmd.Flags().BoolVar(&f.Progress, "progress", false, "show a progress bar on terminals")
	cmd.Flags().StringVar(&f.Report, "report", "", "write differences report to file")
	cmd.Flags().StringVar(&f.ReportFormat, "report-format", "human", "differences report format: human, json")
	cmd.Flags().StringVar(&f.LogFile, "log-file", "", "write structured logs to this file (rotated)")
	cmd.Flags().StringVar(&f.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&f.LogFormat, "log-format", "", "log format: json, text")
}
