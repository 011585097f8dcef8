package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sdejongh/asmdiff/pkg/config"
)

// NewConfigCommand creates the config command
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `View or create the asmdiff configuration file.`,
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigInitCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			title := cases.Title(language.English)
			filters := "(none)"
			if len(cfg.Compare.Filters) > 0 {
				filters = strings.Join(cfg.Compare.Filters, ";")
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Filters: %s\n", filters)
			fmt.Fprintf(w, "Filter Policy: %s\n", cfg.Compare.FilterPolicy)
			fmt.Fprintf(w, "Managed Hashing: %s\n", onOff(cfg.Compare.ManagedHashing))
			fmt.Fprintf(w, "Max Workers: %d\n", cfg.Performance.MaxWorkers)
			fmt.Fprintf(w, "Buffer Size: %d\n", cfg.Performance.BufferSize)
			readRate := "unlimited"
			if cfg.Performance.MaxReadRate != "" {
				readRate = cfg.Performance.MaxReadRate + "/s"
			}
			fmt.Fprintf(w, "Max Read Rate: %s\n", readRate)
			fmt.Fprintf(w, "Output Format: %s\n", title.String(cfg.Output.Format))
			fmt.Fprintf(w, "Logging: %s\n", onOff(cfg.Logging.Enabled))
			fmt.Fprintf(w, "Log Format: %s\n", cfg.Logging.Format)
			fmt.Fprintf(w, "Log Level: %s\n", cfg.Logging.Level)

			return nil
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := globalFlags.ConfigFile
			if path == "" {
				var err error
				path, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}

			if !force {
				if _, err := os.Stat(path); err == nil {
					return &UsageError{Message: fmt.Sprintf("configuration file already exists: %s (use --force to overwrite)", path)}
				}
			}

			cfg := config.Default()
			if err := config.SaveToFile(cfg, path); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created at: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration file")

	return cmd
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
