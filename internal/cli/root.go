// Package cli wires the cobra command tree for the egnyte client.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/secho/egnyte-client-linux/internal/api"
	"github.com/secho/egnyte-client-linux/internal/auth"
	"github.com/secho/egnyte-client-linux/internal/config"
	"github.com/secho/egnyte-client-linux/internal/logging"
	"github.com/secho/egnyte-client-linux/pkg/version"
)

// OutputFormat selects how command results are rendered
type OutputFormat string

const (
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// GlobalFlags are shared across every subcommand
type GlobalFlags struct {
	OutputFormat OutputFormat
	Quiet        bool
	Verbose      bool
	Debug        bool
	ConfigDir    string
	LogFile      string
	JSON         bool
}

var (
	globalFlags GlobalFlags
	logger      logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "egnyte",
	Short: "Egnyte desktop client - sync, mount and manage Egnyte files",
	Long: `egnyte is a command-line client for Egnyte on Linux.
It keeps local folders in sync with the cloud, mounts the remote
filesystem via FUSE, and exposes file operations for scripting.

All commands support JSON output for automation.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateGlobalFlags(); err != nil {
			return err
		}

		logConfig := logging.LogConfig{
			Level:           logging.INFO,
			OutputFile:      globalFlags.LogFile,
			EnableConsole:   !globalFlags.Quiet,
			EnableDebug:     globalFlags.Debug,
			RedactSensitive: true,
			EnableColor:     true,
			EnableTimestamp: true,
		}
		if globalFlags.Verbose {
			logConfig.Level = logging.DEBUG
		}
		if globalFlags.OutputFormat == OutputFormatJSON && !globalFlags.Verbose && !globalFlags.Debug {
			logConfig.EnableConsole = false
		}

		var err error
		logger, err = logging.NewLogger(logConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar((*string)(&globalFlags.OutputFormat), "output", "table", "Output format (json, table)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Debug, "debug", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&globalFlags.ConfigDir, "config-dir", "", "Configuration directory (default ~/.config/egnyte-desktop)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogFile, "log-file", "", "Path to log file")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format (alias for --output json)")

	rootCmd.AddCommand(versionCmd)
}

func validateGlobalFlags() error {
	if globalFlags.JSON {
		globalFlags.OutputFormat = OutputFormatJSON
	}
	if globalFlags.OutputFormat != OutputFormatJSON && globalFlags.OutputFormat != OutputFormatTable {
		return fmt.Errorf("invalid output format: %s", globalFlags.OutputFormat)
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	return nil
}

// GetLogger returns the global logger
func GetLogger() logging.Logger {
	return logger
}

// loadConfig opens the configuration honoring --config-dir
func loadConfig() (*config.Config, error) {
	return config.Load(globalFlags.ConfigDir)
}

// newAPIClient builds the authenticated API client stack. The rate
// limiter created here is the one every remote call shares.
func newAPIClient(cfg *config.Config) (*api.Client, *auth.Manager, error) {
	if cfg.Domain() == "" {
		return nil, nil, fmt.Errorf("no Egnyte domain configured, run 'egnyte config set domain <name>' first")
	}
	manager := auth.NewManager(cfg, logger)
	limiter := api.NewRateLimiter(cfg.RateLimitQPS())
	client := api.NewClient(cfg.Domain(), manager, limiter, logger)
	return client, manager, nil
}

func newOutput() *OutputWriter {
	return NewOutputWriter(globalFlags.OutputFormat, globalFlags.Quiet, globalFlags.Verbose)
}
