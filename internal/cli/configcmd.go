package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/secho/egnyte-client-linux/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage client configuration",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value by key.

Keys: ` + strings.Join(config.Keys(), ", "),
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print all configuration values",
	RunE:  runConfigList,
}

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Set(args[0], args[1]); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	return out.WriteSuccess("config.set", map[string]string{args[0]: args[1]})
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	value, ok := cfg.Get(args[0])
	if !ok {
		return fmt.Errorf("config key %q is not set", args[0])
	}
	if globalFlags.OutputFormat == OutputFormatTable {
		fmt.Println(value)
		return nil
	}
	return out.WriteSuccess("config.get", map[string]string{args[0]: value})
}

func runConfigList(cmd *cobra.Command, args []string) error {
	out := newOutput()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	values := make(map[string]string)
	for _, key := range config.Keys() {
		if v, ok := cfg.Get(key); ok {
			if key == "clientSecret" {
				v = "********"
			}
			values[key] = v
		}
	}
	return out.WriteSuccess("config.list", values)
}
