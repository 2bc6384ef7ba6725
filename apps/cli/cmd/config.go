package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitwire/packages/core/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize hitwire configuration",
}

var (
	configShowJSONFlag bool
	configInitForce    bool
)

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration hitwire would use: the discovered or --config
file layered over the defaults.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := cfg.Marshal(!configShowJSONFlag)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter config file",
	Long: `Write the default configuration to hitwire.yaml in the current
directory, or to the given path. Paths not ending in .yaml or .yml are
written as JSON.

Examples:
  hitwire config init
  hitwire config init .hitwire.config.json --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "hitwire.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}

		if !configInitForce {
			if _, err := os.Stat(abs); err == nil {
				return exitWith(ExitUsageError, fmt.Errorf("file already exists: %s (use --force to overwrite)", abs))
			}
		}

		cfg := config.DefaultConfig()
		cfg.Headers = map[string]string{"User-Agent": "hitwire/" + version}
		if err := cfg.SaveConfig(abs); err != nil {
			return exitWith(ExitConfigError, fmt.Errorf("failed to create config file: %w", err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", abs)
		return nil
	},
}

func init() {
	configShowCmd.Flags().BoolVar(&configShowJSONFlag, "json", false, "Print as JSON instead of YAML")
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "Overwrite an existing file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
