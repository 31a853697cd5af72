package main

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newConfigCmd())
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `The config command validates the --config file (or the defaults) and
prints the result as TOML, or JSON with --json.

Example:
  redirctl config
  redirctl config -c winredir.toml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig()
		},
	}
}

func runConfig() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(cfg)
	}
	if quiet {
		return nil
	}
	return toml.NewEncoder(os.Stdout).Encode(cfg)
}
