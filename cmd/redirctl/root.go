package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/winredir/internal/config"
	"github.com/joshuapare/winredir/internal/logger"
	"github.com/joshuapare/winredir/native/sim"
	"github.com/joshuapare/winredir/redir/domain"
)

var (
	// Global flags
	verbose    bool
	quiet      bool
	jsonOut    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "redirctl",
	Short: "Inspect the API redirection tables of an isolation domain",
	Long: `redirctl builds an isolation domain over the simulated NT kernel and
reports what it redirects: the per-library tables, how a symbol is routed,
which shims a given DLL image would lose at load time, and the effective
configuration.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		opts := logger.Options{Enabled: verbose, Level: "debug", Output: os.Stderr}
		return logger.Init(opts)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output and debug logging")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig returns the --config file, or the defaults.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// openDomain builds a domain over a simulated OS shaped by the
// configuration. The caller closes it.
func openDomain() (*domain.Domain, *sim.OS, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	simOS := sim.New(sim.Options{UserSID: cfg.UserSID, SearchPaths: cfg.SearchPaths})
	d, err := domain.New(cfg, simOS)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create domain: %w", err)
	}
	printVerbose("Domain: %s, arena %d bytes\n", d.Version(), cfg.ArenaSize)
	return d, simOS, nil
}

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
