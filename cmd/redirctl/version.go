package main

import (
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/joshuapare/winredir/redir/dispatch"
)

// Set by the release build with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build and redirection target information",
		Long: `The version command prints the redirctl build, the Windows release the
configured domain emulates, and the libraries it redirects.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion()
		},
	})
}

type versionResult struct {
	Version   string   `json:"version"`
	Commit    string   `json:"commit"`
	Built     string   `json:"built"`
	Go        string   `json:"go"`
	Target    string   `json:"target"`
	Libraries []string `json:"libraries"`
}

func runVersion() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	res := versionResult{
		Version:   version,
		Commit:    commit,
		Built:     date,
		Go:        runtime.Version(),
		Target:    cfg.Version().String(),
		Libraries: []string{dispatch.Kernel32, dispatch.Ntdll, dispatch.Advapi32, dispatch.Rpcrt4},
	}
	if bi, ok := debug.ReadBuildInfo(); ok && res.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		res.Version = bi.Main.Version
	}

	if jsonOut {
		return printJSON(res)
	}
	printInfo("redirctl %s\n", res.Version)
	printInfo("  commit: %s\n", res.Commit)
	printInfo("  built: %s (%s)\n", res.Built, res.Go)
	printInfo("  target: %s\n", res.Target)
	printInfo("  redirects: %v\n", res.Libraries)
	return nil
}
