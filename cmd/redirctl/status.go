package main

import (
	"github.com/spf13/cobra"
)

var statusLoad []string

func init() {
	cmd := newStatusCmd()
	cmd.Flags().StringSliceVar(&statusLoad, "load", nil, "DLL images (host paths) to load before reporting")
	rootCmd.AddCommand(cmd)
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the state of a fresh isolation domain",
		Long: `The status command builds an isolation domain, optionally loads DLL
images into it, and reports arena usage, mapped modules, stubs and table
sizes.

Example:
  redirctl status
  redirctl status --load ./kernel32.dll --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	d, simOS, err := openDomain()
	if err != nil {
		return err
	}
	defer d.Close()

	for _, p := range statusLoad {
		simPath, err := installImage(simOS, p)
		if err != nil {
			return err
		}
		if _, err := d.LoadLibrary(simPath); err != nil {
			return err
		}
		printVerbose("Loaded %s\n", p)
	}

	st := d.Status()
	if jsonOut {
		return printJSON(st)
	}
	printInfo("\nDomain Status:\n")
	printInfo("  Version: %s\n", st.Version)
	printInfo("  Private heap: %t\n", st.PrivHeap)
	printInfo("  Arena: %d of %d bytes used, %d live blocks\n", st.Arena.Used, st.Arena.Size, st.Arena.Blocks)
	printInfo("  Stubs: %d\n", st.Stubs)
	printInfo("  FLS blocks: %d\n", st.FlsBlocks)
	printInfo("  Modules: %d\n", len(st.Modules))
	for _, m := range st.Modules {
		printInfo("    %s\n", m)
	}
	printInfo("  Tables:\n")
	for _, lib := range d.Tables().Libraries() {
		printInfo("    %s: %d\n", lib, st.TableSizes[lib])
	}
	return nil
}
