package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/winredir/redir/modules"
)

func init() {
	rootCmd.AddCommand(newTablesCmd())
}

func newTablesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables [library...]",
		Short: "List redirected symbols per library",
		Long: `The tables command lists every symbol the isolation domain redirects,
grouped by library. With arguments only the named libraries are shown.

Example:
  redirctl tables
  redirctl tables kernel32 advapi32 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(args)
		},
	}
	return cmd
}

func runTables(args []string) error {
	d, _, err := openDomain()
	if err != nil {
		return err
	}
	defer d.Close()

	libs := d.Tables().Libraries()
	if len(args) > 0 {
		libs = libs[:0:0]
		for _, a := range args {
			lib := modules.LibraryName(a)
			if d.Tables().Set(lib) == nil {
				return fmt.Errorf("library %s is not redirected", lib)
			}
			libs = append(libs, lib)
		}
	}

	out := make(map[string][]string, len(libs))
	for _, lib := range libs {
		out[lib] = d.Tables().Names(lib)
	}
	if jsonOut {
		return printJSON(out)
	}
	for _, lib := range libs {
		printInfo("%s (%d)\n", lib, len(out[lib]))
		for _, n := range out[lib] {
			printInfo("  %s\n", n)
		}
	}
	return nil
}
