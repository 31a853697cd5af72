package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/winredir/redir/modules"
)

var resolveImporter string

func init() {
	cmd := newResolveCmd()
	cmd.Flags().StringVar(&resolveImporter, "importer", "", "Library doing the import (e.g. kernel32)")
	rootCmd.AddCommand(cmd)
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <library> <symbol>",
		Short: "Show how an import is routed",
		Long: `The resolve command reports which redirection table answers an import
of symbol from library, following the kernelbase and API-set routes.

Example:
  redirctl resolve kernelbase RegOpenKeyExW
  redirctl resolve kernelbase GetProcAddress --importer kernel32`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(args)
		},
	}
}

type resolveResult struct {
	Library    string `json:"library"`
	Symbol     string `json:"symbol"`
	Redirected bool   `json:"redirected"`
	Table      string `json:"table,omitempty"`
	Signature  string `json:"signature,omitempty"`
}

func runResolve(args []string) error {
	d, _, err := openDomain()
	if err != nil {
		return err
	}
	defer d.Close()

	res := resolveResult{Library: modules.LibraryName(args[0]), Symbol: args[1]}
	fn, table, ok := d.Dispatch.Lookup(args[0], args[1], resolveImporter)
	if ok {
		res.Redirected = true
		res.Table = table
		res.Signature = fmt.Sprintf("%T", fn)
	}
	if jsonOut {
		return printJSON(res)
	}
	if !ok {
		printInfo("%s!%s: not redirected\n", res.Library, res.Symbol)
		return nil
	}
	printInfo("%s!%s -> %s table\n", res.Library, res.Symbol, res.Table)
	printVerbose("  %s\n", res.Signature)
	return nil
}
