package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/joshuapare/winredir/internal/imagefile"
	"github.com/joshuapare/winredir/native/sim"
	"github.com/joshuapare/winredir/redir/modules"
)

func init() {
	rootCmd.AddCommand(newProbeCmd())
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <dll>",
		Short: "Check a DLL image against the redirection tables",
		Long: `The probe command maps a DLL image, lists its exports, and reports which
redirected symbols of that library the image lacks. Those shims are dropped
when the image is loaded into a domain.

Example:
  redirctl probe C:\Windows\System32\kernel32.dll
  redirctl probe ./advapi32.dll --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(args[0])
		},
	}
}

// dryRun reports names without removing them.
type dryRun []string

func (r dryRun) Names() []string       { return r }
func (dryRun) Remove(name string) bool { return true }

type probeResult struct {
	Image      string   `json:"image"`
	Library    string   `json:"library"`
	Exports    int      `json:"exports"`
	Forwarders int      `json:"forwarders"`
	Imports    []string `json:"imports"`
	Redirected int      `json:"redirected"`
	Missing    []string `json:"missing"`
}

func runProbe(path string) error {
	img, err := imagefile.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer img.Close()

	d, _, err := openDomain()
	if err != nil {
		return err
	}
	defer d.Close()

	mapper := modules.NewPEMapper(d.Arena())
	m, err := mapper.Map(filepath.Base(path), img.Data)
	if err != nil {
		return err
	}
	defer mapper.Unmap(m)

	res := probeResult{
		Image:      path,
		Library:    m.Name,
		Exports:    len(m.Exports),
		Forwarders: len(m.Forwarders),
		Imports:    m.Imports(),
		Missing:    []string{},
	}
	if d.Tables().Set(m.Name) != nil {
		names := dryRun(d.Tables().Names(m.Name))
		res.Redirected = len(names)
		if missing := modules.ProbeExports(names, m); missing != nil {
			res.Missing = missing
		}
		sort.Strings(res.Missing)
	}

	if jsonOut {
		return printJSON(res)
	}
	printInfo("\nImage: %s (%s)\n", res.Image, res.Library)
	printInfo("  Exports: %d (%d forwarded)\n", res.Exports, res.Forwarders)
	printInfo("  Imports: %d libraries\n", len(res.Imports))
	for _, lib := range res.Imports {
		printVerbose("    %s\n", lib)
	}
	if res.Redirected == 0 {
		printInfo("  Not a redirected library\n")
		return nil
	}
	printInfo("  Redirected symbols: %d, missing from image: %d\n", res.Redirected, len(res.Missing))
	for _, n := range res.Missing {
		printInfo("    - %s\n", n)
	}
	return nil
}

// installImage copies a host DLL into the simulated system directory and
// returns its simulated path.
func installImage(s *sim.OS, hostPath string) (string, error) {
	img, err := imagefile.Open(hostPath)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer img.Close()

	p := `C:\Windows\System32\` + filepath.Base(hostPath)
	s.AddImage(p, bytes.Clone(img.Data))
	return p, nil
}
