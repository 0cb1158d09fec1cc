package main

import (
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wippyai/hostbridge"
	"github.com/wippyai/hostbridge/locator"
)

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Print the runtime library the locator finds on this platform",
	Long: `Searches $` + locator.EnvRuntime + `, $` + locator.EnvHome + ` and the platform's standard
locations for ` + locator.LibraryName + ` and prints the boot arguments it would be started with.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := hostbridge.DefaultLibraryPath()
		if err != nil {
			return err
		}
		finder := locator.Default()

		p := newPrinter(os.Stdout)
		p.title("runtime library")
		p.field("platform", finder.Platform())
		p.field("path", path)
		if fi, err := os.Stat(path); err == nil {
			p.field("size", humanize.Bytes(uint64(fi.Size())))
			p.field("modified", humanize.Time(fi.ModTime()))
		}
		p.field("boot args", strings.Join(finder.BootArguments(path), " "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(locateCmd)
}
