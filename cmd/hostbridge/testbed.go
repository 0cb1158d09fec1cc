package main

import (
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wippyai/hostbridge/testbed"
)

var testbedCmd = &cobra.Command{
	Use:   "testbed [dir]",
	Short: "Write the built-in test runtime image",
	Long: `Writes runtime.wasm, a minimal runtime image exporting add, release and the
string-conversion hooks, to dir (default: the current directory). Point
$HOSTBRIDGE_HOME at dir to use it with the other commands.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		wasm := testbed.Guest()
		path, err := testbed.Write(dir, wasm)
		if err != nil {
			return err
		}

		p := newPrinter(os.Stdout)
		p.field("wrote", path)
		p.field("size", humanize.Bytes(uint64(len(wasm))))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(testbedCmd)
}
