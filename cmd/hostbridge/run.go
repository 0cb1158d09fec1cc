package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge"
	"github.com/wippyai/hostbridge/errors"
)

var runCmd = &cobra.Command{
	Use:   "run [library]",
	Short: "Start the runtime, optionally call an export, then shut down",
	Long: `Starts the runtime from library (or the located default), attaches the
calling thread and optionally calls one export with integer arguments.
With -i an interactive console lists the exports and calls them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		call, _ := cmd.Flags().GetString("call")
		raw, _ := cmd.Flags().GetStringSlice("param")
		bootArgs, _ := cmd.Flags().GetStringSlice("boot-arg")
		interactive, _ := cmd.Flags().GetBool("interactive")
		hostDaemon, _ := cmd.Flags().GetBool("host-daemon")

		params, err := parseParams(raw)
		if err != nil {
			return err
		}
		if err := hostbridge.SetUseHostThreadForDaemon(hostDaemon); err != nil {
			return err
		}

		path := ""
		if len(args) == 1 {
			path = args[0]
		}

		ctx := cmd.Context()
		p := newPrinter(os.Stdout)
		if err := hostbridge.StartRuntime(ctx, path, bootArgs...); err != nil {
			return err
		}
		defer shutdown(p)

		b := hostbridge.Default()
		if err := b.AttachCurrentThread(); err != nil {
			return err
		}
		defer b.DetachCurrentThread()

		inst, _ := b.Instance()
		p.title("hostbridge")
		p.field("runtime", inst.LibraryPath)
		p.field("instance", inst.ID)
		p.field("boot args", strings.Join(inst.Args, " "))
		p.field("strings", conversionMode(b.Policy().StringConversion()))

		if interactive {
			return runInteractive(ctx, b, inst)
		}
		if call == "" {
			return nil
		}

		start := time.Now()
		res, err := b.Call(ctx, call, params...)
		if err != nil {
			return err
		}
		p.field("result", fmt.Sprint(res))
		p.field("took", time.Since(start))
		return nil
	},
}

func shutdown(p printer) {
	b := hostbridge.Default()
	inst, ok := b.Instance()
	stats := b.DaemonStats()

	err := hostbridge.ShutdownRuntime(context.Background())
	switch {
	case err == nil:
	case errors.IsWarning(err):
		p.warn(err)
	default:
		logger.Error("shutdown failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, p.render(errorStyle, err.Error()))
		return
	}
	if ok {
		p.field("uptime", humanize.RelTime(inst.StartedAt, time.Now(), "", ""))
		p.field("released", humanize.Comma(int64(stats.Released)))
	}
}

// parseParams reads raw wasm values. Negative numbers are passed as 64-bit
// two's complement.
func parseParams(raw []string) ([]uint64, error) {
	params := make([]uint64, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if v, err := strconv.ParseUint(r, 0, 64); err == nil {
			params = append(params, v)
			continue
		}
		v, err := strconv.ParseInt(r, 0, 64)
		if err != nil {
			return nil, errors.New(errors.PhaseCall, errors.KindInvalidInput).
				Value(r).
				Detail("parameter %q is not an integer", r).
				Build()
		}
		params = append(params, uint64(v))
	}
	return params, nil
}

func conversionMode(enabled bool) string {
	if enabled {
		return "converted to Go strings"
	}
	return "kept as runtime objects"
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("call", "", "Export to call after start")
	runCmd.Flags().StringSlice("param", nil, "Integer argument for --call (repeatable)")
	runCmd.Flags().StringSlice("boot-arg", nil, "Extra boot argument (repeatable)")
	runCmd.Flags().BoolP("interactive", "i", false, "Interactive console")
	runCmd.Flags().Bool("host-daemon", false, "Run the reference daemon as a periodic host task")
}
