package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge"
	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/engine"
)

var (
	configPath string
	verbose    bool
	logger     = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "hostbridge",
	Short: "hostbridge runs an embedded managed runtime",
	Long: `hostbridge locates, starts and serves an embedded runtime image, attaching
threads and releasing native references the way a host process would.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log lifecycle and daemon activity to stderr")
	rootCmd.PersistentFlags().Bool("auto-attach", false, "Attach calling threads on demand (overrides the config file)")
}

// setup installs loggers and configures the process-wide bridge.
func setup(cmd *cobra.Command, _ []string) error {
	if verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		logger = l
		bridge.SetLogger(l)
		engine.SetLogger(l)
	}

	cfg := bridge.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = bridge.LoadConfig(configPath); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("auto-attach") {
		cfg.AutoAttach, _ = cmd.Flags().GetBool("auto-attach")
	}
	return hostbridge.Configure(cfg, bridge.WithRegisterer(prometheus.DefaultRegisterer))
}
