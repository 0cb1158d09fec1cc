package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge"
	"github.com/wippyai/hostbridge/bridge"
)

var serveCmd = &cobra.Command{
	Use:   "serve [library]",
	Short: "Keep the runtime running and expose its status over HTTP",
	Long: `Starts the runtime and serves /status (lifecycle, threads and daemon
counters as JSON) and /metrics (Prometheus) until interrupted. With --watch
the configuration file is reloaded on change and its string-conversion mode
is pushed into the running runtime.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		watch, _ := cmd.Flags().GetBool("watch")

		path := ""
		if len(args) == 1 {
			path = args[0]
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p := newPrinter(os.Stdout)
		if err := hostbridge.StartRuntime(ctx, path); err != nil {
			return err
		}
		defer shutdown(p)

		b := hostbridge.Default()
		if watch && configPath != "" {
			w, err := watchConfig(ctx, configPath, b)
			if err != nil {
				return err
			}
			defer w.Close()
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/status", statusHandler(b))

		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("serving", zap.String("addr", addr))
			serverErrors <- srv.ListenAndServe()
		}()

		inst, _ := b.Instance()
		p.title("hostbridge")
		p.field("runtime", inst.LibraryPath)
		p.field("instance", inst.ID)
		p.field("listening", addr)

		select {
		case err := <-serverErrors:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete", zap.Error(err))
			return srv.Close()
		}
		return nil
	},
}

type threadStatus struct {
	AttachedAt time.Time `json:"attached_at"`
	State      string    `json:"state"`
	ThreadID   uint64    `json:"thread_id"`
	Auto       bool      `json:"auto"`
}

type status struct {
	State          string             `json:"state"`
	Instance       *instanceStatus    `json:"instance,omitempty"`
	ConvertStrings bool               `json:"convert_strings"`
	AutoAttach     bool               `json:"auto_attach"`
	Threads        []threadStatus     `json:"threads"`
	Daemon         bridge.DaemonStats `json:"daemon"`
}

type instanceStatus struct {
	ID          string    `json:"id"`
	LibraryPath string    `json:"library_path"`
	Args        []string  `json:"args"`
	Owned       bool      `json:"owned"`
	StartedAt   time.Time `json:"started_at"`
}

func currentStatus(b *bridge.Bridge) status {
	cfg := b.Config()
	st := status{
		State:          b.State().String(),
		ConvertStrings: cfg.ConvertStrings,
		AutoAttach:     cfg.AutoAttach,
		Threads:        []threadStatus{},
		Daemon:         b.DaemonStats(),
	}
	if inst, ok := b.Instance(); ok {
		st.Instance = &instanceStatus{
			ID:          inst.ID,
			LibraryPath: inst.LibraryPath,
			Args:        inst.Args,
			Owned:       inst.Owned,
			StartedAt:   inst.StartedAt,
		}
	}
	for _, t := range b.Threads() {
		st.Threads = append(st.Threads, threadStatus{
			AttachedAt: t.AttachedAt,
			State:      t.State.String(),
			ThreadID:   t.ThreadID,
			Auto:       t.Auto,
		})
	}
	return st
}

func statusHandler(b *bridge.Bridge) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(currentStatus(b)); err != nil {
			logger.Warn("status encode failed", zap.Error(err))
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":9464", "HTTP listen address")
	serveCmd.Flags().Bool("watch", false, "Reload the config file on change")
}
