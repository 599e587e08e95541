package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramkit/engram/internal/config"
	"github.com/engramkit/engram/internal/observability"
	"github.com/engramkit/engram/internal/tracing"
	"github.com/engramkit/engram/pkg/session"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the memory service",
	Long: `Run engram as a long-lived process: retention sweeps on schedule, idle
session reaping, transcript cleanup, a Prometheus /metrics endpoint, and
config hot-reload for the retrieval/retention thresholds.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "metrics listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	log := rt.log.GetZerolog()

	if err := tracing.InitOpenTelemetry("engram", version); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tracing.ShutdownOpenTelemetry(shutdownCtx)
	}()

	// Session lifecycle: idle conversations get summarized, stale
	// transcripts get pruned and removed.
	sessions, err := session.New(filepath.Join(rt.cfg.DataDir, "sessions"), rt.memory)
	if err != nil {
		return err
	}
	defer sessions.Close(cmd.Context())

	reaper := session.NewReaper(sessions, 0)
	if err := reaper.Start(); err != nil {
		return err
	}
	defer reaper.Stop()

	cleanup := session.NewCleanup(sessions, rt.cfg.Memory.Retention())
	if err := cleanup.Start(); err != nil {
		return err
	}
	defer cleanup.Stop()

	// Threshold changes in the config file apply without restart.
	watcher, err := config.NewWatcher(config.NewLoader(cfgFile), log, func(cfg *config.Config) {
		rt.memory.ApplyPolicy(policyFromConfig(cfg))
		observability.RecordConfigAudit(cmd.Context(), "reload", "serve", map[string]interface{}{
			"max_facts":      cfg.Memory.MaxFacts,
			"retention_days": cfg.Memory.RetentionDays,
		})
	})
	if err != nil {
		log.Warn().Err(err).Msg("Config hot-reload unavailable")
	} else {
		defer watcher.Stop()
	}

	addr := serveAddr
	if addr == "" {
		addr = rt.cfg.Metrics.Addr
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := rt.memory.Stats(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Metrics endpoint listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
