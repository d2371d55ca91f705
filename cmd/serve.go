package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/jpa/internal/api"
	"github.com/joescharf/jpa/internal/metrics"
	"github.com/joescharf/jpa/internal/refresh"
)

const shutdownTimeout = 10 * time.Second

var serveSync bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server exposing the project, issue, team, stats and
auto-assign operations under /api/v1, plus Prometheus metrics at /metrics.

By default it listens on port 8080. Use --port to change it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "port to listen on")
	serveCmd.Flags().BoolVar(&serveSync, "sync", false, "Refresh the offline cache from Jira before serving")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}

func newServerLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func serveRun(cmd *cobra.Command) error {
	logger := newServerLogger()

	ctx, stop := signal.NotifyContext(cmdContext(cmd), shutdownSignals()...)
	defer stop()

	if serveSync {
		syncAtStartup(ctx, logger)
	}

	s, err := openStore(viper.GetString("store.backend"), logger)
	if err != nil {
		return err
	}
	dataStore = s

	a, err := newAllocator(s, dryRun, metrics.NewPrometheus(prometheus.DefaultRegisterer, "jpa"), logger)
	if err != nil {
		return err
	}

	cfg := api.Config{
		Classifier: classifier(),
		LLM:        newLLMClient(),
		Metrics:    promhttp.Handler(),
		Logger:     logger,
	}
	if viper.GetString("store.backend") == backendSQLite && cacheDB != nil {
		cfg.SyncTimes = cacheDB
	}

	addr := fmt.Sprintf(":%d", viper.GetInt("port"))
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(s, a, cfg).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", addr, "backend", viper.GetString("store.backend"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	ui.Info("Serving API at http://localhost%s/api/v1", addr)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
		return err
	}
	if cacheDB != nil {
		_ = cacheDB.Close()
	}
	logger.Info("server stopped")
	return nil
}

// syncAtStartup refreshes the cache. Failures are logged and the server
// starts anyway with whatever the cache already holds.
func syncAtStartup(ctx context.Context, logger *slog.Logger) {
	src, err := newJiraClient(logger)
	if err != nil {
		logger.Warn("startup sync skipped", "error", err)
		return
	}
	cache, err := getCache()
	if err != nil {
		logger.Warn("startup sync skipped", "error", err)
		return
	}
	res, err := refresh.All(ctx, src, cache)
	if err != nil {
		logger.Warn("startup sync failed", "error", err)
		return
	}
	logger.Info("startup sync completed", "synced", res.Synced, "failed", res.Failed)
}
