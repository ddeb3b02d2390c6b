package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/careloop/discharge-assistant/internal/adapters/http"
	"github.com/careloop/discharge-assistant/internal/bootstrap"
	"github.com/careloop/discharge-assistant/internal/config"
	"github.com/careloop/discharge-assistant/internal/observability/logging"
	"github.com/careloop/discharge-assistant/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "api")
	if err != nil {
		slog.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// The API serves queries too, so it loads the latest persisted index
	// pair at startup. An empty knowledge base is not an error; queries
	// return 503 until the first rebuild publishes.
	if err := app.RebuildUC.RestoreLatest(ctx); err != nil {
		slog.Warn("index restore failed, serving without snapshot", "error", err)
	}
	go refreshSnapshots(ctx, app, 30*time.Second)

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	router := httpadapter.NewRouter(app.IngestUC, app.RetrieveUC, app.Repo, httpMetrics, httpadapter.Options{
		Service:        "api",
		APIKey:         cfg.APIKey,
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
		RateLimitRPS:   cfg.APIRateLimitRPS,
		RateLimitBurst: cfg.APIRateLimitBurst,
		MaxInFlight:    cfg.APIMaxInFlight,
	}).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api shutdown error", "error", err)
	}
}

// refreshSnapshots picks up index pairs the worker published since the
// last load. RestoreLatest is a no-op while the current snapshot is
// complete and at the latest version.
func refreshSnapshots(ctx context.Context, app *bootstrap.App, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := app.RebuildUC.RestoreLatest(ctx); err != nil {
				slog.Warn("snapshot refresh failed", "error", err)
			}
		}
	}
}
