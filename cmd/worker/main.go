package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/careloop/discharge-assistant/internal/bootstrap"
	"github.com/careloop/discharge-assistant/internal/config"
	"github.com/careloop/discharge-assistant/internal/core/domain"
	"github.com/careloop/discharge-assistant/internal/observability/logging"
	"github.com/careloop/discharge-assistant/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "worker")
	if err != nil {
		slog.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.RebuildUC.RestoreLatest(ctx); err != nil {
		slog.Warn("index restore failed, starting cold", "error", err)
	}

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: metricsMux(workerMetrics),
	}
	go func() {
		slog.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, documentID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()
		return processDocument(processCtx, app, workerMetrics, documentID)
	})
	if err != nil {
		slog.Error("worker subscribe error", "error", err)
		os.Exit(1)
	}
}

func metricsMux(m *metrics.WorkerMetrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func processDocument(ctx context.Context, app *bootstrap.App, m *metrics.WorkerMetrics, documentID string) error {
	if doc, err := app.Repo.GetByID(ctx, documentID); err == nil {
		m.ObserveQueueLag("worker", time.Since(doc.CreatedAt))
	}

	m.StartRebuild()
	start := time.Now()
	err := app.RebuildUC.ProcessByID(ctx, documentID)
	m.FinishRebuild("worker", rebuildStatus(ctx, app, documentID, err), time.Since(start))

	if err == nil {
		if snapshot, snapErr := app.Snapshots.Current(); snapErr == nil && snapshot.Sparse != nil {
			m.SetCorpusPassages("worker", snapshot.Sparse.Count())
		}
	}
	return err
}

func rebuildStatus(ctx context.Context, app *bootstrap.App, documentID string, err error) string {
	if err != nil {
		return "error"
	}
	if doc, getErr := app.Repo.GetByID(ctx, documentID); getErr == nil && doc.Status == domain.StatusSkipped {
		return "skipped"
	}
	return "success"
}
