package bootstrap

import (
	"context"
	"fmt"

	"github.com/careloop/discharge-assistant/internal/config"
	"github.com/careloop/discharge-assistant/internal/core/ports"
	"github.com/careloop/discharge-assistant/internal/core/usecase"
	"github.com/careloop/discharge-assistant/internal/infrastructure/chunking"
	"github.com/careloop/discharge-assistant/internal/infrastructure/extractor"
	"github.com/careloop/discharge-assistant/internal/infrastructure/extractor/pdf"
	"github.com/careloop/discharge-assistant/internal/infrastructure/extractor/plaintext"
	"github.com/careloop/discharge-assistant/internal/infrastructure/extractor/xlsx"
	"github.com/careloop/discharge-assistant/internal/infrastructure/index/bm25"
	"github.com/careloop/discharge-assistant/internal/infrastructure/llm/ollama"
	"github.com/careloop/discharge-assistant/internal/infrastructure/queue/nats"
	"github.com/careloop/discharge-assistant/internal/infrastructure/repository/postgres"
	"github.com/careloop/discharge-assistant/internal/infrastructure/resilience"
	"github.com/careloop/discharge-assistant/internal/infrastructure/storage/localfs"
	"github.com/careloop/discharge-assistant/internal/infrastructure/vector/chromem"
	"github.com/careloop/discharge-assistant/internal/observability/logging"
)

// App wires the full dependency graph once; both binaries pick the
// pieces they serve.
type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Repo      ports.DocumentRepository
	Snapshots *usecase.SnapshotRegistry

	IngestUC   ports.DocumentIngestor
	RebuildUC  ports.IndexRebuilder
	RetrieveUC ports.KnowledgeRetriever

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure documents schema: %w", err)
	}
	passages := postgres.NewPassageRepository(db)
	if err := passages.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure passages schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel, ollama.Options{
		EmbedRatePerSec: cfg.EmbedRatePerSec,
		Executor:        executor,
	})
	embedder := ollama.NewEmbedder(ollamaClient)

	denseStore, err := chromem.New(cfg.ChromemPath, cfg.ChromemCollection)
	if err != nil {
		return nil, fmt.Errorf("init dense store: %w", err)
	}
	sparseStore := bm25.NewStore(storage, cfg.SparseIndexKey)

	chunker := chunking.NewChunker(cfg.ChunkSizeWords, cfg.ChunkOverlapWords)
	textExtractor := extractor.NewComposite(map[string]ports.TextExtractor{
		".txt":  plaintext.NewExtractor(storage),
		".text": plaintext.NewExtractor(storage),
		".pdf":  pdf.NewExtractor(storage),
		".xlsx": xlsx.NewExtractor(storage),
	})

	snapshots := usecase.NewSnapshotRegistry()

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue)
	rebuildUC := usecase.NewRebuildIndexUseCase(
		repo, passages, textExtractor, chunker, embedder,
		denseStore, sparseStore, snapshots, cfg.EmbedBatchSize, logger,
	)
	retrieveUC := usecase.NewRetrieveUseCase(snapshots, embedder, usecase.RetrievalConfig{
		DefaultK:            cfg.TopK,
		DenseWeight:         cfg.DenseWeight,
		SparseWeight:        cfg.SparseWeight,
		FusionStrategy:      cfg.FusionStrategy,
		RRFK:                cfg.FusionRRFK,
		CandidateMultiplier: cfg.HybridCandidates,
		GateThreshold:       cfg.GateThreshold,
		ContextThreshold:    cfg.ContextThreshold,
		RerankEnabled:       cfg.RerankEnabled,
		RerankTopN:          cfg.RerankTopN,
	})

	return &App{
		Config:    cfg,
		Queue:     queue,
		Repo:      repo,
		Snapshots: snapshots,

		IngestUC:   ingestUC,
		RebuildUC:  rebuildUC,
		RetrieveUC: retrieveUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
