package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/careloop/discharge-assistant/internal/core/domain"
	"github.com/careloop/discharge-assistant/internal/core/ports"
)

// RebuildIndexUseCase runs the offline half of the engine: it turns an
// ingested document into a new corpus version, builds both index halves
// off to the side, persists them, and atomically publishes the pair.
// In-flight queries keep serving the previous snapshot throughout.
type RebuildIndexUseCase struct {
	repo          ports.DocumentRepository
	passages      ports.PassageRepository
	extractor     ports.TextExtractor
	chunker       ports.Chunker
	embedder      ports.Embedder
	denseIndexer  ports.DenseIndexer
	sparseIndexer ports.SparseIndexer
	snapshots     *SnapshotRegistry

	embedBatchSize int
	logger         *slog.Logger
}

func NewRebuildIndexUseCase(
	repo ports.DocumentRepository,
	passages ports.PassageRepository,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	denseIndexer ports.DenseIndexer,
	sparseIndexer ports.SparseIndexer,
	snapshots *SnapshotRegistry,
	embedBatchSize int,
	logger *slog.Logger,
) *RebuildIndexUseCase {
	if embedBatchSize <= 0 {
		embedBatchSize = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RebuildIndexUseCase{
		repo:           repo,
		passages:       passages,
		extractor:      extractor,
		chunker:        chunker,
		embedder:       embedder,
		denseIndexer:   denseIndexer,
		sparseIndexer:  sparseIndexer,
		snapshots:      snapshots,
		embedBatchSize: embedBatchSize,
		logger:         logger,
	}
}

func (uc *RebuildIndexUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	status, err := uc.rebuild(ctx, documentID)
	if err != nil {
		if failErr := uc.repo.UpdateStatus(ctx, documentID, domain.StatusFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.UpdateStatus(ctx, documentID, status, ""); err != nil {
		return fmt.Errorf("set status=%s: %w", status, err)
	}
	return nil
}

func (uc *RebuildIndexUseCase) rebuild(ctx context.Context, documentID string) (domain.DocumentStatus, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("fetch document by id: %w", err)
	}

	pages, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	newPassages := uc.chunker.Chunk(doc.Filename, pages)

	assembled, err := uc.assembleCorpus(ctx, doc.Filename, newPassages)
	if err != nil {
		return "", err
	}
	if len(assembled) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "rebuild index",
			errors.New("corpus has no passages"))
	}

	corpus := domain.Corpus{
		Version:  corpusFingerprint(uc.embedder.ModelID(), assembled),
		Model:    uc.embedder.ModelID(),
		Passages: assembled,
	}

	if current, err := uc.snapshots.Current(); err == nil && current.Version == corpus.Version {
		uc.logger.Info("rebuild_skipped_unchanged", "document_id", documentID, "corpus_version", corpus.Version)
		return domain.StatusSkipped, nil
	}

	vectors, err := uc.embedCorpus(ctx, corpus)
	if err != nil {
		return "", err
	}

	dense, err := uc.denseIndexer.BuildCollection(ctx, corpus, vectors)
	if err != nil {
		return "", fmt.Errorf("build dense collection: %w", err)
	}
	sparse := uc.sparseIndexer.BuildIndex(corpus.Version, corpus.Passages)
	// The corpus row commits before the sparse file is overwritten: a
	// failure in between leaves the previous index blob intact.
	if err := uc.passages.ReplaceCorpus(ctx, corpus); err != nil {
		return "", fmt.Errorf("persist corpus: %w", err)
	}
	if err := uc.sparseIndexer.SaveIndex(ctx, sparse); err != nil {
		return "", fmt.Errorf("persist sparse index: %w", err)
	}

	if err := uc.snapshots.Publish(&IndexSnapshot{Version: corpus.Version, Dense: dense, Sparse: sparse}); err != nil {
		return "", fmt.Errorf("publish snapshot: %w", err)
	}
	uc.logger.Info("index_pair_published",
		"corpus_version", corpus.Version,
		"passages", len(corpus.Passages),
		"model", corpus.Model,
	)
	return domain.StatusReady, nil
}

// assembleCorpus merges the new document's passages with the retained
// passages of every other source in the latest corpus. Re-uploading a
// document replaces its passages instead of duplicating them.
func (uc *RebuildIndexUseCase) assembleCorpus(ctx context.Context, source string, newPassages []domain.Passage) ([]domain.Passage, error) {
	assembled := append([]domain.Passage(nil), newPassages...)

	latest, err := uc.passages.LatestVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest corpus version: %w", err)
	}
	if latest != "" {
		prior, err := uc.passages.LoadCorpus(ctx, latest)
		if err != nil {
			return nil, fmt.Errorf("load prior corpus: %w", err)
		}
		for _, p := range prior.Passages {
			if p.Source != source {
				assembled = append(assembled, p)
			}
		}
	}

	sort.Slice(assembled, func(i, j int) bool {
		return assembled[i].ID < assembled[j].ID
	})
	return assembled, nil
}

func (uc *RebuildIndexUseCase) embedCorpus(ctx context.Context, corpus domain.Corpus) ([][]float32, error) {
	vectors := make([][]float32, 0, len(corpus.Passages))
	for start := 0; start < len(corpus.Passages); start += uc.embedBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + uc.embedBatchSize
		if end > len(corpus.Passages) {
			end = len(corpus.Passages)
		}

		texts := make([]string, 0, end-start)
		for _, p := range corpus.Passages[start:end] {
			texts = append(texts, p.Text)
		}
		batch, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed passages %d..%d: %w", start, end, err)
		}
		vectors = append(vectors, batch...)
	}

	if len(vectors) != len(corpus.Passages) {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed corpus",
			fmt.Errorf("vectors/passages mismatch: %d/%d", len(vectors), len(corpus.Passages)))
	}
	return vectors, nil
}

// RestoreLatest reloads the newest persisted index pair. The API calls
// it at startup and on a refresh tick to pick up pairs published by the
// worker; a complete snapshot at the latest version makes it a no-op.
// If only one half loads consistently the engine publishes a degraded
// snapshot and serves that method alone rather than staying down.
func (uc *RebuildIndexUseCase) RestoreLatest(ctx context.Context) error {
	version, err := uc.passages.LatestVersion(ctx)
	if err != nil {
		return fmt.Errorf("latest corpus version: %w", err)
	}
	if version == "" {
		uc.logger.Info("restore_skipped_no_corpus")
		return nil
	}
	if current, err := uc.snapshots.Current(); err == nil &&
		current.Version == version && current.Dense != nil && current.Sparse != nil {
		return nil
	}

	corpus, err := uc.passages.LoadCorpus(ctx, version)
	if err != nil {
		return fmt.Errorf("load corpus %s: %w", version, err)
	}

	snapshot := &IndexSnapshot{Version: version}

	dense, denseErr := uc.denseIndexer.LoadCollection(ctx, version, corpus.Model)
	if denseErr == nil {
		snapshot.Dense = dense
	} else {
		uc.logger.Warn("restore_dense_failed", "corpus_version", version, "error", denseErr)
	}

	sparse, sparseErr := uc.sparseIndexer.LoadIndex(ctx)
	if sparseErr == nil {
		if sparse.Version() == version {
			snapshot.Sparse = sparse
		} else {
			sparseErr = domain.WrapError(domain.ErrIndexInconsistency, "restore sparse",
				fmt.Errorf("sparse index version %s, corpus %s", sparse.Version(), version))
			uc.logger.Warn("restore_sparse_version_mismatch", "sparse_version", sparse.Version(), "corpus_version", version)
		}
	} else {
		uc.logger.Warn("restore_sparse_failed", "corpus_version", version, "error", sparseErr)
	}

	if snapshot.Dense == nil && snapshot.Sparse == nil {
		return fmt.Errorf("restore corpus %s: dense: %v; sparse: %v", version, denseErr, sparseErr)
	}
	if snapshot.Dense == nil || snapshot.Sparse == nil {
		uc.logger.Warn("restored_degraded_snapshot",
			"corpus_version", version,
			"dense", snapshot.Dense != nil,
			"sparse", snapshot.Sparse != nil,
		)
	}
	return uc.snapshots.Publish(snapshot)
}

// corpusFingerprint hashes the embedding model id and every passage
// text in corpus order. Identical content with identical parameters
// always maps to the same version, which is what makes skip-if-unchanged
// and dense/sparse consistency checks possible.
func corpusFingerprint(model string, passages []domain.Passage) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	for _, p := range passages {
		h.Write([]byte(p.ID))
		h.Write([]byte{0})
		h.Write([]byte(p.Text))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
