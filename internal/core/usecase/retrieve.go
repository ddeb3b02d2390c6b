package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/careloop/discharge-assistant/internal/core/domain"
	"github.com/careloop/discharge-assistant/internal/core/ports"
)

// RetrievalConfig carries the deployment-tuned knobs of the engine.
type RetrievalConfig struct {
	DefaultK            int
	DenseWeight         float64
	SparseWeight        float64
	FusionStrategy      string
	RRFK                int
	CandidateMultiplier int
	GateThreshold       float64
	ContextThreshold    float64
	RerankEnabled       bool
	RerankTopN          int
}

func (c RetrievalConfig) normalize() RetrievalConfig {
	out := c
	if out.DefaultK <= 0 {
		out.DefaultK = 5
	}
	if out.DenseWeight <= 0 && out.SparseWeight <= 0 {
		out.DenseWeight = 0.7
		out.SparseWeight = 0.3
	}
	if out.FusionStrategy == "" {
		out.FusionStrategy = FusionWeighted
	}
	if out.CandidateMultiplier <= 1 {
		out.CandidateMultiplier = 2
	}
	return out
}

// RetrieveUseCase serves queries against the currently published index
// pair. It never blocks on rebuilds; a query sees whichever snapshot
// was current when it arrived.
type RetrieveUseCase struct {
	snapshots *SnapshotRegistry
	embedder  ports.Embedder
	cfg       RetrievalConfig
}

func NewRetrieveUseCase(snapshots *SnapshotRegistry, embedder ports.Embedder, cfg RetrievalConfig) *RetrieveUseCase {
	return &RetrieveUseCase{
		snapshots: snapshots,
		embedder:  embedder,
		cfg:       cfg.normalize(),
	}
}

func (uc *RetrieveUseCase) Retrieve(
	ctx context.Context,
	query string,
	k int,
	method domain.RetrievalMethod,
	threshold float64,
) ([]domain.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("empty query"))
	}
	if k <= 0 {
		k = uc.cfg.DefaultK
	}

	snapshot, err := uc.snapshots.Current()
	if err != nil {
		return nil, err
	}

	var results []domain.RetrievalResult
	switch method {
	case domain.MethodDense:
		results, err = uc.retrieveDense(ctx, snapshot, query, k)
	case domain.MethodSparse:
		results, err = uc.retrieveSparse(snapshot, query, k)
	case domain.MethodHybrid, "":
		results, err = uc.retrieveHybrid(ctx, snapshot, query, k)
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve",
			fmt.Errorf("unknown method %q", method))
	}
	if err != nil {
		return nil, err
	}

	return filterByThreshold(results, threshold), nil
}

func (uc *RetrieveUseCase) retrieveDense(ctx context.Context, snapshot *IndexSnapshot, query string, k int) ([]domain.RetrievalResult, error) {
	if snapshot.Dense == nil {
		return nil, domain.WrapError(domain.ErrNotReady, "retrieve dense",
			errors.New("dense index missing from snapshot"))
	}
	vector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := snapshot.Dense.QueryVector(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("dense query: %w", err)
	}
	return results, nil
}

func (uc *RetrieveUseCase) retrieveSparse(snapshot *IndexSnapshot, query string, k int) ([]domain.RetrievalResult, error) {
	if snapshot.Sparse == nil {
		return nil, domain.WrapError(domain.ErrNotReady, "retrieve sparse",
			errors.New("sparse index missing from snapshot"))
	}
	return snapshot.Sparse.QueryText(query, k), nil
}

// retrieveHybrid widens both candidate sets before fusing, so a passage
// ranked just below k by one retriever can still surface after fusion.
// With a degraded snapshot the single available method answers alone.
func (uc *RetrieveUseCase) retrieveHybrid(ctx context.Context, snapshot *IndexSnapshot, query string, k int) ([]domain.RetrievalResult, error) {
	wideK := k * uc.cfg.CandidateMultiplier

	if snapshot.Dense == nil {
		return uc.retrieveSparse(snapshot, query, k)
	}
	dense, err := uc.retrieveDense(ctx, snapshot, query, wideK)
	if err != nil {
		return nil, err
	}
	if snapshot.Sparse == nil {
		return trimCandidates(dense, k), nil
	}
	sparse := snapshot.Sparse.QueryText(query, wideK)

	var fused []domain.RetrievalResult
	switch uc.cfg.FusionStrategy {
	case FusionRRF:
		fused = fuseRRF(dense, sparse, uc.cfg.RRFK)
	default:
		fused = fuseWeighted(dense, sparse, uc.cfg.DenseWeight, uc.cfg.SparseWeight)
	}

	if uc.cfg.RerankEnabled {
		fused = rerankFusedHead(query, fused, uc.cfg.RerankTopN)
	}
	return trimCandidates(fused, k), nil
}

// HasRelevantInformation answers the routing question "can the knowledge
// base say anything useful here". An engine without a published snapshot
// reports no coverage rather than failing the caller.
func (uc *RetrieveUseCase) HasRelevantInformation(ctx context.Context, query string) (bool, error) {
	results, err := uc.Retrieve(ctx, query, 1, domain.MethodHybrid, 0)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotReady) {
			return false, nil
		}
		return false, err
	}
	if len(results) == 0 {
		return false, nil
	}
	return results[0].Score >= uc.cfg.GateThreshold, nil
}

// ContextForQuery renders retained passages for the answer agent, one
// citation header per passage.
func (uc *RetrieveUseCase) ContextForQuery(ctx context.Context, query string, k int) (string, error) {
	results, err := uc.Retrieve(ctx, query, k, domain.MethodHybrid, uc.cfg.ContextThreshold)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}

	blocks := make([]string, 0, len(results))
	for i, r := range results {
		blocks = append(blocks, fmt.Sprintf("[Source %d - Page %d, Relevance: %.2f, Method: %s]\n%s",
			i+1, r.Passage.Page, r.Score, r.Method, r.Passage.Text))
	}
	return strings.Join(blocks, "\n\n---\n\n"), nil
}

func filterByThreshold(results []domain.RetrievalResult, threshold float64) []domain.RetrievalResult {
	if threshold <= 0 {
		return results
	}
	out := make([]domain.RetrievalResult, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			out = append(out, r)
		}
	}
	return out
}
