package usecase

import (
	"sort"

	"github.com/careloop/discharge-assistant/internal/core/domain"
)

// Fusion strategies for hybrid retrieval. Weighted is the default;
// RRF is kept as a diagnostics alternative.
const (
	FusionWeighted = "weighted"
	FusionRRF      = "rrf"
)

type fusedCandidate struct {
	passage  domain.Passage
	dense    float64
	sparse   float64
	combined float64
}

// fuseWeighted combines the two candidate lists by passage id with
// score = denseWeight*dense + sparseWeight*sparse. A passage seen by
// only one retriever contributes 0.0 for the missing side. Ties break
// on higher dense score, then lower passage id.
func fuseWeighted(dense, sparse []domain.RetrievalResult, denseWeight, sparseWeight float64) []domain.RetrievalResult {
	acc := make(map[string]*fusedCandidate, len(dense)+len(sparse))
	order := make([]string, 0, len(dense)+len(sparse))

	merge := func(results []domain.RetrievalResult, isDense bool) {
		for _, r := range results {
			c, ok := acc[r.Passage.ID]
			if !ok {
				c = &fusedCandidate{passage: r.Passage}
				acc[r.Passage.ID] = c
				order = append(order, r.Passage.ID)
			}
			if isDense {
				c.dense = r.Score
			} else {
				c.sparse = r.Score
			}
		}
	}
	merge(dense, true)
	merge(sparse, false)

	out := make([]domain.RetrievalResult, 0, len(order))
	for _, id := range order {
		c := acc[id]
		c.combined = denseWeight*c.dense + sparseWeight*c.sparse
		out = append(out, domain.RetrievalResult{
			Passage: c.passage,
			Score:   c.combined,
			Method:  domain.MethodHybrid,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		di := acc[out[i].Passage.ID].dense
		dj := acc[out[j].Passage.ID].dense
		if di != dj {
			return di > dj
		}
		return out[i].Passage.ID < out[j].Passage.ID
	})
	return out
}

// fuseRRF ranks by reciprocal rank instead of score magnitude. Scores
// are rank-derived and not comparable with the weighted scale, so
// thresholds are best left at zero when this strategy is selected.
func fuseRRF(dense, sparse []domain.RetrievalResult, rrfK int) []domain.RetrievalResult {
	if rrfK <= 0 {
		rrfK = 60
	}

	acc := make(map[string]*fusedCandidate, len(dense)+len(sparse))
	order := make([]string, 0, len(dense)+len(sparse))
	addList := func(results []domain.RetrievalResult) {
		for rank, r := range results {
			c, ok := acc[r.Passage.ID]
			if !ok {
				c = &fusedCandidate{passage: r.Passage}
				acc[r.Passage.ID] = c
				order = append(order, r.Passage.ID)
			}
			c.combined += 1.0 / float64(rrfK+rank+1)
		}
	}
	addList(dense)
	addList(sparse)

	out := make([]domain.RetrievalResult, 0, len(order))
	for _, id := range order {
		out = append(out, domain.RetrievalResult{
			Passage: acc[id].passage,
			Score:   acc[id].combined,
			Method:  domain.MethodHybrid,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Passage.ID < out[j].Passage.ID
	})
	return out
}

func trimCandidates(results []domain.RetrievalResult, limit int) []domain.RetrievalResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}
