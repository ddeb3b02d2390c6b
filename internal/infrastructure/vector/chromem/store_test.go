package chromem

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/careloop/discharge-assistant/internal/core/domain"
)

func testCorpus() domain.Corpus {
	return domain.Corpus{
		Version: "v-test",
		Model:   "test-embedder",
		Passages: []domain.Passage{
			{ID: domain.PassageID("guide.pdf", 0), Ordinal: 0, Text: "take medication with food", Source: "guide.pdf", Page: 1},
			{ID: domain.PassageID("guide.pdf", 1), Ordinal: 1, Text: "call your care team if fever returns", Source: "guide.pdf", Page: 2, WordOffset: 5},
			{ID: domain.PassageID("guide.pdf", 2), Ordinal: 2, Text: "follow up appointment scheduling", Source: "guide.pdf", Page: 3},
		},
	}
}

func testVectors() [][]float32 {
	inv := float32(1 / math.Sqrt2)
	return [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{inv, inv, 0},
	}
}

func TestBuildCollectionAndQuery(t *testing.T) {
	store := NewInMemory("kb_test")
	ctx := context.Background()

	q, err := store.BuildCollection(ctx, testCorpus(), testVectors())
	if err != nil {
		t.Fatalf("BuildCollection() error = %v", err)
	}
	if q.Count() != 3 {
		t.Fatalf("expected 3 indexed passages, got %d", q.Count())
	}
	if q.Version() != "v-test" {
		t.Fatalf("expected version v-test, got %q", q.Version())
	}

	results, err := q.QueryVector(ctx, []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("QueryVector() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Passage.Ordinal != 0 {
		t.Fatalf("expected identical vector ranked first, got ordinal %d", results[0].Passage.Ordinal)
	}
	for i, r := range results {
		if r.Score < 0 || r.Score > 1 {
			t.Fatalf("score out of [0,1] at %d: %f", i, r.Score)
		}
		if r.Method != domain.MethodDense {
			t.Fatalf("expected dense method tag, got %s", r.Method)
		}
	}
	if results[0].Score < 0.99 {
		t.Fatalf("expected near-perfect score for identical vector, got %f", results[0].Score)
	}
}

func TestQueryVectorClampsCosineSimilarity(t *testing.T) {
	store := NewInMemory("kb_test")
	ctx := context.Background()

	corpus := domain.Corpus{
		Version: "v-test",
		Model:   "test-embedder",
		Passages: []domain.Passage{
			{ID: domain.PassageID("guide.pdf", 0), Ordinal: 0, Text: "aligned", Source: "guide.pdf", Page: 1},
			{ID: domain.PassageID("guide.pdf", 1), Ordinal: 1, Text: "orthogonal", Source: "guide.pdf", Page: 1},
			{ID: domain.PassageID("guide.pdf", 2), Ordinal: 2, Text: "opposite", Source: "guide.pdf", Page: 1},
		},
	}
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {-1, 0, 0}}

	q, err := store.BuildCollection(ctx, corpus, vectors)
	if err != nil {
		t.Fatalf("BuildCollection() error = %v", err)
	}

	results, err := q.QueryVector(ctx, []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("QueryVector() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Passage.Ordinal != 0 || results[0].Score < 0.99 {
		t.Fatalf("expected identical vector to score ~1, got %+v", results[0])
	}
	for _, r := range results[1:] {
		if r.Score > 1e-6 {
			t.Fatalf("expected non-positive similarity to score 0, got %f for %s", r.Score, r.Passage.ID)
		}
	}
}

func TestQueryVectorReconstructsPassageMetadata(t *testing.T) {
	store := NewInMemory("kb_test")
	ctx := context.Background()

	q, err := store.BuildCollection(ctx, testCorpus(), testVectors())
	if err != nil {
		t.Fatalf("BuildCollection() error = %v", err)
	}

	results, err := q.QueryVector(ctx, []float32{0, 1, 0}, 1)
	if err != nil {
		t.Fatalf("QueryVector() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	p := results[0].Passage
	if p.ID != domain.PassageID("guide.pdf", 1) || p.Source != "guide.pdf" || p.Page != 2 || p.WordOffset != 5 {
		t.Fatalf("passage metadata not round-tripped: %+v", p)
	}
	if p.Text != "call your care team if fever returns" {
		t.Fatalf("passage text not round-tripped: %q", p.Text)
	}
}

func TestQueryVectorClampsKToCollectionSize(t *testing.T) {
	store := NewInMemory("kb_test")
	ctx := context.Background()

	q, err := store.BuildCollection(ctx, testCorpus(), testVectors())
	if err != nil {
		t.Fatalf("BuildCollection() error = %v", err)
	}

	results, err := q.QueryVector(ctx, []float32{1, 0, 0}, 50)
	if err != nil {
		t.Fatalf("QueryVector() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected clamp to 3 stored passages, got %d", len(results))
	}
	if results, _ := q.QueryVector(ctx, []float32{1, 0, 0}, 0); results != nil {
		t.Fatalf("expected nil for k=0, got %+v", results)
	}
}

func TestBuildCollectionRejectsVectorMismatch(t *testing.T) {
	store := NewInMemory("kb_test")
	if _, err := store.BuildCollection(context.Background(), testCorpus(), testVectors()[:2]); err == nil {
		t.Fatalf("expected error for passage/vector count mismatch")
	}
}

func TestLoadCollectionMissingIsIndexInconsistency(t *testing.T) {
	store := NewInMemory("kb_test")
	ctx := context.Background()

	if _, err := store.BuildCollection(ctx, testCorpus(), testVectors()); err != nil {
		t.Fatalf("BuildCollection() error = %v", err)
	}

	if _, err := store.LoadCollection(ctx, "v-test", "test-embedder"); err != nil {
		t.Fatalf("expected load of built collection to succeed, got %v", err)
	}

	// Same corpus, different model: a distinct collection that was never built.
	_, err := store.LoadCollection(ctx, "v-test", "other-model")
	if !errors.Is(err, domain.ErrIndexInconsistency) {
		t.Fatalf("expected ErrIndexInconsistency, got %v", err)
	}
	if _, err := store.LoadCollection(ctx, "v-other", "test-embedder"); !errors.Is(err, domain.ErrIndexInconsistency) {
		t.Fatalf("expected ErrIndexInconsistency for unknown version, got %v", err)
	}
}
