package bm25

import (
	"reflect"
	"testing"

	"github.com/careloop/discharge-assistant/internal/core/domain"
)

func corpusPassages(texts ...string) []domain.Passage {
	out := make([]domain.Passage, 0, len(texts))
	for i, t := range texts {
		out = append(out, domain.Passage{
			ID:      domain.PassageID("kb.pdf", i),
			Ordinal: i,
			Text:    t,
			Source:  "kb.pdf",
			Page:    1,
		})
	}
	return out
}

func TestQueryTextLexicalOverlapScoresPositive(t *testing.T) {
	idx := Build("v1", corpusPassages("chronic kidney disease stage 3 management"))

	results := idx.QueryText("CKD stage 3", 5)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Score <= 0 {
		t.Fatalf("expected positive score for lexical overlap, got %f", results[0].Score)
	}
	if results[0].Method != domain.MethodSparse {
		t.Fatalf("expected sparse method tag, got %s", results[0].Method)
	}
}

func TestQueryTextNoMatchReturnsEmpty(t *testing.T) {
	idx := Build("v1", corpusPassages(
		"chronic kidney disease stage 3 management",
		"dietary sodium restriction guidance",
	))

	if results := idx.QueryText("spacecraft propulsion", 5); len(results) != 0 {
		t.Fatalf("expected empty result for unmatched query, got %d", len(results))
	}
	if results := idx.QueryText("", 5); len(results) != 0 {
		t.Fatalf("expected empty result for empty query, got %d", len(results))
	}
}

func TestQueryTextScoresNormalizedToUnitRange(t *testing.T) {
	idx := Build("v1", corpusPassages(
		"kidney kidney kidney kidney disease",
		"kidney disease stage three",
		"blood pressure and kidney",
		"unrelated cardiology content",
	))

	results := idx.QueryText("kidney disease", 10)
	if len(results) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(results))
	}
	for i, r := range results {
		if r.Score < 0 || r.Score > 1 {
			t.Fatalf("score out of [0,1] at %d: %f", i, r.Score)
		}
		if i > 0 && results[i-1].Score < r.Score {
			t.Fatalf("results not in descending score order at %d", i)
		}
	}
	if results[0].Score != 1.0 {
		t.Fatalf("expected top candidate min-max normalized to 1.0, got %f", results[0].Score)
	}
}

func TestQueryTextKBound(t *testing.T) {
	idx := Build("v1", corpusPassages(
		"kidney one", "kidney two", "kidney three", "kidney four",
	))

	if got := len(idx.QueryText("kidney", 2)); got != 2 {
		t.Fatalf("expected k=2 results, got %d", got)
	}
	// Fewer candidates than k is not padded.
	if got := len(idx.QueryText("kidney", 9)); got != 4 {
		t.Fatalf("expected all 4 candidates, got %d", got)
	}
}

func TestQueryTextDeterministic(t *testing.T) {
	idx := Build("v1", corpusPassages(
		"stage three kidney disease",
		"stage four kidney disease",
		"stage five kidney disease",
	))

	first := idx.QueryText("stage kidney", 3)
	second := idx.QueryText("stage kidney", 3)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results across calls\nfirst=%+v\nsecond=%+v", first, second)
	}
}

func TestQueryTextRewardsRareTerms(t *testing.T) {
	idx := Build("v1", corpusPassages(
		"kidney disease overview kidney disease basics",
		"kidney disease dialysis preparation",
		"kidney disease transplant evaluation",
	))

	results := idx.QueryText("kidney dialysis", 3)
	if len(results) == 0 {
		t.Fatalf("expected candidates")
	}
	if results[0].Passage.Ordinal != 1 {
		t.Fatalf("expected passage with rare term first, got ordinal %d", results[0].Passage.Ordinal)
	}
}

func TestTokenizeStripsPunctuationAndLowercases(t *testing.T) {
	got := Tokenize("Stage-3 CKD, (chronic)!")
	want := []string{"stage", "3", "ckd", "chronic"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokenize() = %v, want %v", got, want)
	}
}
