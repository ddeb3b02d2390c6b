// Package bm25 implements the sparse (lexical) half of the retrieval
// engine: an in-memory inverted index scored with BM25 and persisted
// through an explicit versioned binary format.
//
// Tokenization lower-cases and splits on alphanumeric runs rather than
// bare whitespace, so punctuation next to a term ("stage," vs "stage")
// cannot break a match. No stemming is applied.
package bm25

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/careloop/discharge-assistant/internal/core/domain"
)

const (
	k1 = 1.2
	b  = 0.75
)

type posting struct {
	passage int32
	freq    int32
}

// Index is read-only after Build/Decode; concurrent queries are safe.
type Index struct {
	version  string
	passages []domain.Passage
	lengths  []int32
	avgLen   float64
	postings map[string][]posting
}

// Build derives all term statistics from the given corpus passages. The
// resulting index is only valid for that exact corpus version; rebuilding
// the corpus requires rebuilding the index.
func Build(version string, passages []domain.Passage) *Index {
	idx := &Index{
		version:  version,
		passages: append([]domain.Passage(nil), passages...),
		lengths:  make([]int32, len(passages)),
		postings: make(map[string][]posting),
	}

	totalLen := 0
	for i, p := range passages {
		tokens := Tokenize(p.Text)
		idx.lengths[i] = int32(len(tokens))
		totalLen += len(tokens)

		tf := make(map[string]int32, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for term, n := range tf {
			idx.postings[term] = append(idx.postings[term], posting{passage: int32(i), freq: n})
		}
	}
	if len(passages) > 0 {
		idx.avgLen = float64(totalLen) / float64(len(passages))
	}
	return idx
}

func (idx *Index) Version() string { return idx.version }

func (idx *Index) Count() int { return len(idx.passages) }

// QueryText scores passages against the query and returns at most k
// results in descending score order. Raw BM25 scores are min-max
// normalized to [0,1] over the query's full candidate set before
// truncation; a degenerate range (single candidate, or all candidates
// equal) maps every positive score to 1. A query with no matching term
// returns an empty slice, not an error.
func (idx *Index) QueryText(query string, k int) []domain.RetrievalResult {
	if k <= 0 || len(idx.passages) == 0 {
		return nil
	}
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	n := float64(len(idx.passages))
	scores := make(map[int32]float64)
	for _, term := range tokens {
		plist := idx.postings[term]
		if len(plist) == 0 {
			continue
		}
		df := float64(len(plist))
		inverseDocFreq := math.Log(1.0 + (n-df+0.5)/(df+0.5))
		for _, po := range plist {
			tf := float64(po.freq)
			norm := tf + k1*(1.0-b+b*float64(idx.lengths[po.passage])/idx.avgLen)
			scores[po.passage] += inverseDocFreq * tf * (k1 + 1.0) / norm
		}
	}
	if len(scores) == 0 {
		return nil
	}

	type candidate struct {
		passage int32
		raw     float64
	}
	candidates := make([]candidate, 0, len(scores))
	minRaw, maxRaw := math.Inf(1), math.Inf(-1)
	for p, s := range scores {
		candidates = append(candidates, candidate{passage: p, raw: s})
		minRaw = math.Min(minRaw, s)
		maxRaw = math.Max(maxRaw, s)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].raw != candidates[j].raw {
			return candidates[i].raw > candidates[j].raw
		}
		return candidates[i].passage < candidates[j].passage
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	scoreRange := maxRaw - minRaw
	out := make([]domain.RetrievalResult, 0, len(candidates))
	for _, c := range candidates {
		score := 0.0
		switch {
		case scoreRange > 0:
			score = (c.raw - minRaw) / scoreRange
		case c.raw > 0:
			score = 1.0
		}
		out = append(out, domain.RetrievalResult{
			Passage: idx.passages[c.passage],
			Score:   score,
			Method:  domain.MethodSparse,
		})
	}
	return out
}

// Tokenize lower-cases and splits on alphanumeric runs.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var sb strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			continue
		}
		if sb.Len() > 0 {
			out = append(out, sb.String())
			sb.Reset()
		}
	}
	if sb.Len() > 0 {
		out = append(out, sb.String())
	}
	return out
}
