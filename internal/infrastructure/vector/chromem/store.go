// Package chromem adapts an embedded chromem-go vector database as the
// dense half of the retrieval engine. Collections are keyed by corpus
// version and embedding model, so a model change can never serve vectors
// built by a different model.
package chromem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"strconv"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/careloop/discharge-assistant/internal/core/domain"
	"github.com/careloop/discharge-assistant/internal/core/ports"
)

type Store struct {
	db   *chromemgo.DB
	base string
}

// New opens a persistent database rooted at path. Collection files
// survive process restarts, which is what makes RestoreLatest cheap.
func New(path, baseCollection string) (*Store, error) {
	db, err := chromemgo.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	return newStore(db, baseCollection), nil
}

// NewInMemory backs the store with a volatile database.
func NewInMemory(baseCollection string) *Store {
	return newStore(chromemgo.NewDB(), baseCollection)
}

func newStore(db *chromemgo.DB, baseCollection string) *Store {
	if baseCollection == "" {
		baseCollection = "kb_passages"
	}
	return &Store{db: db, base: baseCollection}
}

// collectionName folds corpus version and model id into the name, so
// stale collections are simply never looked up again.
func (s *Store) collectionName(version, model string) string {
	sum := sha256.Sum256([]byte(version + "\x00" + model))
	return s.base + "_" + hex.EncodeToString(sum[:6])
}

func (s *Store) BuildCollection(ctx context.Context, corpus domain.Corpus, vectors [][]float32) (ports.DenseQuerier, error) {
	if len(corpus.Passages) != len(vectors) {
		return nil, fmt.Errorf("passages/vectors mismatch: %d vs %d", len(corpus.Passages), len(vectors))
	}

	name := s.collectionName(corpus.Version, corpus.Model)
	// Drop any partial collection left behind by an interrupted build.
	_ = s.db.DeleteCollection(name)

	col, err := s.db.GetOrCreateCollection(name, map[string]string{
		"corpus_version": corpus.Version,
		"model":          corpus.Model,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}

	docs := make([]chromemgo.Document, 0, len(corpus.Passages))
	for i, p := range corpus.Passages {
		docs = append(docs, chromemgo.Document{
			ID:      p.ID,
			Content: p.Text,
			Metadata: map[string]string{
				"source":      p.Source,
				"page":        strconv.Itoa(p.Page),
				"ordinal":     strconv.Itoa(p.Ordinal),
				"word_offset": strconv.Itoa(p.WordOffset),
			},
			Embedding: vectors[i],
		})
	}
	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return nil, fmt.Errorf("add passages to %s: %w", name, err)
		}
	}
	return &collectionQuerier{col: col, version: corpus.Version}, nil
}

func (s *Store) LoadCollection(ctx context.Context, version, model string) (ports.DenseQuerier, error) {
	name := s.collectionName(version, model)
	col := s.db.GetCollection(name, nil)
	if col == nil {
		return nil, domain.WrapError(domain.ErrIndexInconsistency, "chromem.LoadCollection",
			fmt.Errorf("no collection for corpus %s model %s", version, model))
	}
	return &collectionQuerier{col: col, version: version}, nil
}

type collectionQuerier struct {
	col     *chromemgo.Collection
	version string
}

func (q *collectionQuerier) Version() string { return q.version }

func (q *collectionQuerier) Count() int { return q.col.Count() }

// QueryVector scores passages with cosine similarity clamped to [0,1].
// Non-positive similarity scores zero, so off-topic passages can land
// below the relevance gate threshold.
func (q *collectionQuerier) QueryVector(ctx context.Context, vector []float32, k int) ([]domain.RetrievalResult, error) {
	if k <= 0 {
		return nil, nil
	}
	count := q.col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := q.col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndexInconsistency, "chromem.QueryVector", err)
	}

	out := make([]domain.RetrievalResult, 0, len(results))
	for _, r := range results {
		out = append(out, domain.RetrievalResult{
			Passage: domain.Passage{
				ID:         r.ID,
				Ordinal:    metaInt(r.Metadata, "ordinal"),
				Text:       r.Content,
				Source:     r.Metadata["source"],
				Page:       metaInt(r.Metadata, "page"),
				WordOffset: metaInt(r.Metadata, "word_offset"),
			},
			Score:  clamp01(float64(r.Similarity)),
			Method: domain.MethodDense,
		})
	}
	return out, nil
}

func metaInt(meta map[string]string, key string) int {
	n, _ := strconv.Atoi(meta[key])
	return n
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
