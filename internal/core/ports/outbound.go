package ports

import (
	"context"
	"io"

	"github.com/careloop/discharge-assistant/internal/core/domain"
)

// DocumentRepository persists source document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
}

// PassageRepository persists the corpus a published index pair was built
// over, keyed by corpus version. ReplaceCorpus swaps the stored corpus
// transactionally so a failed rebuild never leaves a partial overwrite.
type PassageRepository interface {
	ReplaceCorpus(ctx context.Context, corpus domain.Corpus) error
	LoadCorpus(ctx context.Context, version string) (domain.Corpus, error)
	LatestVersion(ctx context.Context) (string, error)
}

// ObjectStorage stores raw source documents and index snapshots.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue carries ingestion events from the API to the worker.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts page-structured plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) ([]domain.PageText, error)
}

// Chunker splits extracted pages into retrieval passages.
type Chunker interface {
	Chunk(source string, pages []domain.PageText) []domain.Passage
}

// Embedder builds vectors for passages and query text with one fixed model.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	ModelID() string
}

// DenseQuerier is a read-only handle to one built dense collection.
// Scores returned by QueryVector are normalized to [0,1].
type DenseQuerier interface {
	QueryVector(ctx context.Context, vector []float32, k int) ([]domain.RetrievalResult, error)
	Version() string
	Count() int
}

// DenseIndexer builds and loads dense collections keyed by corpus version.
type DenseIndexer interface {
	BuildCollection(ctx context.Context, corpus domain.Corpus, vectors [][]float32) (DenseQuerier, error)
	LoadCollection(ctx context.Context, version, model string) (DenseQuerier, error)
}

// SparseQuerier is a read-only handle to one built sparse (lexical) index.
// QueryText returns scores min-max normalized to [0,1] over the query's
// candidate set; no matching term yields an empty slice, not an error.
type SparseQuerier interface {
	QueryText(query string, k int) []domain.RetrievalResult
	Version() string
	Count() int
}

// SparseIndexer builds, persists and restores the sparse index.
type SparseIndexer interface {
	BuildIndex(version string, passages []domain.Passage) SparseQuerier
	SaveIndex(ctx context.Context, index SparseQuerier) error
	LoadIndex(ctx context.Context) (SparseQuerier, error)
}
