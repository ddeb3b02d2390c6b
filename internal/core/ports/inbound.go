package ports

import (
	"context"
	"io"

	"github.com/careloop/discharge-assistant/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// IndexRebuilder is the inbound contract for asynchronous index rebuilds.
type IndexRebuilder interface {
	ProcessByID(ctx context.Context, documentID string) error
	RestoreLatest(ctx context.Context) error
}

// KnowledgeRetriever is the inbound contract of the retrieval engine.
type KnowledgeRetriever interface {
	// Retrieve returns at most k passages ranked by the requested method,
	// excluding any scoring below threshold. Zero candidates is an empty
	// slice, never an error.
	Retrieve(ctx context.Context, query string, k int, method domain.RetrievalMethod, threshold float64) ([]domain.RetrievalResult, error)

	// HasRelevantInformation is the coarse routing gate: top-1 combined
	// score against the configured gate threshold.
	HasRelevantInformation(ctx context.Context, query string) (bool, error)

	// ContextForQuery formats retained passages with per-passage citations
	// for the downstream answer agent. Empty string when nothing clears the
	// context threshold.
	ContextForQuery(ctx context.Context, query string, k int) (string, error)
}
