package plaintext

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/careloop/discharge-assistant/internal/core/domain"
	"github.com/careloop/discharge-assistant/internal/core/ports"
)

// Extractor reads UTF-8 text documents. Form feeds split pages, which
// is how plain-text exports of discharge summaries mark page breaks.
type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) ([]domain.PageText, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}

	if !utf8.Valid(raw) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "plaintext.Extract",
			fmt.Errorf("not valid UTF-8 text: %s", doc.Filename))
	}

	var pages []domain.PageText
	for i, chunk := range strings.Split(string(raw), "\f") {
		text := strings.TrimSpace(chunk)
		if text == "" {
			continue
		}
		pages = append(pages, domain.PageText{Number: i + 1, Text: text})
	}
	return pages, nil
}
