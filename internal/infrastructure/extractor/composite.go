// Package extractor routes stored documents to a format-specific text
// extractor based on filename extension.
package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/careloop/discharge-assistant/internal/core/domain"
	"github.com/careloop/discharge-assistant/internal/core/ports"
)

type Composite struct {
	byExt map[string]ports.TextExtractor
}

// NewComposite builds a dispatcher over extension-keyed extractors,
// e.g. ".pdf" or ".txt". Keys are matched case-insensitively.
func NewComposite(byExt map[string]ports.TextExtractor) *Composite {
	normalized := make(map[string]ports.TextExtractor, len(byExt))
	for ext, ex := range byExt {
		normalized[strings.ToLower(ext)] = ex
	}
	return &Composite{byExt: normalized}
}

func (c *Composite) Extract(ctx context.Context, doc *domain.Document) ([]domain.PageText, error) {
	ext := strings.ToLower(filepath.Ext(doc.Filename))
	ex, ok := c.byExt[ext]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extractor.Extract",
			fmt.Errorf("unsupported document format %q", ext))
	}
	return ex.Extract(ctx, doc)
}

// SupportedExtensions lists registered extensions for upload validation.
func (c *Composite) SupportedExtensions() []string {
	out := make([]string, 0, len(c.byExt))
	for ext := range c.byExt {
		out = append(out, ext)
	}
	return out
}
