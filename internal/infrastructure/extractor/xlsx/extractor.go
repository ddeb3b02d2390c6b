package xlsx

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/careloop/discharge-assistant/internal/core/domain"
	"github.com/careloop/discharge-assistant/internal/core/ports"
)

// Extractor flattens spreadsheet documents (medication schedules,
// follow-up calendars) into text. Each sheet becomes one page.
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

	book, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "xlsx.Extract",
			fmt.Errorf("parse spreadsheet %s: %w", doc.Filename, err))
	}
	defer book.Close()

	var pages []domain.PageText
	for sheetIdx, sheetName := range book.GetSheetList() {
		rows, err := book.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s of %s: %w", sheetName, doc.Filename, err)
		}

		var sb strings.Builder
		sb.WriteString(sheetName)
		sb.WriteString("\n")
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " "))
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}

		text := strings.TrimSpace(sb.String())
		if text == sheetName {
			continue
		}
		pages = append(pages, domain.PageText{Number: sheetIdx + 1, Text: text})
	}
	return pages, nil
}
