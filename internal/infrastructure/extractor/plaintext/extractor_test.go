package plaintext

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/careloop/discharge-assistant/internal/core/domain"
)

type stubStorage struct {
	data map[string][]byte
}

func (s *stubStorage) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if s.data == nil {
		s.data = map[string][]byte{}
	}
	s.data[key] = raw
	return nil
}

func (s *stubStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := s.data[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func TestExtractSplitsPagesOnFormFeed(t *testing.T) {
	storage := &stubStorage{data: map[string][]byte{
		"doc": []byte("take medication with food\f\fcall the clinic if fever returns\f"),
	}}
	ex := NewExtractor(storage)

	pages, err := ex.Extract(context.Background(), &domain.Document{Filename: "summary.txt", StoragePath: "doc"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 non-empty pages, got %d", len(pages))
	}
	if pages[0].Number != 1 || pages[0].Text != "take medication with food" {
		t.Fatalf("unexpected first page: %+v", pages[0])
	}
	if pages[1].Number != 3 || pages[1].Text != "call the clinic if fever returns" {
		t.Fatalf("expected original page number kept across blank page, got %+v", pages[1])
	}
}

func TestExtractSinglePageWithoutFormFeed(t *testing.T) {
	storage := &stubStorage{data: map[string][]byte{
		"doc": []byte("  weigh yourself daily  "),
	}}
	ex := NewExtractor(storage)

	pages, err := ex.Extract(context.Background(), &domain.Document{Filename: "notes.txt", StoragePath: "doc"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(pages) != 1 || pages[0].Text != "weigh yourself daily" {
		t.Fatalf("unexpected pages: %+v", pages)
	}
}

func TestExtractRejectsBinaryContent(t *testing.T) {
	storage := &stubStorage{data: map[string][]byte{
		"doc": {0xFF, 0xFE, 0x00, 0x01},
	}}
	ex := NewExtractor(storage)

	_, err := ex.Extract(context.Background(), &domain.Document{Filename: "scan.bin", StoragePath: "doc"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for binary content, got %v", err)
	}
}

func TestExtractEmptyDocumentYieldsNoPages(t *testing.T) {
	storage := &stubStorage{data: map[string][]byte{"doc": []byte("   \n \f  ")}}
	ex := NewExtractor(storage)

	pages, err := ex.Extract(context.Background(), &domain.Document{Filename: "empty.txt", StoragePath: "doc"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(pages) != 0 {
		t.Fatalf("expected no pages, got %+v", pages)
	}
}
