package bm25

import (
	"bytes"
	"context"
	"fmt"

	"github.com/careloop/discharge-assistant/internal/core/domain"
	"github.com/careloop/discharge-assistant/internal/core/ports"
)

// Store builds sparse indexes and persists them through object storage
// under a fixed key. It implements ports.SparseIndexer.
type Store struct {
	storage ports.ObjectStorage
	key     string
}

func NewStore(storage ports.ObjectStorage, key string) *Store {
	if key == "" {
		key = "sparse_index.kbsx"
	}
	return &Store{storage: storage, key: key}
}

func (s *Store) BuildIndex(version string, passages []domain.Passage) ports.SparseQuerier {
	return Build(version, passages)
}

func (s *Store) SaveIndex(ctx context.Context, index ports.SparseQuerier) error {
	idx, ok := index.(*Index)
	if !ok {
		return fmt.Errorf("save sparse index: unexpected index type %T", index)
	}

	var buf bytes.Buffer
	if err := idx.Encode(&buf); err != nil {
		return fmt.Errorf("encode sparse index: %w", err)
	}
	if err := s.storage.Save(ctx, s.key, &buf); err != nil {
		return fmt.Errorf("persist sparse index: %w", err)
	}
	return nil
}

func (s *Store) LoadIndex(ctx context.Context) (ports.SparseQuerier, error) {
	reader, err := s.storage.Open(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("open sparse index: %w", err)
	}
	defer reader.Close()

	idx, err := Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("decode sparse index: %w", err)
	}
	return idx, nil
}
