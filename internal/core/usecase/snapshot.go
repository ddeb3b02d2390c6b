package usecase

import (
	"errors"
	"sync/atomic"

	"github.com/careloop/discharge-assistant/internal/core/domain"
	"github.com/careloop/discharge-assistant/internal/core/ports"
)

// IndexSnapshot is one published index pair. Dense and sparse always
// belong to the same corpus version; a degraded snapshot carries only
// one half and the engine serves that method alone.
type IndexSnapshot struct {
	Version string
	Dense   ports.DenseQuerier
	Sparse  ports.SparseQuerier
}

// SnapshotRegistry publishes index pairs atomically. Readers either see
// the previous complete pair or the new complete pair, never a mix.
type SnapshotRegistry struct {
	current atomic.Pointer[IndexSnapshot]
}

func NewSnapshotRegistry() *SnapshotRegistry {
	return &SnapshotRegistry{}
}

func (r *SnapshotRegistry) Publish(snapshot *IndexSnapshot) error {
	if snapshot == nil {
		return errors.New("publish nil snapshot")
	}
	if snapshot.Dense == nil && snapshot.Sparse == nil {
		return errors.New("publish snapshot with no index")
	}
	r.current.Store(snapshot)
	return nil
}

// Current returns the active snapshot, or ErrNotReady before the first
// publish.
func (r *SnapshotRegistry) Current() (*IndexSnapshot, error) {
	snapshot := r.current.Load()
	if snapshot == nil {
		return nil, domain.WrapError(domain.ErrNotReady, "snapshot registry",
			errors.New("no index pair published"))
	}
	return snapshot, nil
}
