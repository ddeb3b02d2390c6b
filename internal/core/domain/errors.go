package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady means a query arrived before any index pair was built or
	// loaded. Recoverable by retrying after a rebuild completes.
	ErrNotReady = errors.New("index not ready")

	// ErrIndexInconsistency means the dense and sparse halves disagree on
	// corpus version. The engine degrades to the valid half instead of fusing.
	ErrIndexInconsistency = errors.New("index pair inconsistent")

	// ErrEmbedding is a per-query embedding failure. Retryable; never folded
	// into an empty result so callers can tell "no match" from "broken".
	ErrEmbedding = errors.New("embedding failure")

	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
