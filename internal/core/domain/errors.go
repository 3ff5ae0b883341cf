package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrTemporary    = errors.New("temporary failure")

	// ErrChunkTooLarge rejects a semantic unit that exceeds the chunking
	// ceiling. Oversized input is refused, never truncated.
	ErrChunkTooLarge = errors.New("chunk too large")

	// ErrIndexUnavailable marks a lexical or vector index that cannot
	// serve queries. The search coordinator degrades instead of failing.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrCacheCorruption marks an entry that failed deserialization.
	// The entry is evicted and recomputed, never served as-is.
	ErrCacheCorruption = errors.New("cache entry corrupted")

	// ErrInvalidTransition rejects an out-of-order review state change.
	ErrInvalidTransition = errors.New("invalid review transition")

	// ErrAssignmentConflict is the compare-and-swap failure on claiming
	// a review task. Callers retry against the next candidate.
	ErrAssignmentConflict = errors.New("review assignment conflict")

	// ErrDuplicateActiveTask enforces at most one non-terminal review
	// task per analysis.
	ErrDuplicateActiveTask = errors.New("duplicate active review task")
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
