package application

import (
	"errors"
	"fmt"

	"valutatrade-hub/internal/domain"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrAllSourcesFailed = errors.New("all rate sources failed")
)

// SourceFailure records one upstream failing during a refresh batch.
// Partial success is valid; failures are reported alongside the merge.
type SourceFailure struct {
	Source domain.Source
	Reason string
}

func (f SourceFailure) Error() string {
	return fmt.Sprintf("source %s failed: %s", f.Source, f.Reason)
}
