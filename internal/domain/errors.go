package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared across the service. Handlers map these onto HTTP
// statuses; orchestrators decide retry eligibility by matching them
// with errors.Is.
var (
	// ErrInvalidInput marks bad caller-supplied data. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig marks bad tunables. Rejected at startup or at
	// request entry, before any work begins.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrEmbeddingUnavailable marks an embedding provider failure.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrGenerationUnavailable marks a generation provider failure.
	ErrGenerationUnavailable = errors.New("generation service unavailable")

	// ErrStoreUnavailable marks a vector store backend failure.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrTimeout marks an external call that exceeded its budget.
	// Treated like an unavailable dependency for retry purposes.
	ErrTimeout = errors.New("request timed out")

	// ErrDocumentNotFound marks a lookup of an unknown document id.
	ErrDocumentNotFound = errors.New("document not found")
)

// IsRetryable reports whether err is worth a bounded retry, i.e. an
// external dependency failure rather than a caller mistake.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable) ||
		errors.Is(err, ErrGenerationUnavailable) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IngestionError is the terminal per-document failure: it names the
// pipeline stage that failed and wraps the cause. The document row is
// left in state failed with the same stage and reason, and its vector
// records are rolled back.
type IngestionError struct {
	Stage  Stage
	Reason error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed at stage %s: %v", e.Stage, e.Reason)
}

func (e *IngestionError) Unwrap() error { return e.Reason }

// Stage is a step of the ingestion pipeline.
type Stage string

const (
	StageReceived  Stage = "received"
	StageExtracted Stage = "extracted"
	StageChunked   Stage = "chunked"
	StageEmbedded  Stage = "embedded"
	StageStored    Stage = "stored"
	StageComplete  Stage = "complete"
	StageFailed    Stage = "failed"
)
