// Package app holds the orchestrators that drive the ingestion and
// question answering pipelines. They depend on narrow interfaces so
// the external services behind them can be faked in tests.
package app

import (
	"context"

	"docquery/internal/cache"
	"docquery/internal/domain"
	"docquery/internal/model"
)

// EmbeddingGateway converts text into vectors.
type EmbeddingGateway interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerationGateway produces an answer from a system prompt and a user
// prompt.
type GenerationGateway interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// EventPublisher emits ingestion lifecycle events. Publish failures
// are logged and swallowed; the audit trail is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event model.IngestionEvent) error
}

// AnswerCache stores answered questions keyed by their inputs.
type AnswerCache interface {
	Key(question string, k int, documentID string) string
	Get(ctx context.Context, key string) (*cache.CachedAnswer, error)
	Set(ctx context.Context, key string, answer cache.CachedAnswer) error
}

// DocumentRepo is the bookkeeping store for document rows.
type DocumentRepo interface {
	Create(doc *model.Document) error
	GetByPublicID(publicID string) (*model.Document, error)
	List() ([]model.Document, error)
	SetState(id uint, state domain.Stage) error
	SetComplete(id uint, chunkCount int) error
	SetFailed(id uint, stage domain.Stage, reason string) error
	DeleteByPublicID(publicID string) error
}

// ChunkRepo is the bookkeeping store for chunk rows.
type ChunkRepo interface {
	Replace(documentID uint, chunks []model.Chunk) error
	ListByPublicID(publicID string) ([]model.Chunk, error)
	DeleteByDocumentID(documentID uint) error
}

// EventRepo reads back the persisted ingestion events.
type EventRepo interface {
	ListByDocumentID(documentID string) ([]model.IngestionEvent, error)
}
