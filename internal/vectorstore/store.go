// Package vectorstore defines the persistence contract for chunk
// embeddings: keyed upsert, nearest-neighbor query, and per-document
// deletion.
package vectorstore

import "context"

// Record is the persisted unit: one chunk's embedding together with
// its owning document, position, and source text. Key is globally
// unique and deterministic per (document, chunk index), so writing the
// same key twice replaces the prior record.
type Record struct {
	Key        uint64
	DocumentID string
	ChunkIndex int
	Vector     []float32
	Text       string
}

// Match is one query result: a record reference plus its similarity
// score. Higher scores are more similar.
type Match struct {
	Key        uint64
	DocumentID string
	ChunkIndex int
	Text       string
	Score      float32
}

// Store persists vector records and answers top-k similarity queries.
// Implementations must rank Query results by non-increasing score and
// keep a record's visible value a single complete write under
// concurrent access.
type Store interface {
	// Upsert writes one record, replacing any prior record with the
	// same key.
	Upsert(ctx context.Context, rec Record) error

	// UpsertBatch writes many records with the same semantics as
	// repeated Upsert calls.
	UpsertBatch(ctx context.Context, recs []Record) error

	// Query returns at most k matches ranked by descending score.
	// documentID, when non-empty, restricts matches to that document.
	// An empty store yields an empty result, not an error; k <= 0 is
	// an input error.
	Query(ctx context.Context, vector []float32, k int, documentID string) ([]Match, error)

	// DeleteByDocument removes all records belonging to the document.
	// Deleting a document with no records is a no-op.
	DeleteByDocument(ctx context.Context, documentID string) error

	// DeleteKeys removes the records with the given keys. Keys with no
	// record are skipped. Callers that know their keys (they are
	// deterministic per document and chunk index) use this to roll
	// back writes that no bookkeeping row points to yet.
	DeleteKeys(ctx context.Context, keys []uint64) error

	// Ping reports whether the store is usable.
	Ping(ctx context.Context) error

	Close() error
}
