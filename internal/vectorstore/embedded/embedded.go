// Package embedded implements the vector store contract on top of
// vecgo, an embedded vector database. Records live under a local data
// directory and survive restarts via vecgo's write-ahead log.
package embedded

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/hupe1980/vecgo/distance"
	"github.com/hupe1980/vecgo/engine"
	"github.com/hupe1980/vecgo/metadata"
	vmodel "github.com/hupe1980/vecgo/model"

	"docquery/internal/domain"
	"docquery/internal/vectorstore"
)

const (
	metaDocumentID = "document_id"
	metaChunkIndex = "chunk_index"
)

// KeyResolver resolves the record keys belonging to a document. The
// chunk repository implements it; tests use an in-memory map.
type KeyResolver interface {
	ListRecordKeys(ctx context.Context, documentID string) ([]uint64, error)
}

// Store is a vecgo-backed vectorstore.Store using cosine similarity.
type Store struct {
	eng    *engine.Engine
	keys   KeyResolver
	closed atomic.Bool
}

var _ vectorstore.Store = (*Store)(nil)

// Open creates or reopens the store under dir. The dimension must
// match the embedding model's output and is fixed for the lifetime of
// the data directory.
func Open(dir string, dimension int, keys KeyResolver) (*Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", domain.ErrInvalidConfig, dimension)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create store dir: %v", domain.ErrStoreUnavailable, err)
	}
	eng, err := engine.Open(dir, dimension, distance.MetricCosine)
	if err != nil {
		return nil, fmt.Errorf("%w: open vecgo engine: %v", domain.ErrStoreUnavailable, err)
	}
	return &Store{eng: eng, keys: keys}, nil
}

func (s *Store) Upsert(ctx context.Context, rec vectorstore.Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: upsert canceled: %v", domain.ErrTimeout, err)
	}
	err := s.eng.Insert(vmodel.PrimaryKey(rec.Key), rec.Vector, recordMetadata(rec), []byte(rec.Text))
	if err != nil {
		return storeFailure("upsert record", err)
	}
	return nil
}

func (s *Store) UpsertBatch(ctx context.Context, recs []vectorstore.Record) error {
	if len(recs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: upsert canceled: %v", domain.ErrTimeout, err)
	}
	batch := make([]vmodel.Record, len(recs))
	for i, rec := range recs {
		batch[i] = vmodel.Record{
			PK:       vmodel.PrimaryKey(rec.Key),
			Vector:   rec.Vector,
			Metadata: recordMetadata(rec),
			Payload:  []byte(rec.Text),
		}
	}
	if err := s.eng.BatchInsert(batch); err != nil {
		return storeFailure("upsert batch", err)
	}
	if err := s.eng.Flush(); err != nil {
		return storeFailure("flush after batch", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vector []float32, k int, documentID string) ([]vectorstore.Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidInput, k)
	}

	opts := []func(*vmodel.SearchOptions){engine.WithPayload(), engine.WithMetadata()}
	if documentID != "" {
		fs := metadata.NewFilterSet(metadata.Filter{
			Key:      metaDocumentID,
			Operator: metadata.OpEqual,
			Value:    metadata.String(documentID),
		})
		opts = append(opts, engine.WithFilter(fs))
	}

	candidates, err := s.eng.Search(ctx, vector, k, opts...)
	if err != nil {
		return nil, storeFailure("query", err)
	}

	matches := make([]vectorstore.Match, 0, len(candidates))
	for _, c := range candidates {
		m := vectorstore.Match{
			Key:   uint64(c.PK),
			Text:  string(c.Payload),
			Score: c.Score,
		}
		m.DocumentID, m.ChunkIndex = parseRecordMetadata(c.Metadata, uint64(c.PK))
		matches = append(matches, m)
	}
	return matches, nil
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	keys, err := s.keys.ListRecordKeys(ctx, documentID)
	if err != nil {
		return fmt.Errorf("resolve record keys failed: %w", err)
	}
	return s.DeleteKeys(ctx, keys)
}

func (s *Store) DeleteKeys(ctx context.Context, keys []uint64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: delete canceled: %v", domain.ErrTimeout, err)
	}
	for _, key := range keys {
		if err := s.eng.Delete(vmodel.PrimaryKey(key)); err != nil {
			if errors.Is(err, engine.ErrNotFound) {
				continue
			}
			return storeFailure("delete record", err)
		}
	}
	if len(keys) > 0 {
		if err := s.eng.Flush(); err != nil {
			return storeFailure("flush after delete", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return fmt.Errorf("%w: store closed", domain.ErrStoreUnavailable)
	}
	return nil
}

func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.eng.Flush(); err != nil {
		return fmt.Errorf("flush on close failed: %w", err)
	}
	if err := s.eng.Close(); err != nil {
		return fmt.Errorf("close vecgo engine failed: %w", err)
	}
	return nil
}

func recordMetadata(rec vectorstore.Record) map[string]interface{} {
	return map[string]interface{}{
		metaDocumentID: rec.DocumentID,
		metaChunkIndex: rec.ChunkIndex,
	}
}

// parseRecordMetadata recovers the document reference from stored
// metadata. The chunk index falls back to the key's low bits when the
// metadata value came back as an unexpected type.
func parseRecordMetadata(md map[string]interface{}, key uint64) (string, int) {
	docID := ""
	chunkIndex := int(uint32(key))
	if md == nil {
		return docID, chunkIndex
	}
	if v, ok := md[metaDocumentID].(string); ok {
		docID = v
	}
	switch v := md[metaChunkIndex].(type) {
	case int:
		chunkIndex = v
	case int64:
		chunkIndex = int(v)
	case float64:
		chunkIndex = int(v)
	}
	return docID, chunkIndex
}

func storeFailure(what string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %v", domain.ErrTimeout, what, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, what, err)
}
