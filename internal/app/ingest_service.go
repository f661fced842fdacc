package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docquery/internal/chunker"
	"docquery/internal/config"
	"docquery/internal/domain"
	"docquery/internal/model"
	"docquery/internal/pkg/keylock"
	"docquery/internal/vectorstore"
)

// IngestInput is one document to ingest. DocumentID, when set, names
// an existing document to re-ingest in place; its prior chunks and
// vector records are replaced.
type IngestInput struct {
	DocumentID string
	Name       string
	Content    string
}

// IngestService runs the ingestion pipeline: chunk, embed, store, and
// keep the bookkeeping rows in step. Runs for the same document are
// serialized; different documents proceed concurrently.
type IngestService struct {
	docs      DocumentRepo
	chunks    ChunkRepo
	events    EventRepo
	store     vectorstore.Store
	embedder  EmbeddingGateway
	publisher EventPublisher
	locks     *keylock.KeyLock
	cfg       config.RAGConfig
}

func NewIngestService(
	docs DocumentRepo,
	chunks ChunkRepo,
	events EventRepo,
	store vectorstore.Store,
	embedder EmbeddingGateway,
	publisher EventPublisher,
	cfg config.RAGConfig,
) *IngestService {
	return &IngestService{
		docs:      docs,
		chunks:    chunks,
		events:    events,
		store:     store,
		embedder:  embedder,
		publisher: publisher,
		locks:     keylock.New(),
		cfg:       cfg,
	}
}

// Ingest runs the full pipeline for one document and returns the final
// document row. On failure the document is left in state failed with
// the failing stage recorded, and any vector records written for it
// are removed, so the store never serves a half-ingested document.
func (s *IngestService) Ingest(ctx context.Context, in IngestInput) (*model.Document, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Content = strings.TrimSpace(in.Content)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: document name must not be empty", domain.ErrInvalidInput)
	}
	if in.Content == "" {
		return nil, fmt.Errorf("%w: document content must not be empty", domain.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.RequestTimeoutSeconds)*time.Second)
	defer cancel()

	doc, err := s.prepareDocument(in)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(doc.PublicID)
	defer s.locks.Unlock(doc.PublicID)

	s.emit(ctx, doc.PublicID, domain.StageReceived, in.Name)

	if err := s.run(ctx, doc, in.Content); err != nil {
		return nil, err
	}

	final, err := s.docs.GetByPublicID(doc.PublicID)
	if err != nil {
		return nil, err
	}
	return final, nil
}

// prepareDocument creates the bookkeeping row, or resets an existing
// one for re-ingestion.
func (s *IngestService) prepareDocument(in IngestInput) (*model.Document, error) {
	if in.DocumentID != "" {
		doc, err := s.docs.GetByPublicID(in.DocumentID)
		if err != nil {
			return nil, err
		}
		if err := s.docs.SetState(doc.ID, domain.StageReceived); err != nil {
			return nil, err
		}
		doc.State = domain.StageReceived
		return doc, nil
	}

	doc := &model.Document{
		PublicID: uuid.NewString(),
		Name:     in.Name,
		State:    domain.StageReceived,
	}
	if err := s.docs.Create(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *IngestService) run(ctx context.Context, doc *model.Document, content string) error {
	if err := s.advance(ctx, doc, domain.StageExtracted, fmt.Sprintf("%d chars", len([]rune(content)))); err != nil {
		return s.fail(ctx, doc, domain.StageExtracted, 0, err)
	}

	pieces, err := chunker.Split(content, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if err != nil {
		return s.fail(ctx, doc, domain.StageChunked, 0, err)
	}
	if len(pieces) == 0 {
		return s.fail(ctx, doc, domain.StageChunked, 0, fmt.Errorf("%w: no chunks produced", domain.ErrInvalidInput))
	}
	if err := s.advance(ctx, doc, domain.StageChunked, fmt.Sprintf("%d chunks", len(pieces))); err != nil {
		return s.fail(ctx, doc, domain.StageChunked, 0, err)
	}

	vectors, err := s.embedAll(ctx, pieces)
	if err != nil {
		return s.fail(ctx, doc, domain.StageEmbedded, 0, err)
	}
	if err := s.advance(ctx, doc, domain.StageEmbedded, fmt.Sprintf("%d vectors", len(vectors))); err != nil {
		return s.fail(ctx, doc, domain.StageEmbedded, 0, err)
	}

	if err := s.storeAll(ctx, doc, pieces, vectors); err != nil {
		return s.fail(ctx, doc, domain.StageStored, len(pieces), err)
	}
	if err := s.advance(ctx, doc, domain.StageStored, ""); err != nil {
		return s.fail(ctx, doc, domain.StageStored, len(pieces), err)
	}

	if err := s.docs.SetComplete(doc.ID, len(pieces)); err != nil {
		return s.fail(ctx, doc, domain.StageComplete, len(pieces), err)
	}
	s.emit(ctx, doc.PublicID, domain.StageComplete, fmt.Sprintf("%d chunks", len(pieces)))
	return nil
}

// embedAll embeds the chunk texts in fixed-size batches, running the
// batches concurrently. The result slice is index-aligned with pieces.
func (s *IngestService) embedAll(ctx context.Context, pieces []chunker.Chunk) ([][]float32, error) {
	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Text
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	for offset := 0; offset < len(texts); offset += s.cfg.EmbedBatchSize {
		start := offset
		end := start + s.cfg.EmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			var batch [][]float32
			err := withRetry(gctx, s.cfg.RetryAttempts, func(ctx context.Context) error {
				var err error
				batch, err = s.embedder.EmbedBatch(ctx, texts[start:end])
				return err
			})
			if err != nil {
				return err
			}
			if len(batch) != end-start {
				return fmt.Errorf("%w: got %d vectors for %d chunks", domain.ErrEmbeddingUnavailable, len(batch), end-start)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w: missing vector for chunk %d", domain.ErrEmbeddingUnavailable, i)
		}
	}
	return vectors, nil
}

// storeAll replaces the document's vector records and chunk rows with
// the new ingestion run's output.
func (s *IngestService) storeAll(ctx context.Context, doc *model.Document, pieces []chunker.Chunk, vectors [][]float32) error {
	// Drop prior records first so a re-ingestion that produces fewer
	// chunks leaves no orphans behind the highest new index.
	if err := s.store.DeleteByDocument(ctx, doc.PublicID); err != nil {
		return err
	}

	recs := make([]vectorstore.Record, len(pieces))
	rows := make([]model.Chunk, len(pieces))
	for i, p := range pieces {
		key := model.RecordKey(doc.ID, p.Index)
		recs[i] = vectorstore.Record{
			Key:        key,
			DocumentID: doc.PublicID,
			ChunkIndex: p.Index,
			Vector:     vectors[i],
			Text:       p.Text,
		}
		rows[i] = model.Chunk{
			DocumentID: doc.ID,
			PublicID:   doc.PublicID,
			ChunkIndex: p.Index,
			StartPos:   p.Start,
			EndPos:     p.End,
			RecordKey:  key,
		}
	}

	err := withRetry(ctx, s.cfg.RetryAttempts, func(ctx context.Context) error {
		return s.store.UpsertBatch(ctx, recs)
	})
	if err != nil {
		return err
	}
	return s.chunks.Replace(doc.ID, rows)
}

// fail marks the document failed, rolls back its vector records, and
// returns the terminal ingestion error. written is how many records
// this run may have put in the store; they are removed by their
// deterministic keys, because the chunk rows that DeleteByDocument
// resolves keys through are only committed after the vector writes and
// may not exist yet.
func (s *IngestService) fail(ctx context.Context, doc *model.Document, stage domain.Stage, written int, cause error) error {
	rollbackCtx := context.WithoutCancel(ctx)
	if written > 0 {
		keys := make([]uint64, written)
		for i := range keys {
			keys[i] = model.RecordKey(doc.ID, i)
		}
		if err := s.store.DeleteKeys(rollbackCtx, keys); err != nil {
			log.Printf("rollback vector records for document %s failed: %v", doc.PublicID, err)
		}
	}
	// Records from a prior run of this document resolve through
	// whatever chunk rows are committed at this point.
	if err := s.store.DeleteByDocument(rollbackCtx, doc.PublicID); err != nil {
		log.Printf("rollback vector records for document %s failed: %v", doc.PublicID, err)
	}
	if err := s.chunks.DeleteByDocumentID(doc.ID); err != nil {
		log.Printf("rollback chunk rows for document %s failed: %v", doc.PublicID, err)
	}
	if err := s.docs.SetFailed(doc.ID, stage, cause.Error()); err != nil {
		log.Printf("mark document %s failed failed: %v", doc.PublicID, err)
	}
	s.emit(ctx, doc.PublicID, domain.StageFailed, cause.Error())
	return &domain.IngestionError{Stage: stage, Reason: cause}
}

func (s *IngestService) advance(ctx context.Context, doc *model.Document, stage domain.Stage, detail string) error {
	if err := s.docs.SetState(doc.ID, stage); err != nil {
		return err
	}
	doc.State = stage
	s.emit(ctx, doc.PublicID, stage, detail)
	return nil
}

func (s *IngestService) emit(ctx context.Context, documentID string, stage domain.Stage, detail string) {
	if s.publisher == nil {
		return
	}
	event := model.IngestionEvent{
		DocumentID: documentID,
		Stage:      string(stage),
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		log.Printf("publish ingestion event for document %s failed: %v", documentID, err)
	}
}

// Get returns one document row by its public id.
func (s *IngestService) Get(publicID string) (*model.Document, error) {
	return s.docs.GetByPublicID(publicID)
}

// List returns all document rows, newest first.
func (s *IngestService) List() ([]model.Document, error) {
	return s.docs.List()
}

// Chunks returns a document's chunk rows ordered by index.
func (s *IngestService) Chunks(publicID string) ([]model.Chunk, error) {
	if _, err := s.docs.GetByPublicID(publicID); err != nil {
		return nil, err
	}
	return s.chunks.ListByPublicID(publicID)
}

// Events returns a document's persisted ingestion events in order.
func (s *IngestService) Events(publicID string) ([]model.IngestionEvent, error) {
	if _, err := s.docs.GetByPublicID(publicID); err != nil {
		return nil, err
	}
	return s.events.ListByDocumentID(publicID)
}

// Delete removes a document: its vector records, chunk rows, and the
// document row itself.
func (s *IngestService) Delete(ctx context.Context, publicID string) error {
	doc, err := s.docs.GetByPublicID(publicID)
	if err != nil {
		return err
	}

	s.locks.Lock(publicID)
	defer s.locks.Unlock(publicID)

	if err := s.store.DeleteByDocument(ctx, publicID); err != nil {
		return err
	}
	if err := s.chunks.DeleteByDocumentID(doc.ID); err != nil {
		return err
	}
	return s.docs.DeleteByPublicID(publicID)
}
