package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"docquery/internal/model"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// Replace swaps a document's chunk rows for the given set in one
// transaction, so a reader never observes a mix of two ingestion runs.
func (r *ChunkRepository) Replace(documentID uint, chunks []model.Chunk) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.Create(&chunks).Error
	})
	if err != nil {
		return fmt.Errorf("replace chunks failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) ListByPublicID(publicID string) ([]model.Chunk, error) {
	var chunks []model.Chunk
	if err := r.db.Where("public_id = ?", publicID).Order("chunk_index ASC").Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks failed: %w", err)
	}
	return chunks, nil
}

// ListRecordKeys returns the vector record keys of a document's chunks.
// The vector store uses this to resolve which records belong to a
// document when deleting it.
func (r *ChunkRepository) ListRecordKeys(ctx context.Context, publicID string) ([]uint64, error) {
	var keys []uint64
	if err := r.db.WithContext(ctx).Model(&model.Chunk{}).
		Where("public_id = ?", publicID).Pluck("record_key", &keys).Error; err != nil {
		return nil, fmt.Errorf("list chunk record keys failed: %w", err)
	}
	return keys, nil
}

func (r *ChunkRepository) DeleteByDocumentID(documentID uint) error {
	if err := r.db.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks failed: %w", err)
	}
	return nil
}
