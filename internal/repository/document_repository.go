package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docquery/internal/domain"
	"docquery/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(doc *model.Document) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

// GetByPublicID returns nil, ErrDocumentNotFound for unknown ids.
func (r *DocumentRepository) GetByPublicID(publicID string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("public_id = ?", publicID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) List() ([]model.Document, error) {
	var list []model.Document
	if err := r.db.Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

// SetState advances the document's ingestion state.
func (r *DocumentRepository) SetState(id uint, state domain.Stage) error {
	if err := r.db.Model(&model.Document{}).Where("id = ?", id).
		Update("state", state).Error; err != nil {
		return fmt.Errorf("update document state failed: %w", err)
	}
	return nil
}

// SetComplete marks a successful ingestion and records the final chunk
// count in one write.
func (r *DocumentRepository) SetComplete(id uint, chunkCount int) error {
	if err := r.db.Model(&model.Document{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"state":       domain.StageComplete,
			"chunk_count": chunkCount,
			"fail_stage":  "",
			"fail_reason": "",
		}).Error; err != nil {
		return fmt.Errorf("mark document complete failed: %w", err)
	}
	return nil
}

// SetFailed records the terminal failure with its stage and reason.
func (r *DocumentRepository) SetFailed(id uint, stage domain.Stage, reason string) error {
	if len(reason) > 1024 {
		reason = reason[:1024]
	}
	if err := r.db.Model(&model.Document{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"state":       domain.StageFailed,
			"fail_stage":  string(stage),
			"fail_reason": reason,
			"chunk_count": 0,
		}).Error; err != nil {
		return fmt.Errorf("mark document failed failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) DeleteByPublicID(publicID string) error {
	if err := r.db.Where("public_id = ?", publicID).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}
