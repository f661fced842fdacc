package repository

import (
	"fmt"

	"gorm.io/gorm"

	"docquery/internal/model"
)

type IngestionEventRepository struct {
	db *gorm.DB
}

func NewIngestionEventRepository(db *gorm.DB) *IngestionEventRepository {
	return &IngestionEventRepository{db: db}
}

func (r *IngestionEventRepository) Create(event *model.IngestionEvent) error {
	if err := r.db.Create(event).Error; err != nil {
		return fmt.Errorf("create ingestion event failed: %w", err)
	}
	return nil
}

func (r *IngestionEventRepository) ListByDocumentID(documentID string) ([]model.IngestionEvent, error) {
	var events []model.IngestionEvent
	if err := r.db.Where("document_id = ?", documentID).
		Order("occurred_at ASC, id ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list ingestion events failed: %w", err)
	}
	return events, nil
}
