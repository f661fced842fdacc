package model

import "time"

// IngestionEvent is one lifecycle transition of a document's ingestion,
// published to the event queue and persisted asynchronously for audit.
type IngestionEvent struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	DocumentID string    `gorm:"size:64;not null;index" json:"document_id"`
	Stage      string    `gorm:"size:16;not null" json:"stage"`
	Detail     string    `gorm:"size:1024" json:"detail,omitempty"`
	OccurredAt time.Time `gorm:"not null" json:"occurred_at"`
	CreatedAt  time.Time `json:"-"`
}
