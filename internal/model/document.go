package model

import (
	"time"

	"docquery/internal/domain"
)

// Document is the bookkeeping row for one ingested document. PublicID
// is the caller-facing identifier (a uuid assigned at upload) and is
// the document_id recorded in vector metadata; the numeric primary key
// seeds the deterministic vector record keys.
type Document struct {
	ID         uint         `gorm:"primaryKey" json:"-"`
	PublicID   string       `gorm:"size:64;not null;uniqueIndex" json:"document_id"`
	Name       string       `gorm:"size:256;not null" json:"name"`
	State      domain.Stage `gorm:"size:16;not null" json:"state"`
	FailStage  string       `gorm:"size:16" json:"fail_stage,omitempty"`
	FailReason string       `gorm:"size:1024" json:"fail_reason,omitempty"`
	ChunkCount int          `json:"chunk_count"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}
