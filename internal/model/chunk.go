package model

import "time"

// Chunk records where one segment of a document lives: its position in
// the source text (rune offsets) and the key of its vector record. The
// chunk text itself is stored with the vector record, not here.
type Chunk struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	DocumentID uint      `gorm:"not null;index" json:"-"`
	PublicID   string    `gorm:"size:64;not null;index" json:"document_id"`
	ChunkIndex int       `gorm:"not null" json:"chunk_index"`
	StartPos   int       `gorm:"not null" json:"start"`
	EndPos     int       `gorm:"not null" json:"end"`
	RecordKey  uint64    `gorm:"not null" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecordKey derives the deterministic vector record key for a chunk of
// a document, so re-ingesting the same document overwrites its records
// instead of duplicating them.
func RecordKey(documentPK uint, chunkIndex int) uint64 {
	return uint64(documentPK)<<32 | uint64(uint32(chunkIndex))
}
