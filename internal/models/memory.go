package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory type constants
const (
	MemoryTypeText = "text"
	MemoryTypeFile = "file"
)

// MemoryChunk is one stored unit of knowledge: a bounded slice of extracted
// text together with its embedding. Chunks that came from the same uploaded
// file share a GroupKey (the blob id) and are created, updated and deleted
// together.
type MemoryChunk struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title    string             `bson:"title" json:"title"`
	MemType  string             `bson:"memType" json:"mem_type"` // "text" or "file"
	GroupKey string             `bson:"groupKey,omitempty" json:"group_key,omitempty"`
	Text     string             `bson:"text" json:"text"`

	Embeddings []float32 `bson:"embeddings" json:"-"`
	Tags       []string  `bson:"tags,omitempty" json:"tags,omitempty"`

	CreatedAt time.Time  `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time  `bson:"updatedAt" json:"updated_at"`
	DeletedAt *time.Time `bson:"deletedAt,omitempty" json:"deleted_at,omitempty"` // soft delete marker
}

// Deleted reports whether the chunk is soft-deleted.
func (m *MemoryChunk) Deleted() bool {
	return m.DeletedAt != nil
}

// MemoryItem is the grouped view of one logical memory: all chunks sharing a
// GroupKey merged into the single item a UI lists. Never persisted.
type MemoryItem struct {
	ID        string     `json:"id"` // groupKey, or chunk id when the chunk has none
	Title     string     `json:"title"`
	MemType   string     `json:"mem_type"`
	Text      string     `json:"text"`
	Tags      []string   `json:"tags,omitempty"`
	Chunks    int        `json:"chunks"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// RetrievalResult is a similarity-search candidate. Transient, never persisted.
type RetrievalResult struct {
	Text  string  `bson:"text" json:"text"`
	Score float64 `bson:"score" json:"score"`
}
