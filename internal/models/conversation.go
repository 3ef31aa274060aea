package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation groups the messages of one chat thread. Created lazily by the
// first turn when the caller supplies no id (or an id that does not resolve).
type Conversation struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID   primitive.ObjectID `bson:"owner" json:"owner_id"`
	Title     string             `bson:"title" json:"title"`
	CreatedAt time.Time          `bson:"createdAt" json:"created_at"`
}

// Message is a single conversation turn. SenderID is nil for assistant turns,
// which also carry no embedding. Immutable after creation.
type Message struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ConversationID primitive.ObjectID  `bson:"conversation" json:"conversation_id"`
	SenderID       *primitive.ObjectID `bson:"sender" json:"sender_id,omitempty"` // nil = assistant
	Text           string              `bson:"text" json:"text"`
	Embeddings     []float32           `bson:"embeddings,omitempty" json:"-"`
	CreatedAt      time.Time           `bson:"createdAt" json:"created_at"`
}

// Role returns the dialogue role of the message for generation requests.
func (m *Message) Role() string {
	if m.SenderID == nil {
		return RoleAssistant
	}
	return RoleUser
}

// Dialogue roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// HistoryTurn is one turn of the conversation window handed to the generator.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is the incoming user turn.
type Prompt struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
