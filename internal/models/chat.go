package models

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Conversation string `json:"conversation"`
	Prompt       Prompt `json:"prompt"`
}

// ChatResponse is the reply of the batch chat endpoint.
type ChatResponse struct {
	Reply        string `json:"reply"`
	Conversation string `json:"conversation"`
}

// Stream event types emitted on the SSE chat endpoint.
const (
	StreamEventChunk = "chunk"
	StreamEventDone  = "done"
	StreamEventError = "error"
)

// StreamEvent is one server-sent event of a streaming reply. Chunk events
// carry incremental text; the terminal done event carries the persisted ids.
type StreamEvent struct {
	Type         string `json:"type"`
	Content      string `json:"content,omitempty"`
	Conversation string `json:"conversation,omitempty"`
	AIMessageID  string `json:"ai_message_id,omitempty"`
	Error        string `json:"error,omitempty"`
}
