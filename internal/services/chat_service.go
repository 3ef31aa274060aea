package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"cybersync/internal/config"
	"cybersync/internal/database"
	"cybersync/internal/llm"
	"cybersync/internal/models"
	"cybersync/internal/store"
)

// conversationTitleMax caps the auto-generated title taken from the first
// prompt of a new conversation.
const conversationTitleMax = 20

// fallbackReply is returned when the model service is unreachable. The turn
// is not persisted so the user can simply retry.
const fallbackReply = "Sorry, I cannot reply right now. Please try again in a moment."

// ChatService runs one chat turn end to end: retrieval, generation and the
// atomic persistence of the conversation, both messages and their audit
// entries.
type ChatService struct {
	db            *database.MongoDB
	conversations *store.ConversationStore
	messages      *store.MessageStore
	audits        *store.AuditStore
	retrieval     *RetrievalService
	llm           *llm.Client
	overrides     *config.Overrides
}

// NewChatService wires the chat service.
func NewChatService(db *database.MongoDB, conversations *store.ConversationStore, messages *store.MessageStore, audits *store.AuditStore, retrieval *RetrievalService, client *llm.Client, overrides *config.Overrides) *ChatService {
	return &ChatService{
		db:            db,
		conversations: conversations,
		messages:      messages,
		audits:        audits,
		retrieval:     retrieval,
		llm:           client,
		overrides:     overrides,
	}
}

// TitleFromPrompt derives a new conversation's title from its first prompt:
// the leading runes of the text, capped at a display-friendly length.
func TitleFromPrompt(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= conversationTitleMax {
		return prompt
	}
	return string(runes[:conversationTitleMax])
}

// FormatReferences labels each grounding snippet so the model can cite them.
func FormatReferences(contexts []string) []string {
	if len(contexts) == 0 {
		return nil
	}
	out := make([]string, len(contexts))
	for i, c := range contexts {
		out[i] = fmt.Sprintf("Reference %d: %s", i+1, c)
	}
	return out
}

// resolveConversation looks up the requested conversation. An empty,
// malformed or unknown id means a fresh conversation will be created by the
// persistence step; that is logged, never surfaced as an error.
func (s *ChatService) resolveConversation(ctx context.Context, id string) *models.Conversation {
	if id == "" {
		return nil
	}
	conv, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrInvalidReference) {
			log.Printf("💬 [CHAT] Conversation %q not found, starting a new one", id)
			return nil
		}
		log.Printf("⚠️  [CHAT] Conversation lookup failed, starting a new one: %v", err)
		return nil
	}
	return conv
}

// persistTurn commits the whole turn atomically: the conversation (when this
// is its first turn), the user message, the assistant message and one audit
// entry per write. Nothing is visible unless everything commits.
func (s *ChatService) persistTurn(ctx context.Context, ownerID primitive.ObjectID, conv *models.Conversation, promptText string, promptVec []float32, reply string) (primitive.ObjectID, primitive.ObjectID, error) {
	now := time.Now()
	var convID, aiMsgID primitive.ObjectID

	err := s.db.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		var audits []models.AuditEntry

		if conv == nil {
			fresh := &models.Conversation{
				OwnerID:   ownerID,
				Title:     TitleFromPrompt(promptText),
				CreatedAt: now,
			}
			if err := s.conversations.Insert(sessCtx, fresh); err != nil {
				return err
			}
			conv = fresh
			audits = append(audits, models.AuditEntry{
				ActorID:           &ownerID,
				Type:              models.AuditAdd,
				SubjectCollection: database.CollectionConversation,
				SubjectID:         conv.ID.Hex(),
				ToData:            bson.M{"title": conv.Title},
				CreatedAt:         now,
			})
		}
		convID = conv.ID

		userMsg := &models.Message{
			ConversationID: conv.ID,
			SenderID:       &ownerID,
			Text:           promptText,
			Embeddings:     promptVec,
			CreatedAt:      now,
		}
		aiMsg := &models.Message{
			ConversationID: conv.ID,
			Text:           reply,
			CreatedAt:      now.Add(time.Millisecond), // assistant turn sorts after the prompt
		}
		if err := s.messages.InsertPair(sessCtx, userMsg, aiMsg); err != nil {
			return err
		}
		aiMsgID = aiMsg.ID

		audits = append(audits,
			models.AuditEntry{
				ActorID:           &ownerID,
				Type:              models.AuditAdd,
				SubjectCollection: database.CollectionMessage,
				SubjectID:         userMsg.ID.Hex(),
				ToData:            bson.M{"conversation": conv.ID.Hex(), "role": models.RoleUser},
				CreatedAt:         now,
			},
			models.AuditEntry{
				Type:              models.AuditAdd,
				SubjectCollection: database.CollectionMessage,
				SubjectID:         aiMsg.ID.Hex(),
				ToData:            bson.M{"conversation": conv.ID.Hex(), "role": models.RoleAssistant},
				CreatedAt:         now,
			},
		)
		return s.audits.InsertMany(sessCtx, audits)
	})
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, fmt.Errorf("failed to persist chat turn: %w", err)
	}

	s.retrieval.InvalidateHistory(convID)
	return convID, aiMsgID, nil
}

// Chat runs one batch turn and returns the full reply.
func (s *ChatService) Chat(ctx context.Context, ownerID primitive.ObjectID, req models.ChatRequest) (*models.ChatResponse, error) {
	conv := s.resolveConversation(ctx, req.Conversation)

	var convIDPtr *primitive.ObjectID
	if conv != nil {
		convIDPtr = &conv.ID
	}

	promptVec := s.retrieval.EmbedQuery(ctx, req.Prompt.Content)
	retrieved := s.retrieval.Retrieve(ctx, promptVec, convIDPtr, ownerID)
	references := FormatReferences(retrieved.Contexts)

	reply := s.llm.Generate(ctx, references, retrieved.History, req.Prompt, s.overrides.Values())
	if reply == "" {
		chatTurns.WithLabelValues("batch", "degraded").Inc()
		resp := &models.ChatResponse{Reply: fallbackReply}
		if conv != nil {
			resp.Conversation = conv.ID.Hex()
		}
		return resp, nil
	}

	convID, _, err := s.persistTurn(ctx, ownerID, conv, req.Prompt.Content, promptVec, reply)
	if err != nil {
		chatTurns.WithLabelValues("batch", "error").Inc()
		return nil, err
	}

	chatTurns.WithLabelValues("batch", "ok").Inc()
	return &models.ChatResponse{Reply: reply, Conversation: convID.Hex()}, nil
}

// ChatStream runs one streaming turn. Chunk events go through emit as they
// arrive; the terminal done event carries the persisted ids. If the client
// disconnects mid-stream the partial reply is discarded and nothing is
// persisted.
func (s *ChatService) ChatStream(ctx context.Context, ownerID primitive.ObjectID, req models.ChatRequest, emit func(models.StreamEvent) error) error {
	conv := s.resolveConversation(ctx, req.Conversation)

	var convIDPtr *primitive.ObjectID
	if conv != nil {
		convIDPtr = &conv.ID
	}

	promptVec := s.retrieval.EmbedQuery(ctx, req.Prompt.Content)
	retrieved := s.retrieval.Retrieve(ctx, promptVec, convIDPtr, ownerID)
	references := FormatReferences(retrieved.Contexts)

	result, err := s.llm.GenerateStream(ctx, references, retrieved.History, req.Prompt, s.overrides.Values(), func(chunk string) error {
		return emit(models.StreamEvent{Type: models.StreamEventChunk, Content: chunk})
	})
	if err != nil {
		chatTurns.WithLabelValues("stream", "aborted").Inc()
		log.Printf("💬 [CHAT] Stream aborted, partial reply discarded: %v", err)
		return err
	}
	if result.Reply == "" {
		chatTurns.WithLabelValues("stream", "degraded").Inc()
		return emit(models.StreamEvent{Type: models.StreamEventError, Error: fallbackReply})
	}

	// Prefer the prompt embedding computed upstream by the model service; it
	// saves the stored message from an extra encoder call when the local
	// embed degraded.
	if len(promptVec) == 0 && len(result.Embeddings) > 0 {
		promptVec = result.Embeddings
	}

	convID, aiMsgID, err := s.persistTurn(ctx, ownerID, conv, req.Prompt.Content, promptVec, result.Reply)
	if err != nil {
		chatTurns.WithLabelValues("stream", "error").Inc()
		emitErr := emit(models.StreamEvent{Type: models.StreamEventError, Error: "failed to save the conversation turn"})
		if emitErr != nil {
			return emitErr
		}
		return err
	}

	chatTurns.WithLabelValues("stream", "ok").Inc()
	return emit(models.StreamEvent{
		Type:         models.StreamEventDone,
		Conversation: convID.Hex(),
		AIMessageID:  aiMsgID.Hex(),
	})
}
