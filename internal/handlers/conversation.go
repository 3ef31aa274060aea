package handlers

import (
	"github.com/gofiber/fiber/v2"

	"cybersync/internal/middleware"
	"cybersync/internal/store"
)

// ConversationHandler exposes read access to conversations and their
// messages.
type ConversationHandler struct {
	conversations *store.ConversationStore
	messages      *store.MessageStore
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(conversations *store.ConversationStore, messages *store.MessageStore) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, messages: messages}
}

// List handles GET /conversations, newest first.
func (h *ConversationHandler) List(c *fiber.Ctx) error {
	ownerID, err := middleware.UserID(c)
	if err != nil {
		return fail(c, err)
	}

	convs, err := h.conversations.ListByOwner(c.Context(), ownerID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"results": convs, "count": len(convs)})
}

// Messages handles GET /conversations/:id/messages, oldest first.
func (h *ConversationHandler) Messages(c *fiber.Ctx) error {
	conv, err := h.conversations.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}

	msgs, err := h.messages.ListByConversation(c.Context(), conv.ID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"results": msgs, "count": len(msgs)})
}
