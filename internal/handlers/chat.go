package handlers

import (
	"bufio"
	"encoding/json"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"cybersync/internal/middleware"
	"cybersync/internal/models"
	"cybersync/internal/services"
)

// ChatHandler exposes the chat endpoints, batch and streaming.
type ChatHandler struct {
	svc *services.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(svc *services.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// Chat handles POST /chat: one full turn, reply returned as a single JSON
// body once generation finishes.
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	ownerID, err := middleware.UserID(c)
	if err != nil {
		return fail(c, err)
	}

	var req models.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Prompt.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "prompt content is required"})
	}
	req.Prompt.Role = models.RoleUser

	resp, err := h.svc.Chat(c.Context(), ownerID, req)
	if err != nil {
		log.Printf("❌ [CHAT-API] Turn failed: %v", err)
		return fail(c, err)
	}
	return c.JSON(resp)
}

// ChatStream handles POST /chat/stream: the reply arrives as server-sent
// events, one chunk per event, closed by a done event with the persisted
// ids. A broken connection aborts generation and discards the partial turn.
func (h *ChatHandler) ChatStream(c *fiber.Ctx) error {
	ownerID, err := middleware.UserID(c)
	if err != nil {
		return fail(c, err)
	}

	var req models.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Prompt.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "prompt content is required"})
	}
	req.Prompt.Role = models.RoleUser

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	ctx := c.Context()
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		emit := func(ev models.StreamEvent) error {
			payload, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			if _, err := w.WriteString("data: " + string(payload) + "\n\n"); err != nil {
				return err
			}
			// Flush failure means the client is gone; propagating it aborts
			// generation upstream.
			return w.Flush()
		}

		if err := h.svc.ChatStream(ctx, ownerID, req, emit); err != nil {
			log.Printf("💬 [CHAT-API] Stream ended early: %v", err)
		}
	}))
	return nil
}
