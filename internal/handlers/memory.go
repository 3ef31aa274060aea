package handlers

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"cybersync/internal/extract"
	"cybersync/internal/middleware"
	"cybersync/internal/services"
	"cybersync/internal/store"
	"cybersync/internal/validation"
)

// MemoryHandler exposes the knowledge store: ingestion, listing, editing,
// soft delete, restore and permanent purge.
type MemoryHandler struct {
	svc             *services.MemoryService
	fileSizeLimitMB int
}

// NewMemoryHandler creates a new memory handler
func NewMemoryHandler(svc *services.MemoryService, fileSizeLimitMB int) *MemoryHandler {
	return &MemoryHandler{svc: svc, fileSizeLimitMB: fileSizeLimitMB}
}

// Create handles POST /memory (multipart/form-data). A request with a file
// becomes a file memory; otherwise title and text make a text memory.
func (h *MemoryHandler) Create(c *fiber.Ctx) error {
	actorID, err := middleware.UserID(c)
	if err != nil {
		return fail(c, err)
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusNotAcceptable).JSON(fiber.Map{
			"error": "Content-Type must be multipart/form-data",
		})
	}

	title := c.FormValue("title")
	text := c.FormValue("text")
	tags := formTags(form.Value["tags"])

	files := form.File["file"]
	var size int64
	if len(files) > 0 {
		size = files[0].Size
	}
	if ruleErr := validation.ValidateUpload(len(files), size, h.fileSizeLimitMB); ruleErr != nil {
		return fail(c, ruleErr)
	}

	if len(files) == 0 {
		if title == "" || text == "" {
			return fail(c, &validation.RuleError{Field: "text", Message: "title and text are required for a text memory"})
		}
		item, err := h.svc.CreateText(c.Context(), actorID, title, text, tags)
		if err != nil {
			log.Printf("❌ [MEMORY-API] Create failed: %v", err)
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(item)
	}

	header := files[0]
	file, err := header.Open()
	if err != nil {
		return fail(c, err)
	}
	defer file.Close()

	info := extract.FileInfo{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	}
	item, err := h.svc.CreateFile(c.Context(), actorID, info, file, title, tags)
	if err != nil {
		log.Printf("❌ [MEMORY-API] File ingestion failed for %s: %v", header.Filename, err)
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

// List handles GET /memory with optional title, mem_type, tags and
// include_deleted filters.
func (h *MemoryHandler) List(c *fiber.Ctx) error {
	filter := store.ListFilter{
		Title:          c.Query("title"),
		MemType:        c.Query("mem_type"),
		IncludeDeleted: c.QueryBool("include_deleted"),
	}
	if tags := c.Query("tags"); tags != "" {
		filter.Tags = formTags(strings.Split(tags, ","))
	}

	items, err := h.svc.List(c.Context(), filter)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"results": items, "count": len(items)})
}

// Get handles GET /memory/:id.
func (h *MemoryHandler) Get(c *fiber.Ctx) error {
	item, err := h.svc.Get(c.Context(), c.Params("id"), c.QueryBool("include_deleted"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(item)
}

type updateMemoryRequest struct {
	Title *string  `json:"title"`
	Text  *string  `json:"text"`
	Tags  []string `json:"tags"`
}

// Update handles PUT /memory/:id.
func (h *MemoryHandler) Update(c *fiber.Ctx) error {
	actorID, err := middleware.UserID(c)
	if err != nil {
		return fail(c, err)
	}

	var req updateMemoryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	item, err := h.svc.Update(c.Context(), actorID, c.Params("id"), services.UpdateInput{
		Title: req.Title,
		Text:  req.Text,
		Tags:  req.Tags,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(item)
}

// Delete handles DELETE /memory/:id. The permanent query flag switches from
// soft delete to purge.
func (h *MemoryHandler) Delete(c *fiber.Ctx) error {
	actorID, err := middleware.UserID(c)
	if err != nil {
		return fail(c, err)
	}

	if err := h.svc.Delete(c.Context(), actorID, c.Params("id"), c.QueryBool("permanent")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Restore handles POST /memory/:id/restore.
func (h *MemoryHandler) Restore(c *fiber.Ctx) error {
	actorID, err := middleware.UserID(c)
	if err != nil {
		return fail(c, err)
	}

	item, err := h.svc.Restore(c.Context(), actorID, c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(item)
}

// ReplaceFile handles PUT /memory/:id/file (multipart): the old upload and
// its chunks are replaced by the new file.
func (h *MemoryHandler) ReplaceFile(c *fiber.Ctx) error {
	actorID, err := middleware.UserID(c)
	if err != nil {
		return fail(c, err)
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusNotAcceptable).JSON(fiber.Map{
			"error": "Content-Type must be multipart/form-data",
		})
	}

	files := form.File["file"]
	if len(files) == 0 {
		return fail(c, &validation.RuleError{Field: "file", Message: "a replacement file is required"})
	}
	if ruleErr := validation.ValidateUpload(len(files), files[0].Size, h.fileSizeLimitMB); ruleErr != nil {
		return fail(c, ruleErr)
	}

	header := files[0]
	file, err := header.Open()
	if err != nil {
		return fail(c, err)
	}
	defer file.Close()

	info := extract.FileInfo{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	}
	item, err := h.svc.ReplaceFile(c.Context(), actorID, c.Params("id"), info, file)
	if err != nil {
		log.Printf("❌ [MEMORY-API] File replacement failed for %s: %v", header.Filename, err)
		return fail(c, err)
	}
	return c.JSON(item)
}

// Download handles GET /memory/:id/file, streaming the uploaded original.
func (h *MemoryHandler) Download(c *fiber.Ctx) error {
	rc, name, err := h.svc.OpenOriginal(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}

	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.SendStream(rc)
}

// formTags normalises a tags form field: trims whitespace and drops empties,
// so both repeated fields and a single comma-joined value behave.
func formTags(raw []string) []string {
	var tags []string
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
