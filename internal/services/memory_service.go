package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"cybersync/internal/database"
	"cybersync/internal/extract"
	"cybersync/internal/llm"
	"cybersync/internal/models"
	"cybersync/internal/rag"
	"cybersync/internal/store"
)

// ErrEncoderDown is returned when ingestion cannot obtain embeddings. Unlike
// chat, ingestion refuses to store content that could never be retrieved.
var ErrEncoderDown = errors.New("encoder unavailable, memory not stored")

// ErrUnsupportedFile is returned when no extractor claims an uploaded file.
var ErrUnsupportedFile = extract.ErrUnsupported

// MemoryService implements the knowledge store operations: ingestion of text
// and file memories, grouped listing, soft delete with fan-out, restore and
// permanent purge.
type MemoryService struct {
	db       *database.MongoDB
	memories *store.MemoryStore
	audits   *store.AuditStore
	blobs    *store.BlobStore
	llm      *llm.Client

	chunkSize int
}

// NewMemoryService wires the memory service.
func NewMemoryService(db *database.MongoDB, memories *store.MemoryStore, audits *store.AuditStore, blobs *store.BlobStore, client *llm.Client, chunkSize int) *MemoryService {
	return &MemoryService{
		db:        db,
		memories:  memories,
		audits:    audits,
		blobs:     blobs,
		llm:       client,
		chunkSize: chunkSize,
	}
}

// CreateText stores a plain text memory as a single chunk. The embedding is
// computed over title and text together so short notes still carry their
// subject in vector space.
func (s *MemoryService) CreateText(ctx context.Context, actorID primitive.ObjectID, title, text string, tags []string) (*models.MemoryItem, error) {
	embeddings := s.llm.Embed(ctx, []string{title + "\n" + text})
	if len(embeddings) == 0 {
		return nil, ErrEncoderDown
	}

	now := time.Now()
	chunk := models.MemoryChunk{
		Title:      title,
		MemType:    models.MemoryTypeText,
		GroupKey:   uuid.NewString(),
		Text:       text,
		Embeddings: embeddings[0],
		Tags:       tags,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.db.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if _, err := s.memories.InsertMany(sessCtx, []models.MemoryChunk{chunk}); err != nil {
			return err
		}
		return s.audits.Insert(sessCtx, &models.AuditEntry{
			ActorID:           &actorID,
			Type:              models.AuditAdd,
			SubjectCollection: database.CollectionMemory,
			SubjectID:         chunk.GroupKey,
			ToData:            bson.M{"title": title, "memType": models.MemoryTypeText, "chunks": 1},
			CreatedAt:         now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store text memory: %w", err)
	}

	memoriesCreated.WithLabelValues(models.MemoryTypeText).Inc()
	memoryChunksStored.Inc()
	log.Printf("✅ [MEMORY-STORAGE] Stored text memory %q (group %s)", title, chunk.GroupKey)

	items := store.MergeGroups([]models.MemoryChunk{chunk})
	return &items[0], nil
}

// CreateFile ingests an uploaded file: the original goes to the blob store,
// the extracted text is chunked and embedded, and all chunks land in one
// group keyed by the blob id. The blob write sits outside the transaction;
// on any later failure it is compensated with a best-effort delete.
func (s *MemoryService) CreateFile(ctx context.Context, actorID primitive.ObjectID, info extract.FileInfo, file io.ReadSeeker, title string, tags []string) (*models.MemoryItem, error) {
	text, err := extract.Extract(info, file)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", info.Filename, err)
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind upload: %w", err)
	}
	blobID, err := s.blobs.Put(file, info.Filename, info.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store original file: %w", err)
	}

	if title == "" {
		title = info.Filename
	}

	pieces := rag.Chunkify(text, s.chunkSize)
	if len(pieces) == 0 {
		s.blobs.DeleteBestEffort(blobID)
		return nil, fmt.Errorf("failed to extract %s: %w", info.Filename, extract.ErrUnsupported)
	}
	texts := make([]string, len(pieces))
	for i, p := range pieces {
		// Chunk boundaries are byte positions and can cut a UTF-8 sequence;
		// scrub the edges before embedding and storage.
		texts[i] = strings.ToValidUTF8(string(p), "")
	}

	embeddings := s.llm.Embed(ctx, texts)
	if len(embeddings) != len(texts) {
		s.blobs.DeleteBestEffort(blobID)
		return nil, ErrEncoderDown
	}

	now := time.Now()
	groupKey := blobID.Hex()
	chunks := make([]models.MemoryChunk, len(texts))
	for i := range texts {
		chunks[i] = models.MemoryChunk{
			Title:      title,
			MemType:    models.MemoryTypeFile,
			GroupKey:   groupKey,
			Text:       texts[i],
			Embeddings: embeddings[i],
			Tags:       tags,
			CreatedAt:  now.Add(time.Duration(i) * time.Millisecond), // preserve chunk order under createdAt sort
			UpdatedAt:  now,
		}
	}

	err = s.db.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if _, err := s.memories.InsertMany(sessCtx, chunks); err != nil {
			return err
		}
		return s.audits.Insert(sessCtx, &models.AuditEntry{
			ActorID:           &actorID,
			Type:              models.AuditAdd,
			SubjectCollection: database.CollectionMemory,
			SubjectID:         groupKey,
			ToData:            bson.M{"title": title, "memType": models.MemoryTypeFile, "filename": info.Filename, "chunks": len(chunks)},
			CreatedAt:         now,
		})
	})
	if err != nil {
		s.blobs.DeleteBestEffort(blobID)
		return nil, fmt.Errorf("failed to store file memory: %w", err)
	}

	memoriesCreated.WithLabelValues(models.MemoryTypeFile).Inc()
	memoryChunksStored.Add(float64(len(chunks)))
	log.Printf("✅ [MEMORY-STORAGE] Stored file memory %q as %d chunks (group %s)", info.Filename, len(chunks), groupKey)

	items := store.MergeGroups(chunks)
	return &items[0], nil
}

// List returns the grouped memory items matching the filter.
func (s *MemoryService) List(ctx context.Context, f store.ListFilter) ([]models.MemoryItem, error) {
	chunks, err := s.memories.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return store.MergeGroups(chunks), nil
}

// Get returns one grouped item by memory id (any chunk id or group key
// resolves to the whole group).
func (s *MemoryService) Get(ctx context.Context, id string, includeDeleted bool) (*models.MemoryItem, error) {
	chunks, err := s.resolveGroup(ctx, id, includeDeleted)
	if err != nil {
		return nil, err
	}
	items := store.MergeGroups(chunks)
	return &items[0], nil
}

// resolveGroup accepts either a chunk ObjectID hex or a group key and
// returns every chunk of the group.
func (s *MemoryService) resolveGroup(ctx context.Context, id string, includeDeleted bool) ([]models.MemoryChunk, error) {
	chunks, err := s.memories.GroupChunks(ctx, id, includeDeleted)
	if err != nil {
		return nil, err
	}
	if len(chunks) > 0 {
		return chunks, nil
	}

	chunk, err := s.memories.GetByID(ctx, id, includeDeleted)
	if err != nil {
		return nil, err
	}
	if chunk.GroupKey != "" {
		return s.memories.GroupChunks(ctx, chunk.GroupKey, includeDeleted)
	}
	return []models.MemoryChunk{*chunk}, nil
}

// Delete removes a memory. Soft deletion marks every chunk of the group;
// permanent deletion purges the chunks. Both drop the original blob of a
// file memory once the transaction commits, so a restored file memory keeps
// its chunks but no longer offers a download.
func (s *MemoryService) Delete(ctx context.Context, actorID primitive.ObjectID, id string, permanent bool) error {
	chunks, err := s.resolveGroup(ctx, id, true)
	if err != nil {
		return err
	}
	groupKey := chunks[0].GroupKey
	if groupKey == "" {
		groupKey = chunks[0].ID.Hex()
	}

	if !permanent {
		err = s.db.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
			affected, err := s.memories.SoftDeleteGroup(sessCtx, chunks[0].GroupKey)
			if err != nil {
				return err
			}
			return s.audits.Insert(sessCtx, &models.AuditEntry{
				ActorID:           &actorID,
				Type:              models.AuditDelete,
				SubjectCollection: database.CollectionMemory,
				SubjectID:         groupKey,
				FromData:          bson.M{"title": chunks[0].Title, "chunks": affected, "permanent": false},
				CreatedAt:         time.Now(),
			})
		})
		if err != nil {
			return fmt.Errorf("failed to soft-delete memory %s: %w", groupKey, err)
		}
		s.dropGroupBlob(chunks[0])
		log.Printf("🗑️  [MEMORY-STORAGE] Soft-deleted memory group %s (%d chunks)", groupKey, len(chunks))
		return nil
	}

	err = s.db.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if _, err := s.memories.PurgeGroup(sessCtx, chunks[0].GroupKey); err != nil {
			return err
		}
		return s.audits.Insert(sessCtx, &models.AuditEntry{
			ActorID:           &actorID,
			Type:              models.AuditDelete,
			SubjectCollection: database.CollectionMemory,
			SubjectID:         groupKey,
			FromData:          bson.M{"title": chunks[0].Title, "chunks": len(chunks), "permanent": true},
			CreatedAt:         time.Now(),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to purge memory %s: %w", groupKey, err)
	}

	s.dropGroupBlob(chunks[0])
	log.Printf("🗑️  [MEMORY-STORAGE] Purged memory group %s (%d chunks)", groupKey, len(chunks))
	return nil
}

// dropGroupBlob removes the original blob of a file memory. It runs after
// the delete transaction commits; a failure here leaves an orphan blob,
// never a dangling chunk.
func (s *MemoryService) dropGroupBlob(chunk models.MemoryChunk) {
	if chunk.MemType != models.MemoryTypeFile {
		return
	}
	if blobID, err := primitive.ObjectIDFromHex(chunk.GroupKey); err == nil {
		s.blobs.DeleteBestEffort(blobID)
	}
}

// Restore clears the soft-delete marker on every chunk of the group. The
// original blob was dropped at delete time and does not come back; restored
// file memories are searchable but no longer downloadable.
func (s *MemoryService) Restore(ctx context.Context, actorID primitive.ObjectID, id string) (*models.MemoryItem, error) {
	chunks, err := s.resolveGroup(ctx, id, true)
	if err != nil {
		return nil, err
	}
	groupKey := chunks[0].GroupKey
	if groupKey == "" {
		groupKey = chunks[0].ID.Hex()
	}

	err = s.db.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		affected, err := s.memories.RestoreGroup(sessCtx, chunks[0].GroupKey)
		if err != nil {
			return err
		}
		return s.audits.Insert(sessCtx, &models.AuditEntry{
			ActorID:           &actorID,
			Type:              models.AuditEdit,
			SubjectCollection: database.CollectionMemory,
			SubjectID:         groupKey,
			ToData:            bson.M{"restored": true, "chunks": affected},
			CreatedAt:         time.Now(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to restore memory %s: %w", groupKey, err)
	}

	log.Printf("♻️  [MEMORY-STORAGE] Restored memory group %s", groupKey)
	return s.Get(ctx, groupKey, false)
}

// UpdateInput carries the changed fields of a memory update. Nil fields are
// left as they are.
type UpdateInput struct {
	Title *string
	Text  *string
	Tags  []string
}

// reembedRequired reports whether an update invalidates the stored vector.
// Text memories embed title and text together, so changing either forces a
// recompute; file chunks keep the embeddings of the upload and only carry
// metadata edits.
func reembedRequired(memType string, in UpdateInput) bool {
	return memType == models.MemoryTypeText && (in.Title != nil || in.Text != nil)
}

// Update edits a memory. Title and tags fan out to every chunk of the group.
// Text can change only on text memories; any title or text change on a text
// memory re-embeds the combined content.
func (s *MemoryService) Update(ctx context.Context, actorID primitive.ObjectID, id string, in UpdateInput) (*models.MemoryItem, error) {
	chunks, err := s.resolveGroup(ctx, id, false)
	if err != nil {
		return nil, err
	}
	groupKey := chunks[0].GroupKey
	if groupKey == "" {
		groupKey = chunks[0].ID.Hex()
	}

	if in.Text != nil && chunks[0].MemType != models.MemoryTypeText {
		return nil, fmt.Errorf("%w: file memory text is derived from the upload", store.ErrInvalidReference)
	}

	from := bson.M{"title": chunks[0].Title, "tags": chunks[0].Tags}
	to := bson.M{}

	title := chunks[0].Title
	if in.Title != nil {
		title = *in.Title
		to["title"] = *in.Title
	}
	text := chunks[0].Text
	if in.Text != nil {
		text = *in.Text
		from["text"] = chunks[0].Text
		to["text"] = *in.Text
	}
	if in.Tags != nil {
		to["tags"] = in.Tags
	}

	var newEmbedding []float32
	if reembedRequired(chunks[0].MemType, in) {
		vecs := s.llm.Embed(ctx, []string{title + "\n" + text})
		if len(vecs) == 0 {
			return nil, ErrEncoderDown
		}
		newEmbedding = vecs[0]
	}

	err = s.db.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if newEmbedding != nil {
			if err := s.memories.ReplaceContent(sessCtx, chunks[0].ID, title, text, in.Tags, newEmbedding); err != nil {
				return err
			}
		} else if err := s.memories.UpdateGroupMeta(sessCtx, chunks[0].GroupKey, in.Title, in.Tags); err != nil {
			return err
		}
		return s.audits.Insert(sessCtx, &models.AuditEntry{
			ActorID:           &actorID,
			Type:              models.AuditEdit,
			SubjectCollection: database.CollectionMemory,
			SubjectID:         groupKey,
			FromData:          from,
			ToData:            to,
			CreatedAt:         time.Now(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update memory %s: %w", groupKey, err)
	}

	log.Printf("✏️  [MEMORY-STORAGE] Updated memory group %s", groupKey)
	return s.Get(ctx, groupKey, false)
}

// ReplaceFile swaps the uploaded original of a file memory: the old group
// and blob are purged and the new file is ingested under a fresh group.
// Title and tags carry over unless the caller supplies new ones.
func (s *MemoryService) ReplaceFile(ctx context.Context, actorID primitive.ObjectID, id string, info extract.FileInfo, file io.ReadSeeker) (*models.MemoryItem, error) {
	chunks, err := s.resolveGroup(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if chunks[0].MemType != models.MemoryTypeFile {
		return nil, fmt.Errorf("%w: memory %s is not a file memory", store.ErrInvalidReference, id)
	}

	item, err := s.CreateFile(ctx, actorID, info, file, chunks[0].Title, chunks[0].Tags)
	if err != nil {
		return nil, err
	}

	// The new group is live; removing the old one is cleanup, not part of
	// the ingestion contract.
	if err := s.Delete(ctx, actorID, chunks[0].GroupKey, true); err != nil {
		log.Printf("⚠️  [MEMORY-STORAGE] Replaced file but failed to purge old group %s: %v", chunks[0].GroupKey, err)
	}
	return item, nil
}

// OpenOriginal streams the uploaded original of a file memory.
func (s *MemoryService) OpenOriginal(ctx context.Context, id string) (io.ReadCloser, string, error) {
	chunks, err := s.resolveGroup(ctx, id, true)
	if err != nil {
		return nil, "", err
	}
	if chunks[0].MemType != models.MemoryTypeFile {
		return nil, "", fmt.Errorf("%w: memory %s has no original file", store.ErrInvalidReference, id)
	}

	blobID, err := primitive.ObjectIDFromHex(chunks[0].GroupKey)
	if err != nil {
		return nil, "", fmt.Errorf("%w: bad blob reference", store.ErrInvalidReference)
	}
	rc, err := s.blobs.Open(blobID)
	if err != nil {
		return nil, "", err
	}
	return rc, chunks[0].Title, nil
}
