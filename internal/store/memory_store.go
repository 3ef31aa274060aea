package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cybersync/internal/database"
	"cybersync/internal/models"
)

// MemoryStore handles persistence of memory chunks. All read paths go
// through the activeFilter predicate so the soft-delete rule is applied in
// exactly one place.
type MemoryStore struct {
	collection *mongo.Collection
}

// NewMemoryStore creates a memory store over the memory collection.
func NewMemoryStore(db *database.MongoDB) *MemoryStore {
	return &MemoryStore{collection: db.Collection(database.CollectionMemory)}
}

// activeFilter is the single soft-delete predicate. Every listing and search
// path composes its filter through this function.
func activeFilter(includeDeleted bool) bson.M {
	if includeDeleted {
		return bson.M{}
	}
	return bson.M{"deletedAt": nil}
}

// InsertMany bulk-inserts chunks. Run inside a session context when the
// insert must commit with its audit entry.
func (s *MemoryStore) InsertMany(ctx context.Context, chunks []models.MemoryChunk) ([]primitive.ObjectID, error) {
	docs := make([]interface{}, len(chunks))
	for i := range chunks {
		docs[i] = chunks[i]
	}

	res, err := s.collection.InsertMany(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("failed to insert memory chunks: %w", err)
	}

	ids := make([]primitive.ObjectID, 0, len(res.InsertedIDs))
	for _, id := range res.InsertedIDs {
		ids = append(ids, id.(primitive.ObjectID))
	}
	return ids, nil
}

// GetByID fetches one chunk. Returns ErrInvalidReference for malformed or
// unknown ids.
func (s *MemoryStore) GetByID(ctx context.Context, id string, includeDeleted bool) (*models.MemoryChunk, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReference, id)
	}

	filter := activeFilter(includeDeleted)
	filter["_id"] = oid

	var chunk models.MemoryChunk
	if err := s.collection.FindOne(ctx, filter).Decode(&chunk); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("%w: memory %s", ErrInvalidReference, id)
		}
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	return &chunk, nil
}

// GroupChunks returns every chunk sharing the group key, oldest first.
func (s *MemoryStore) GroupChunks(ctx context.Context, groupKey string, includeDeleted bool) ([]models.MemoryChunk, error) {
	filter := activeFilter(includeDeleted)
	filter["groupKey"] = groupKey

	cursor, err := s.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find group %s: %w", groupKey, err)
	}
	defer cursor.Close(ctx)

	var chunks []models.MemoryChunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, fmt.Errorf("failed to decode group %s: %w", groupKey, err)
	}
	return chunks, nil
}

// SoftDeleteGroup marks every chunk of the group deleted. Returns the number
// of chunks affected.
func (s *MemoryStore) SoftDeleteGroup(ctx context.Context, groupKey string) (int64, error) {
	now := time.Now()
	res, err := s.collection.UpdateMany(ctx,
		bson.M{"groupKey": groupKey, "deletedAt": nil},
		bson.M{"$set": bson.M{"deletedAt": now, "updatedAt": now}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to soft-delete group %s: %w", groupKey, err)
	}
	return res.ModifiedCount, nil
}

// RestoreGroup clears the soft-delete marker on every chunk of the group.
func (s *MemoryStore) RestoreGroup(ctx context.Context, groupKey string) (int64, error) {
	res, err := s.collection.UpdateMany(ctx,
		bson.M{"groupKey": groupKey},
		bson.M{"$set": bson.M{"deletedAt": nil, "updatedAt": time.Now()}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to restore group %s: %w", groupKey, err)
	}
	return res.ModifiedCount, nil
}

// PurgeGroup physically removes every chunk of the group.
func (s *MemoryStore) PurgeGroup(ctx context.Context, groupKey string) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, bson.M{"groupKey": groupKey})
	if err != nil {
		return 0, fmt.Errorf("failed to purge group %s: %w", groupKey, err)
	}
	return res.DeletedCount, nil
}

// UpdateGroupMeta propagates metadata changes (title, tags) to every chunk
// in the group. Chunk text and embeddings are left untouched.
func (s *MemoryStore) UpdateGroupMeta(ctx context.Context, groupKey string, title *string, tags []string) error {
	set := bson.M{"updatedAt": time.Now()}
	if title != nil {
		set["title"] = *title
	}
	if tags != nil {
		set["tags"] = tags
	}

	_, err := s.collection.UpdateMany(ctx, bson.M{"groupKey": groupKey}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update group %s: %w", groupKey, err)
	}
	return nil
}

// ReplaceContent rewrites one chunk's text and embedding (text memories only;
// grouped file chunks never have their text recomputed).
func (s *MemoryStore) ReplaceContent(ctx context.Context, id primitive.ObjectID, title, text string, tags []string, embeddings []float32) error {
	set := bson.M{
		"title":     title,
		"text":      text,
		"updatedAt": time.Now(),
	}
	if tags != nil {
		set["tags"] = tags
	}
	if embeddings != nil {
		set["embeddings"] = embeddings
	}

	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update memory %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: memory %s", ErrInvalidReference, id.Hex())
	}
	return nil
}

// ListFilter narrows the listing query.
type ListFilter struct {
	Title          string
	MemType        string
	Tags           []string
	IncludeDeleted bool
}

// List returns matching chunks oldest first; the service layer merges them
// into grouped items.
func (s *MemoryStore) List(ctx context.Context, f ListFilter) ([]models.MemoryChunk, error) {
	filter := activeFilter(f.IncludeDeleted)
	if f.Title != "" {
		filter["title"] = bson.M{"$regex": primitive.Regex{Pattern: f.Title, Options: "i"}}
	}
	if f.MemType != "" {
		filter["memType"] = f.MemType
	}
	if len(f.Tags) > 0 {
		filter["tags"] = bson.M{"$in": f.Tags}
	}

	cursor, err := s.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer cursor.Close(ctx)

	var chunks []models.MemoryChunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, fmt.Errorf("failed to decode memories: %w", err)
	}
	return chunks, nil
}

// ExpiredGroups returns the chunks whose soft-delete marker is older than
// cutoff. Used by the retention job to purge rows and blobs for good.
func (s *MemoryStore) ExpiredGroups(ctx context.Context, cutoff time.Time) ([]models.MemoryChunk, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"deletedAt": bson.M{"$ne": nil, "$lt": cutoff}})
	if err != nil {
		return nil, fmt.Errorf("failed to find expired memories: %w", err)
	}
	defer cursor.Close(ctx)

	var chunks []models.MemoryChunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, fmt.Errorf("failed to decode expired memories: %w", err)
	}
	return chunks, nil
}

// VectorSearch runs an Atlas $vectorSearch over active chunks and returns
// candidates in the index's native score order. Thresholding happens in the
// retrieval engine, not here.
func (s *MemoryStore) VectorSearch(ctx context.Context, queryVector []float32, numCandidates, limit int) ([]models.RetrievalResult, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: database.VectorIndexMemory},
			{Key: "path", Value: "embeddings"},
			{Key: "queryVector", Value: queryVector},
			{Key: "numCandidates", Value: numCandidates},
			{Key: "limit", Value: limit},
			{Key: "filter", Value: activeFilter(false)},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "text", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("memory vector search failed: %w", err)
	}
	defer cursor.Close(ctx)

	var results []models.RetrievalResult
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode memory search results: %w", err)
	}
	return results, nil
}
