package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cybersync/internal/database"
	"cybersync/internal/models"
)

// MessageStore handles persistence of conversation messages.
type MessageStore struct {
	collection *mongo.Collection
}

func NewMessageStore(db *database.MongoDB) *MessageStore {
	return &MessageStore{collection: db.Collection(database.CollectionMessage)}
}

// InsertPair writes the user message and the assistant reply in one call.
// Pass a session context so both commit atomically with the conversation
// and audit writes.
func (s *MessageStore) InsertPair(ctx context.Context, userMsg, aiMsg *models.Message) error {
	res, err := s.collection.InsertMany(ctx, []interface{}{userMsg, aiMsg})
	if err != nil {
		return fmt.Errorf("failed to insert message pair: %w", err)
	}
	userMsg.ID = res.InsertedIDs[0].(primitive.ObjectID)
	aiMsg.ID = res.InsertedIDs[1].(primitive.ObjectID)
	return nil
}

// History returns the last n messages of the conversation in chronological
// order, ready to feed straight into the generation prompt.
func (s *MessageStore) History(ctx context.Context, conversationID primitive.ObjectID, n int) ([]models.Message, error) {
	cursor, err := s.collection.Find(ctx,
		bson.M{"conversation": conversationID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).SetLimit(int64(n)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}

	// Newest-first from Mongo, oldest-first for the prompt.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ListByConversation returns every message of a conversation oldest first.
func (s *MessageStore) ListByConversation(ctx context.Context, conversationID primitive.ObjectID) ([]models.Message, error) {
	cursor, err := s.collection.Find(ctx,
		bson.M{"conversation": conversationID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}

// VectorSearch runs an Atlas $vectorSearch over the user's own messages in
// the conversation. Assistant messages (sender nil) never match.
func (s *MessageStore) VectorSearch(ctx context.Context, queryVector []float32, conversationID, senderID primitive.ObjectID, numCandidates, limit int) ([]models.RetrievalResult, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: database.VectorIndexMessage},
			{Key: "path", Value: "embeddings"},
			{Key: "queryVector", Value: queryVector},
			{Key: "numCandidates", Value: numCandidates},
			{Key: "limit", Value: limit},
			{Key: "filter", Value: bson.D{
				{Key: "conversation", Value: conversationID},
				{Key: "sender", Value: senderID},
			}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "text", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("message vector search failed: %w", err)
	}
	defer cursor.Close(ctx)

	var results []models.RetrievalResult
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode message search results: %w", err)
	}
	return results, nil
}
