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

// ConversationStore handles persistence of conversations.
type ConversationStore struct {
	collection *mongo.Collection
}

func NewConversationStore(db *database.MongoDB) *ConversationStore {
	return &ConversationStore{collection: db.Collection(database.CollectionConversation)}
}

// GetByID resolves a conversation id. Malformed hex and unknown ids both
// come back as ErrInvalidReference so callers can fall back to creating a
// fresh conversation.
func (s *ConversationStore) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReference, id)
	}

	var conv models.Conversation
	if err := s.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&conv); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("%w: conversation %s", ErrInvalidReference, id)
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

// Insert creates a conversation. Pass a session context when the insert is
// part of a chat transaction.
func (s *ConversationStore) Insert(ctx context.Context, conv *models.Conversation) error {
	res, err := s.collection.InsertOne(ctx, conv)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	conv.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

// ListByOwner returns the owner's conversations, newest first.
func (s *ConversationStore) ListByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]models.Conversation, error) {
	cursor, err := s.collection.Find(ctx,
		bson.M{"owner": ownerID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var convs []models.Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}
	return convs, nil
}
