package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"cybersync/internal/database"
	"cybersync/internal/models"
)

// AuditStore writes the immutable change trail. Entries are append-only;
// nothing in the API edits or deletes them.
type AuditStore struct {
	collection *mongo.Collection
}

func NewAuditStore(db *database.MongoDB) *AuditStore {
	return &AuditStore{collection: db.Collection(database.CollectionAudit)}
}

// Insert appends one audit entry. Pass a session context to commit the
// entry atomically with the change it records.
func (s *AuditStore) Insert(ctx context.Context, entry *models.AuditEntry) error {
	if _, err := s.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// InsertMany appends a batch of audit entries.
func (s *AuditStore) InsertMany(ctx context.Context, entries []models.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]interface{}, len(entries))
	for i := range entries {
		docs[i] = entries[i]
	}
	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert audit entries: %w", err)
	}
	return nil
}
