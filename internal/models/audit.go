package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Audit entry types
const (
	AuditAdd    = "add"
	AuditEdit   = "edit"
	AuditDelete = "delete"
)

// AuditEntry records one state-changing operation. Append-only; written in
// the same transaction as the operation it records. ActorID is nil for
// actions taken by the system or the model.
type AuditEntry struct {
	ID                primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ActorID           *primitive.ObjectID `bson:"actor,omitempty" json:"actor_id,omitempty"`
	Type              string              `bson:"type" json:"type"`
	SubjectCollection string              `bson:"subjectCollection" json:"subject_collection"`
	SubjectID         string              `bson:"subjectId" json:"subject_id"`
	FromData          bson.M              `bson:"fromData,omitempty" json:"from_data,omitempty"`
	ToData            bson.M              `bson:"toData,omitempty" json:"to_data,omitempty"`
	CreatedAt         time.Time           `bson:"createdAt" json:"created_at"`
}
