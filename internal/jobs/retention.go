// Package jobs holds the background maintenance work: currently the
// retention sweep that turns old soft deletes into permanent ones.
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"cybersync/internal/database"
	"cybersync/internal/models"
	"cybersync/internal/store"
)

// RetentionJob purges memory groups whose soft-delete marker is older than
// the retention window, including their original blobs. Runs on a cron
// schedule; each sweep is also callable directly for tests and manual runs.
type RetentionJob struct {
	db       *database.MongoDB
	memories *store.MemoryStore
	audits   *store.AuditStore
	blobs    *store.BlobStore

	retention time.Duration
	scheduler gocron.Scheduler
}

// NewRetentionJob validates the cron expression and builds the job.
func NewRetentionJob(db *database.MongoDB, memories *store.MemoryStore, audits *store.AuditStore, blobs *store.BlobStore, cronExpr string, retentionDays int) (*RetentionJob, error) {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return nil, fmt.Errorf("invalid retention cron expression %q: %w", cronExpr, err)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	j := &RetentionJob{
		db:        db,
		memories:  memories,
		audits:    audits,
		blobs:     blobs,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		scheduler: scheduler,
	}

	if _, err := scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(j.run),
	); err != nil {
		return nil, fmt.Errorf("failed to schedule retention job: %w", err)
	}
	return j, nil
}

// Start begins the schedule.
func (j *RetentionJob) Start() {
	j.scheduler.Start()
	log.Printf("⏰ [RETENTION] Sweep scheduled, retention window %s", j.retention)
}

// Stop shuts the scheduler down.
func (j *RetentionJob) Stop() {
	if err := j.scheduler.Shutdown(); err != nil {
		log.Printf("⚠️  [RETENTION] Scheduler shutdown failed: %v", err)
	}
}

func (j *RetentionJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := j.Sweep(ctx); err != nil {
		log.Printf("❌ [RETENTION] Sweep failed: %v", err)
	}
}

// Sweep performs one retention pass.
func (j *RetentionJob) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-j.retention)
	expired, err := j.memories.ExpiredGroups(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	// One purge per group; chunks of a group expire together because the
	// soft delete stamped them together.
	seen := map[string]models.MemoryChunk{}
	for _, c := range expired {
		key := c.GroupKey
		if key == "" {
			key = c.ID.Hex()
		}
		if _, ok := seen[key]; !ok {
			seen[key] = c
		}
	}

	purged := 0
	for key, sample := range seen {
		err := j.db.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
			if _, err := j.memories.PurgeGroup(sessCtx, sample.GroupKey); err != nil {
				return err
			}
			return j.audits.Insert(sessCtx, &models.AuditEntry{
				Type:              models.AuditDelete,
				SubjectCollection: database.CollectionMemory,
				SubjectID:         key,
				FromData:          bson.M{"title": sample.Title, "reason": "retention expired"},
				CreatedAt:         time.Now(),
			})
		})
		if err != nil {
			log.Printf("⚠️  [RETENTION] Failed to purge group %s: %v", key, err)
			continue
		}

		if sample.MemType == models.MemoryTypeFile {
			if blobID, err := primitive.ObjectIDFromHex(sample.GroupKey); err == nil {
				j.blobs.DeleteBestEffort(blobID)
			}
		}
		purged++
	}

	log.Printf("🧹 [RETENTION] Purged %d expired memory groups", purged)
	return nil
}
