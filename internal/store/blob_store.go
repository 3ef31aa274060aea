package store

import (
	"errors"
	"fmt"
	"io"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BlobStore persists uploaded file originals in GridFS. Blob operations are
// not covered by the document transaction; failures after a Put are
// compensated with a best-effort Delete.
type BlobStore struct {
	bucket *gridfs.Bucket
}

// NewBlobStore creates a blob store over the given bucket.
func NewBlobStore(bucket *gridfs.Bucket) *BlobStore {
	return &BlobStore{bucket: bucket}
}

// Put stores the stream and returns the blob id used as the chunks' group
// key.
func (s *BlobStore) Put(r io.Reader, filename, contentType string) (primitive.ObjectID, error) {
	opts := options.GridFSUpload().SetMetadata(bson.M{"contentType": contentType})
	id, err := s.bucket.UploadFromStream(filename, r, opts)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("failed to store blob: %w", err)
	}
	return id, nil
}

// Delete removes the blob. Used both for group deletes and as the
// compensating action when ingestion fails after the blob was stored.
func (s *BlobStore) Delete(id primitive.ObjectID) error {
	if err := s.bucket.Delete(id); err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", id.Hex(), err)
	}
	return nil
}

// DeleteBestEffort deletes the blob and only logs on failure. For cleanup
// paths where the original error must not be masked. An already-missing
// blob is not a failure: purging a soft-deleted file memory hits this.
func (s *BlobStore) DeleteBestEffort(id primitive.ObjectID) {
	if err := s.Delete(id); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
		log.Printf("⚠️  [BLOB] Orphan cleanup failed for %s: %v", id.Hex(), err)
	}
}

// Open returns a read stream over the stored blob. A blob that was dropped
// by a delete reports ErrInvalidReference, not an internal error.
func (s *BlobStore) Open(id primitive.ObjectID) (io.ReadCloser, error) {
	stream, err := s.bucket.OpenDownloadStream(id)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, fmt.Errorf("%w: no original file for %s", ErrInvalidReference, id.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", id.Hex(), err)
	}
	return stream, nil
}
