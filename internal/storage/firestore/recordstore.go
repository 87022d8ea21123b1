package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/tinywideclouds/go-order-notification-service/pkg/dispatch"
)

const notificationsCollection = "notifications"

// RecordStore implements dispatch.RecordStore on the notifications
// collection.
type RecordStore struct {
	client *firestore.Client
}

func NewRecordStore(client *firestore.Client) *RecordStore {
	return &RecordStore{client: client}
}

// Insert writes rec under rec.ID, or under a generated id when it is empty.
func (s *RecordStore) Insert(ctx context.Context, rec dispatch.NotificationRecord) (string, error) {
	col := s.client.Collection(notificationsCollection)
	ref := col.NewDoc()
	if rec.ID != "" {
		ref = col.Doc(rec.ID)
	}
	if _, err := ref.Set(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to insert notification for %s: %w", rec.RecipientID, err)
	}
	return ref.ID, nil
}

// QueryOlderThan returns references to every record created strictly
// before cutoff.
func (s *RecordStore) QueryOlderThan(ctx context.Context, cutoff time.Time) ([]dispatch.RecordRef, error) {
	iter := s.client.Collection(notificationsCollection).
		Where("createdAt", "<", cutoff).
		Select().
		Documents(ctx)
	defer iter.Stop()

	var refs []dispatch.RecordRef
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}
		refs = append(refs, dispatch.RecordRef{ID: doc.Ref.ID})
	}
	return refs, nil
}

// DeleteBatch deletes refs through a BulkWriter and reports the first
// failed delete.
func (s *RecordStore) DeleteBatch(ctx context.Context, refs []dispatch.RecordRef) error {
	if len(refs) == 0 {
		return nil
	}
	col := s.client.Collection(notificationsCollection)
	bw := s.client.BulkWriter(ctx)

	jobs := make([]*firestore.BulkWriterJob, 0, len(refs))
	for _, ref := range refs {
		job, err := bw.Delete(col.Doc(ref.ID))
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to enqueue delete of %s: %w", ref.ID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	failed := 0
	var firstErr error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("%d of %d deletes failed: %w", failed, len(refs), firstErr)
	}
	return nil
}
