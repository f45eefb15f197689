package repo

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"kairopi/internal/domain"
)

// JobRepositoryFirestore stores one document per job in a Firestore collection.
type JobRepositoryFirestore struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreJobRepository(client *firestore.Client, collection string) *JobRepositoryFirestore {
	return &JobRepositoryFirestore{client: client, collection: collection}
}

func (r *JobRepositoryFirestore) doc(jobID string) *firestore.DocumentRef {
	return r.client.Collection(r.collection).Doc(jobID)
}

func (r *JobRepositoryFirestore) Create(ctx context.Context, rec *domain.JobRecord) error {
	if _, err := r.doc(rec.JobID).Create(ctx, rec); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("job %s: %w", rec.JobID, domain.ErrAlreadyExists)
		}
		return err
	}
	return nil
}

func (r *JobRepositoryFirestore) Get(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	snap, err := r.doc(jobID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var rec domain.JobRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	if _, err := decodeStatus(jobID, string(rec.Status)); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *JobRepositoryFirestore) MarkProcessing(ctx context.Context, jobID string, at time.Time) error {
	return r.transition(ctx, jobID, domain.JobStatusProcessing, "", at)
}

func (r *JobRepositoryFirestore) MarkComplete(ctx context.Context, jobID, videoURL string, at time.Time) error {
	return r.transition(ctx, jobID, domain.JobStatusComplete, videoURL, at)
}

func (r *JobRepositoryFirestore) MarkFailed(ctx context.Context, jobID, message string, at time.Time) error {
	return r.transition(ctx, jobID, domain.JobStatusError, message, at)
}

// transition reads and rewrites the document inside a transaction so two
// workers racing on a redelivered job cannot both leave a terminal state.
func (r *JobRepositoryFirestore) transition(ctx context.Context, jobID string, next domain.JobStatus, detail string, at time.Time) error {
	ref := r.doc(jobID)
	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return domain.ErrNotFound
			}
			return err
		}
		var rec domain.JobRecord
		if err := snap.DataTo(&rec); err != nil {
			return fmt.Errorf("decode job %s: %w", jobID, err)
		}
		if !rec.Status.CanTransitionTo(next) {
			return fmt.Errorf("job %s %s -> %s: %w", jobID, rec.Status, next, domain.ErrInvalidTransition)
		}
		rec.Apply(next, detail, at)
		return tx.Set(ref, &rec)
	})
}

var _ domain.JobRepository = (*JobRepositoryFirestore)(nil)
