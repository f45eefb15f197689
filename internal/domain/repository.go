package domain

import (
	"context"
	"time"
)

// JobRepository persists video job records keyed by job id.
type JobRepository interface {
	// Create stores a new record. It fails with ErrAlreadyExists on id reuse.
	Create(ctx context.Context, rec *JobRecord) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, jobID string) (*JobRecord, error)
	MarkProcessing(ctx context.Context, jobID string, at time.Time) error
	MarkComplete(ctx context.Context, jobID, videoURL string, at time.Time) error
	MarkFailed(ctx context.Context, jobID, message string, at time.Time) error
}

// JobPublisher puts job requests on the work queue.
type JobPublisher interface {
	Publish(ctx context.Context, req JobRequest) error
}

// MessageHandler processes one delivery. Returning nil acknowledges the
// message; returning an error releases it for redelivery.
type MessageHandler func(ctx context.Context, msg QueueMessage) error

// JobConsumer delivers queued messages until ctx is cancelled.
type JobConsumer interface {
	Receive(ctx context.Context, handler MessageHandler) error
}
