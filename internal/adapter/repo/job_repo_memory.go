package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kairopi/internal/domain"
)

// JobRepositoryMemory keeps records in process memory. It backs tests and the
// standalone single-process mode.
type JobRepositoryMemory struct {
	mu   sync.RWMutex
	jobs map[string]*domain.JobRecord
}

func NewMemoryJobRepository() *JobRepositoryMemory {
	return &JobRepositoryMemory{jobs: make(map[string]*domain.JobRecord)}
}

func (r *JobRepositoryMemory) Create(ctx context.Context, rec *domain.JobRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[rec.JobID]; ok {
		return fmt.Errorf("job %s: %w", rec.JobID, domain.ErrAlreadyExists)
	}
	r.jobs[rec.JobID] = rec.Clone()
	return nil
}

func (r *JobRepositoryMemory) Get(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec.Clone(), nil
}

func (r *JobRepositoryMemory) MarkProcessing(ctx context.Context, jobID string, at time.Time) error {
	return r.transition(ctx, jobID, domain.JobStatusProcessing, "", at)
}

func (r *JobRepositoryMemory) MarkComplete(ctx context.Context, jobID, videoURL string, at time.Time) error {
	return r.transition(ctx, jobID, domain.JobStatusComplete, videoURL, at)
}

func (r *JobRepositoryMemory) MarkFailed(ctx context.Context, jobID, message string, at time.Time) error {
	return r.transition(ctx, jobID, domain.JobStatusError, message, at)
}

func (r *JobRepositoryMemory) transition(ctx context.Context, jobID string, next domain.JobStatus, detail string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if !rec.Status.CanTransitionTo(next) {
		return fmt.Errorf("job %s %s -> %s: %w", jobID, rec.Status, next, domain.ErrInvalidTransition)
	}
	rec.Apply(next, detail, at)
	return nil
}

var _ domain.JobRepository = (*JobRepositoryMemory)(nil)
