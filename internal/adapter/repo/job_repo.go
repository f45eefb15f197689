package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"kairopi/internal/domain"
	"kairopi/internal/infra"
	"kairopi/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on a Postgres table named
// after the configured job collection.
type JobRepositoryPG struct {
	sql   infra.SQLExecutor
	table string
}

// NewJobRepository creates a job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor, collection string) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql, table: pq.QuoteIdentifier(collection)}
}

// EnsureSchema creates the jobs table when missing.
func (r *JobRepositoryPG) EnsureSchema(ctx context.Context) error {
	if _, err := r.sql.Exec(ctx, sqlinline.Bind(sqlinline.QCreateVideoJobsTable, r.table)); err != nil {
		return fmt.Errorf("create jobs table: %w", err)
	}
	return nil
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, rec *domain.JobRecord) error {
	row := r.sql.QueryRow(ctx, sqlinline.Bind(sqlinline.QInsertVideoJob, r.table), rec.JobID, string(rec.Status), rec.CreatedAt)
	var id string
	if err := row.Scan(&id); err != nil {
		if infra.IsNoRows(err) {
			return fmt.Errorf("job %s: %w", rec.JobID, domain.ErrAlreadyExists)
		}
		return err
	}
	return nil
}

// Get fetches a job by its identifier.
func (r *JobRepositoryPG) Get(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	row := r.sql.QueryRow(ctx, sqlinline.Bind(sqlinline.QSelectVideoJob, r.table), jobID)
	var (
		rec                   domain.JobRecord
		status                string
		startedAt, finishedAt *time.Time
	)
	if err := row.Scan(&rec.JobID, &status, &rec.VideoURL, &rec.ErrorMessage, &rec.CreatedAt, &startedAt, &finishedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	st, err := decodeStatus(jobID, status)
	if err != nil {
		return nil, err
	}
	rec.Status = st
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.StartedAt = utcPtr(startedAt)
	rec.FinishedAt = utcPtr(finishedAt)
	return &rec, nil
}

func (r *JobRepositoryPG) MarkProcessing(ctx context.Context, jobID string, at time.Time) error {
	return r.transition(ctx, jobID, domain.JobStatusProcessing, "", "", at)
}

func (r *JobRepositoryPG) MarkComplete(ctx context.Context, jobID, videoURL string, at time.Time) error {
	return r.transition(ctx, jobID, domain.JobStatusComplete, videoURL, "", at)
}

func (r *JobRepositoryPG) MarkFailed(ctx context.Context, jobID, message string, at time.Time) error {
	return r.transition(ctx, jobID, domain.JobStatusError, "", message, at)
}

// transition relies on the conditional update for monotonicity; a miss is
// resolved into not-found or invalid-transition with a second read.
func (r *JobRepositoryPG) transition(ctx context.Context, jobID string, next domain.JobStatus, videoURL, errMsg string, at time.Time) error {
	from := make([]string, 0, 2)
	for _, s := range domain.SourceStates(next) {
		from = append(from, string(s))
	}
	row := r.sql.QueryRow(ctx, sqlinline.Bind(sqlinline.QTransitionVideoJob, r.table),
		jobID, string(next), videoURL, errMsg, at.UTC(), from)
	var id string
	err := row.Scan(&id)
	if err == nil {
		return nil
	}
	if !infra.IsNoRows(err) {
		return err
	}

	var current string
	if err := r.sql.QueryRow(ctx, sqlinline.Bind(sqlinline.QSelectVideoJobStatus, r.table), jobID).Scan(&current); err != nil {
		if infra.IsNoRows(err) {
			return domain.ErrNotFound
		}
		return err
	}
	return fmt.Errorf("job %s %s -> %s: %w", jobID, current, next, domain.ErrInvalidTransition)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)

// decodeStatus rejects rows written with a state this build does not know.
func decodeStatus(jobID, raw string) (domain.JobStatus, error) {
	s := domain.JobStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("job %s has unknown status %q", jobID, raw)
	}
	return s, nil
}
