// Package videojob accepts video render requests and reports their status.
package videojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kairopi/internal/domain"
)

// EnqueueFailedMessage is recorded on a job whose request never reached the queue.
const EnqueueFailedMessage = "failed to enqueue job"

// Service creates job records and publishes render requests.
type Service struct {
	repo      domain.JobRepository
	publisher domain.JobPublisher
	logger    zerolog.Logger
	now       func() time.Time
	newID     func(time.Time) string
}

func NewService(repo domain.JobRepository, publisher domain.JobPublisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		newID:     NewJobID,
	}
}

// NewJobID returns "video-<unix millis>-<8 hex>". Collisions are unlikely but
// possible; Create rejects a reused id.
func NewJobID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("video-%d-%s", now.UnixMilli(), suffix)
}

// Submit records the job as queued and then publishes it, so a client that
// polls right away always finds a record.
func (s *Service) Submit(ctx context.Context, card domain.CardData, prompt string) (string, error) {
	now := s.now().UTC()
	jobID := s.newID(now)
	logger := s.logger.With().Str("job_id", jobID).Logger()

	if err := s.repo.Create(ctx, domain.NewQueuedRecord(jobID, now)); err != nil {
		return "", fmt.Errorf("create job record: %w", err)
	}

	req := domain.JobRequest{
		JobID:       jobID,
		CardData:    card.Compact(),
		Prompt:      prompt,
		SubmittedAt: now,
	}
	if err := s.publisher.Publish(ctx, req); err != nil {
		// the record exists but no worker will ever see it
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if markErr := s.repo.MarkFailed(failCtx, jobID, EnqueueFailedMessage, s.now()); markErr != nil {
			logger.Error().Err(markErr).Msg("could not mark unpublished job as failed")
		}
		return "", fmt.Errorf("publish job: %w", err)
	}

	logger.Info().Msg("video job queued")
	return jobID, nil
}

// Status returns the stored record or domain.ErrNotFound.
func (s *Service) Status(ctx context.Context, jobID string) (*domain.JobRecord, error) {
	return s.repo.Get(ctx, jobID)
}
