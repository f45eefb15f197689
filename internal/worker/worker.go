// Package worker drives queued video jobs to a terminal state.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"kairopi/internal/domain"
	"kairopi/internal/infra"
	videoprovider "kairopi/internal/providers/video"
	"kairopi/internal/storage"
)

const (
	artifactContentType = "video/mp4"
	finalWriteTimeout   = 15 * time.Second
)

// Worker handles one queue message per call to Handle. It is safe for
// concurrent use; every message touches only its own job record.
type Worker struct {
	jobs      domain.JobRepository
	generator videoprovider.Generator
	artifacts storage.ArtifactStore
	logger    infra.Logger
	now       func() time.Time
}

func New(jobs domain.JobRepository, generator videoprovider.Generator, artifacts storage.ArtifactStore, logger infra.Logger) *Worker {
	return &Worker{
		jobs:      jobs,
		generator: generator,
		artifacts: artifacts,
		logger:    logger,
		now:       time.Now,
	}
}

// Run consumes messages until ctx is cancelled or the consumer fails.
func (w *Worker) Run(ctx context.Context, consumer domain.JobConsumer) error {
	w.logger.Info().Msg("worker: started")
	err := consumer.Receive(ctx, w.Handle)
	if err != nil {
		return fmt.Errorf("worker: receive: %w", err)
	}
	w.logger.Info().Msg("worker: stopped")
	return nil
}

// Handle returns nil once the job reached a terminal state, or was never
// going to. It returns an error only when the message should be delivered
// again: the store could not record the start or the terminal state, or ctx
// was cancelled mid-render.
func (w *Worker) Handle(ctx context.Context, msg domain.QueueMessage) error {
	var req domain.JobRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil || req.JobID == "" {
		w.logger.Error().Err(err).Str("message_id", msg.ID).Msg("worker: dropping malformed message")
		return nil
	}
	logger := w.logger.With().Str("job_id", req.JobID).Str("message_id", msg.ID).Int("deliveries", msg.Deliveries).Logger()

	if err := w.jobs.MarkProcessing(ctx, req.JobID, w.now()); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidTransition):
			logger.Info().Msg("worker: job already finished, skipping redelivery")
			return nil
		case errors.Is(err, domain.ErrNotFound):
			logger.Warn().Msg("worker: no record for job, dropping message")
			return nil
		default:
			logger.Error().Err(err).Msg("worker: mark processing failed")
			return err
		}
	}
	logger.Info().Str("status", string(domain.JobStatusProcessing)).Msg("worker: picked job")

	videoURL, err := w.render(ctx, req)
	if err != nil && ctx.Err() != nil {
		logger.Warn().Err(err).Msg("worker: interrupted, releasing job")
		return ctx.Err()
	}

	// terminal writes outlive a shutdown that races the last step
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()

	if err != nil {
		level := zerolog.ErrorLevel
		if videoprovider.IsRenderError(err) {
			level = zerolog.WarnLevel
		}
		logger.WithLevel(level).Err(err).Str("status", string(domain.JobStatusError)).Msg("worker: job failed")
		return w.fail(finalCtx, logger, req.JobID, err.Error())
	}

	if err := w.jobs.MarkComplete(finalCtx, req.JobID, videoURL, w.now()); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			logger.Warn().Err(err).Msg("worker: job finished elsewhere")
			return nil
		}
		logger.Error().Err(err).Msg("worker: mark complete failed")
		return w.fail(finalCtx, logger, req.JobID, "failed to record result: "+err.Error())
	}
	logger.Info().Str("status", string(domain.JobStatusComplete)).Str("video_url", videoURL).Msg("worker: job complete")
	return nil
}

// fail records the error state. When even that write fails the message is
// released, so a redelivery can move the record out of processing.
func (w *Worker) fail(ctx context.Context, logger zerolog.Logger, jobID, message string) error {
	err := w.jobs.MarkFailed(ctx, jobID, message, w.now())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInvalidTransition):
		logger.Warn().Err(err).Msg("worker: job finished elsewhere")
		return nil
	default:
		logger.Error().Err(err).Msg("worker: mark failed failed, releasing job")
		return fmt.Errorf("worker: record terminal state: %w", err)
	}
}

func (w *Worker) render(ctx context.Context, req domain.JobRequest) (string, error) {
	asset, err := w.generator.Generate(ctx, videoprovider.GenerateRequest{
		JobID:       req.JobID,
		Prompt:      videoprovider.ComposePrompt(req.CardData, req.Prompt),
		AspectRatio: videoprovider.MapAspectRatio(req.CardData.Canvas.AspectRatio),
	})
	if err != nil {
		return "", err
	}
	w.logger.Debug().Str("job_id", req.JobID).Str("source_uri", asset.SourceURI).Int("bytes", len(asset.Data)).Msg("worker: video rendered")
	url, err := w.artifacts.Put(ctx, req.JobID+".mp4", artifactContentType, asset.Data)
	if err != nil {
		return "", fmt.Errorf("failed to upload video: %w", err)
	}
	return url, nil
}
