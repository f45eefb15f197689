package video

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"kairopi/internal/domain"
	"kairopi/internal/providers/genai"
)

// maxPollErrors is how many consecutive failed status reads abort a render.
const maxPollErrors = 3

type GenerateRequest struct {
	JobID       string
	Prompt      string
	AspectRatio string
}

// Asset is a finished render held in memory until it is uploaded.
type Asset struct {
	Data      []byte
	Format    string
	SourceURI string
}

type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Asset, error)
}

// RenderError is a failure reported by the render provider. Its message is
// what ends up on the job record.
type RenderError struct {
	Message string
}

func (e *RenderError) Error() string { return e.Message }

func (e *RenderError) Unwrap() error { return domain.ErrProviderFailure }

// OperationClient is the subset of genai.Client the generator drives.
type OperationClient interface {
	StartVideo(ctx context.Context, req genai.VideoRequest) (*genai.Operation, error)
	GetOperation(ctx context.Context, name string) (*genai.Operation, error)
	Download(ctx context.Context, uri string) ([]byte, string, error)
}

type GeminiOptions struct {
	Model        string
	Resolution   string
	PollInterval time.Duration
	// MaxWait bounds a single render; zero polls until the provider finishes.
	MaxWait time.Duration
	Logger  zerolog.Logger
}

// GeminiGenerator renders through a Veo long-running operation and polls it
// at a fixed interval.
type GeminiGenerator struct {
	client OperationClient
	opts   GeminiOptions
}

func NewGeminiGenerator(client OperationClient, opts GeminiOptions) *GeminiGenerator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.Resolution == "" {
		opts.Resolution = "720p"
	}
	return &GeminiGenerator{client: client, opts: opts}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	logger := g.opts.Logger.With().Str("job_id", req.JobID).Logger()

	op, err := g.client.StartVideo(ctx, genai.VideoRequest{
		Model:       g.opts.Model,
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Resolution:  g.opts.Resolution,
	})
	if err != nil {
		return nil, fmt.Errorf("start video generation: %w", err)
	}
	logger.Info().Str("operation", op.Name).Msg("render started")

	op, err = g.await(ctx, logger, op)
	if err != nil {
		return nil, err
	}

	if op.Error != nil {
		msg := strings.TrimSpace(op.Error.Message)
		if msg == "" {
			msg = "An unknown error occurred during video generation."
		}
		return nil, &RenderError{Message: msg}
	}
	uri := op.VideoURI()
	if uri == "" {
		if reasons := op.FilteredReasons(); len(reasons) > 0 {
			return nil, &RenderError{Message: "Video generation was blocked: " + strings.Join(reasons, "; ")}
		}
		return nil, &RenderError{Message: "Video generation finished, but no download link was provided."}
	}

	data, format, err := g.client.Download(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to download video: %w", err)
	}
	if len(data) == 0 {
		return nil, &RenderError{Message: "Downloaded video is empty."}
	}
	if format == "" || format == "application/octet-stream" {
		format = "video/mp4"
	}
	return &Asset{Data: data, Format: format, SourceURI: uri}, nil
}

func (g *GeminiGenerator) await(ctx context.Context, logger zerolog.Logger, op *genai.Operation) (*genai.Operation, error) {
	var deadline <-chan time.Time
	if g.opts.MaxWait > 0 {
		timer := time.NewTimer(g.opts.MaxWait)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(g.opts.PollInterval)
	defer ticker.Stop()

	failures := 0
	for polls := 0; !op.Done; polls++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, &RenderError{Message: fmt.Sprintf("Video generation did not finish within %s.", g.opts.MaxWait)}
		case <-ticker.C:
		}

		next, err := g.client.GetOperation(ctx, op.Name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures++
			logger.Warn().Err(err).Str("operation", op.Name).Int("failures", failures).Msg("render poll failed")
			if failures >= maxPollErrors {
				return nil, fmt.Errorf("poll video operation: %w", err)
			}
			continue
		}
		failures = 0
		op = next
		logger.Debug().Str("operation", op.Name).Int("polls", polls+1).Bool("done", op.Done).Msg("render polled")
	}
	return op, nil
}

// IsRenderError reports whether err came from the provider rather than the
// transport or the caller.
func IsRenderError(err error) bool {
	var re *RenderError
	return errors.As(err, &re)
}

var _ Generator = (*GeminiGenerator)(nil)
