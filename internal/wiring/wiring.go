// Package wiring builds the job store, queue and artifact drivers selected by
// configuration so every binary assembles them the same way.
package wiring

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"

	"kairopi/internal/adapter/queue"
	"kairopi/internal/adapter/repo"
	"kairopi/internal/domain"
	"kairopi/internal/infra"
	"kairopi/internal/infra/credentials"
	"kairopi/internal/providers/genai"
	videoprovider "kairopi/internal/providers/video"
	"kairopi/internal/storage"
)

// Queue is both ends of the work queue.
type Queue interface {
	domain.JobPublisher
	domain.JobConsumer
}

// Components holds the drivers shared by the API and the worker.
type Components struct {
	Config *infra.Config
	Logger infra.Logger

	// SQL is nil unless a Postgres driver is selected.
	SQL         *infra.SQLRunner
	Credentials *credentials.Store

	Jobs      domain.JobRepository
	Queue     Queue
	Artifacts storage.ArtifactStore
	// DailyCards is nil when GCS_BUCKET_DAILY_CARD is unset.
	DailyCards storage.ArtifactStore

	closers []func()
}

// Options overrides driver construction, used by the single-process binary.
type Options struct {
	// MemoryQueueBuffer sizes the in-process queue. Zero means 256.
	MemoryQueueBuffer int
}

// Build connects every driver named in cfg. Close releases them.
func Build(ctx context.Context, cfg *infra.Config, logger infra.Logger, opts Options) (*Components, error) {
	c := &Components{Config: cfg, Logger: logger}
	if err := c.build(ctx, opts); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Components) build(ctx context.Context, opts Options) error {
	cfg := c.Config

	if cfg.UsesPostgres() {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return err
		}
		c.onClose(pool.Close)
		c.SQL = infra.NewSQLRunner(pool, c.Logger)
		c.Credentials = credentials.NewStore(c.SQL)
		if err := c.Credentials.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	if err := c.buildJobs(ctx); err != nil {
		return err
	}
	if err := c.buildQueue(ctx, opts); err != nil {
		return err
	}
	return c.buildArtifacts(ctx)
}

func (c *Components) buildJobs(ctx context.Context) error {
	cfg := c.Config
	switch cfg.JobStoreDriver {
	case infra.DriverPostgres:
		jobs := repo.NewJobRepository(c.SQL, cfg.JobCollection)
		if err := jobs.EnsureSchema(ctx); err != nil {
			return err
		}
		c.Jobs = jobs
	case infra.DriverFirestore:
		client, err := firestore.NewClient(ctx, cfg.GCloudProject)
		if err != nil {
			return fmt.Errorf("firestore client: %w", err)
		}
		c.onClose(func() { _ = client.Close() })
		c.Jobs = repo.NewFirestoreJobRepository(client, cfg.JobCollection)
	case infra.DriverMemory:
		c.Jobs = repo.NewMemoryJobRepository()
	default:
		return fmt.Errorf("job store driver %q is not supported", cfg.JobStoreDriver)
	}
	c.Logger.Info().Str("driver", cfg.JobStoreDriver).Str("collection", cfg.JobCollection).Msg("job store ready")
	return nil
}

func (c *Components) buildQueue(ctx context.Context, opts Options) error {
	cfg := c.Config
	switch cfg.QueueDriver {
	case infra.DriverPostgres:
		q := queue.NewPostgresQueue(c.SQL, c.Logger, queue.PostgresOptions{
			Table:             cfg.QueueTopic,
			Concurrency:       cfg.WorkerConcurrency,
			PollInterval:      cfg.QueuePollInterval,
			VisibilityTimeout: cfg.QueueVisibilityTimeout,
		})
		if err := q.EnsureSchema(ctx); err != nil {
			return err
		}
		c.Queue = q
	case infra.DriverPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCloudProject)
		if err != nil {
			return fmt.Errorf("pubsub client: %w", err)
		}
		psOpts := queue.PubSubOptions{
			Topic:        cfg.QueueTopic,
			Subscription: cfg.QueueSubscription,
			Concurrency:  cfg.WorkerConcurrency,
		}
		if cfg.RenderMaxWait > 0 {
			// leave room for the artifact download and upload after the last poll
			psOpts.MaxExtension = cfg.RenderMaxWait + 10*time.Minute
		}
		q := queue.NewPubSubQueue(client, c.Logger, psOpts)
		c.onClose(func() {
			q.Stop()
			_ = client.Close()
		})
		c.Queue = q
	case infra.DriverMemory:
		buffer := opts.MemoryQueueBuffer
		if buffer <= 0 {
			buffer = 256
		}
		mq := queue.NewMemoryQueue(buffer, cfg.WorkerConcurrency)
		mq.Logger = c.Logger
		c.Queue = mq
	default:
		return fmt.Errorf("queue driver %q is not supported", cfg.QueueDriver)
	}
	c.Logger.Info().Str("driver", cfg.QueueDriver).Str("topic", cfg.QueueTopic).Msg("work queue ready")
	return nil
}

func (c *Components) buildArtifacts(ctx context.Context) error {
	cfg := c.Config
	var client *gcs.Client
	gcsClient := func() (*gcs.Client, error) {
		if client != nil {
			return client, nil
		}
		cl, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage client: %w", err)
		}
		c.onClose(func() { _ = cl.Close() })
		client = cl
		return cl, nil
	}

	switch cfg.ArtifactDriver {
	case infra.DriverFilesystem:
		path := cfg.StoragePath
		if !filepath.IsAbs(path) {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
		}
		store, err := storage.NewFileStore(path, cfg.StorageBaseURL)
		if err != nil {
			return err
		}
		c.Artifacts = store
	case infra.DriverGCS:
		cl, err := gcsClient()
		if err != nil {
			return err
		}
		c.Artifacts = storage.NewGCSStore(cl, cfg.VideoBucket)
	default:
		return fmt.Errorf("artifact driver %q is not supported", cfg.ArtifactDriver)
	}

	if cfg.DailyCardBucket != "" {
		cl, err := gcsClient()
		if err != nil {
			return err
		}
		daily := storage.NewGCSStore(cl, cfg.DailyCardBucket)
		daily.MakePublic = false
		c.DailyCards = daily
	}
	return nil
}

// GeminiKey resolves the API key from the environment, then the credentials table.
func (c *Components) GeminiKey(ctx context.Context) (string, error) {
	return credentials.ResolveGeminiKey(ctx, c.Config, c.Credentials)
}

// GeminiClient returns a client for the resolved key. An empty key is not an
// error here; calls will fail upstream with an auth error.
func (c *Components) GeminiClient(ctx context.Context) (*genai.Client, error) {
	key, err := c.GeminiKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve gemini api key: %w", err)
	}
	logger := c.Logger
	return genai.NewClient(genai.Options{
		APIKey:     key,
		BaseURL:    c.Config.GeminiBaseURL,
		Model:      c.Config.GeminiModel,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
		Logger:     &logger,
	})
}

// VideoGenerator wraps client with the render settings from configuration.
func (c *Components) VideoGenerator(client *genai.Client) *videoprovider.GeminiGenerator {
	return videoprovider.NewGeminiGenerator(client, videoprovider.GeminiOptions{
		Model:        c.Config.VeoModel,
		Resolution:   c.Config.VideoResolution,
		PollInterval: c.Config.RenderPollInterval,
		MaxWait:      c.Config.RenderMaxWait,
		Logger:       c.Logger,
	})
}

// Close releases drivers in reverse order of construction.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func (c *Components) onClose(fn func()) {
	c.closers = append(c.closers, fn)
}

var _ Queue = (*queue.MemoryQueue)(nil)
var _ Queue = (*queue.PostgresQueue)(nil)
var _ Queue = (*queue.PubSubQueue)(nil)
