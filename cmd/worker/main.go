package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"kairopi/internal/infra"
	"kairopi/internal/wiring"
	"kairopi/internal/worker"
)

func main() {
	infra.LoadDotenv()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := wiring.Build(ctx, cfg, logger, wiring.Options{})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build drivers")
	}
	defer components.Close()

	if cfg.QueueDriver == infra.DriverMemory {
		logger.Fatal().Msg("worker: QUEUE_DRIVER=memory only works inside cmd/standalone")
	}

	key, err := components.GeminiKey(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to load gemini api key from store")
	}
	if key == "" {
		logger.Fatal().Err(cfg.RequireGeminiKey()).Msg("worker: gemini api key missing")
	}
	gemini, err := components.GeminiClient(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure gemini client")
	}

	w := worker.New(components.Jobs, components.VideoGenerator(gemini), components.Artifacts, logger)
	logger.Info().
		Str("queue", cfg.QueueDriver).
		Str("store", cfg.JobStoreDriver).
		Str("artifacts", cfg.ArtifactDriver).
		Int("concurrency", cfg.WorkerConcurrency).
		Msg("worker: configured")

	if err := w.Run(ctx, components.Queue); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
}
