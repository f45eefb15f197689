// Command standalone runs the API and the worker in one process on the memory
// job store and queue. Jobs do not survive a restart.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"kairopi/internal/http/handlers"
	httpapi "kairopi/internal/http/httpapi"
	"kairopi/internal/infra"
	"kairopi/internal/videojob"
	"kairopi/internal/wiring"
	"kairopi/internal/worker"
)

func main() {
	infra.LoadDotenv()
	for key, value := range map[string]string{
		"JOB_STORE_DRIVER": infra.DriverMemory,
		"QUEUE_DRIVER":     infra.DriverMemory,
	} {
		_ = os.Setenv(key, value)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "standalone").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := wiring.Build(ctx, cfg, logger, wiring.Options{})
	if err != nil {
		logger.Fatal().Err(err).Msg("standalone: failed to build drivers")
	}
	defer components.Close()

	if err := cfg.RequireGeminiKey(); err != nil {
		logger.Fatal().Err(err).Msg("standalone: gemini api key missing")
	}
	gemini, err := components.GeminiClient(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("standalone: failed to configure gemini client")
	}

	app := &handlers.App{
		Config:        cfg,
		Logger:        logger,
		Jobs:          videojob.NewService(components.Jobs, components.Queue, logger),
		Muse:          gemini,
		DailyCards:    components.DailyCards,
		WatchInterval: cfg.StatusWatchInterval,
		WatchGrace:    cfg.StatusWatchGrace,
	}
	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app), logger)
	w := worker.New(components.Jobs, components.VideoGenerator(gemini), components.Artifacts, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Msgf("standalone listening on %s", server.Addr())
		return server.Start()
	})
	g.Go(func() error {
		return w.Run(gctx, components.Queue)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("standalone: stopped with error")
	}
	logger.Info().Msg("standalone: stopped")
}
