package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"kairopi/internal/http/handlers"
	httpapi "kairopi/internal/http/httpapi"
	"kairopi/internal/infra"
	"kairopi/internal/videojob"
	"kairopi/internal/wiring"
)

func main() {
	infra.LoadDotenv()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "api").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := wiring.Build(ctx, cfg, logger, wiring.Options{})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to build drivers")
	}
	defer components.Close()

	if cfg.QueueDriver == infra.DriverMemory {
		logger.Warn().Msg("api: memory queue has no consumer in this process; use cmd/standalone for local runs")
	}

	gemini, err := components.GeminiClient(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure gemini client")
	}
	if key, _ := components.GeminiKey(ctx); key == "" {
		logger.Warn().Msg("api: gemini api key missing, muse endpoints will fail")
	}
	logger.Info().Str("model", gemini.Model()).Str("image_model", cfg.GeminiImageModel).Msg("api: gemini configured")

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

	go func() {
		logger.Info().Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
