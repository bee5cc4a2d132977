package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"strategyd/internal/api"
	"strategyd/internal/config"
	"strategyd/internal/handlers"
	"strategyd/internal/service"
)

func main() {
	configPath := flag.String("config", "strategyd.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("could not load config, using defaults")
		cfg = config.Default()
	}
	zerolog.SetGlobalLevel(cfg.Level())

	sup := service.NewSupervisor(cfg.Worker, cfg.Reset)
	tailer := service.NewTailer(cfg.Worker.LogPath(), sup)

	router := api.NewRouter(
		handlers.NewStrategyHandler(sup, tailer),
		handlers.NewHealthHandler(sup),
		cfg.Server.CORSOrigins,
	)

	srv := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// reset blocks for up to its full timeout before a response is written
		WriteTimeout: cfg.Reset.Timeout() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("strategy control API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	// Take the worker down with us; an orphaned worker keeps trading blind.
	if err := sup.Stop(); err != nil && !errors.Is(err, service.ErrNotRunning) {
		log.Warn().Err(err).Msg("could not stop strategy worker on shutdown")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
}
