package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"market-voice-ledger/internal/app"
	"market-voice-ledger/internal/config"
)

func main() {
	cfg := config.Load()

	application, err := app.New(cfg, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	application.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	application.Shutdown()
	log.Info().Msg("shutdown complete")
}
