package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ehr/inventory-ledger/internal/inventory/app"
	"github.com/ehr/inventory-ledger/pkg/config"
	"github.com/ehr/inventory-ledger/pkg/logger"
)

func main() {
	// Fails fast in production when required config is missing
	cfg, err := config.LoadWithValidation(app.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(app.ServiceName, cfg.Server.Environment)
	log.Info().Msg("starting Inventory Service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := app.NewServer(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start inventory service")
	}

	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server error")
	}
	srv.Close(context.Background())

	log.Info().Msg("server stopped")
}
