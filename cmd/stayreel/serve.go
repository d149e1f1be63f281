package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/stayreel/internal/app"
	"github.com/ternarybob/stayreel/internal/common"
)

func runServe(args []string) int {
	fs, cf := newFlagSet("serve")
	_ = fs.Parse(args)

	if err := loadConfig(cf); err != nil {
		return 1
	}
	// Production output goes to log shippers, keep it free of the banner
	if !config.IsProduction() {
		common.PrintBanner(common.LoadVersionFromFile())
	}

	application, err := app.New(config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return 1
	}
	defer application.Close()

	if err := application.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start application")
		return 1
	}

	logger.Info().
		Str("version", common.GetVersion()).
		Int("workers", config.Queue.Concurrency).
		Msg("StayReel ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down")
	return 0
}
