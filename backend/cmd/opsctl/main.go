package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/adlens/adlens/backend/config"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	runner := NewRunner(RunnerOpts{Config: cfg, Logger: logger})

	app := &cli.Command{
		Name:     "opsctl",
		Usage:    "Operator tasks for the adlens backend",
		Commands: runner.register(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		logger.Fatalf("opsctl: %v", err)
	}
}
