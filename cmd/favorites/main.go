package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Clark-Hu/movie-favorites/internal/app"
	"github.com/Clark-Hu/movie-favorites/internal/cli"
	"github.com/Clark-Hu/movie-favorites/internal/config"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand(version, open)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func open(ctx context.Context) (*cli.App, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config error: %w", err)
	}
	// Logs go to stderr so command output stays pipeable.
	logger, err := app.NewLogger(cfg, os.Stderr)
	if err != nil {
		return nil, nil, err
	}

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return &cli.App{Favorites: a.Favorites, Catalog: a.Catalog}, a.Close, nil
}
