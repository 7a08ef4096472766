// Package main CineMind 命令行入口
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"cinemind/internal/config"
	"cinemind/internal/interfaces/cli"
	einoobs "cinemind/internal/observability/eino"
	"cinemind/internal/wire"
	"cinemind/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	einoobs.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	load := func(ctx context.Context) (*cli.Deps, func(), error) {
		app, cleanup, err := wire.InitializeApp(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return &cli.Deps{Ingester: app.Runner, Asker: app.Pipeline, Movies: app.Movies, Runs: app.Runs}, cleanup, nil
	}

	root := cli.NewRootCmd(load)
	root.SetOut(os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
