// Package main runs the race server: the echo HTTP API, the gRPC
// RaceService, and the store housekeeping, assembled by wire.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/derby/internal/config"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, cleanup, err := initializeApp(ctx, cfg)
	if err != nil {
		log.Fatalf("initializing server: %v", err)
	}
	defer cleanup()

	app.Logger.Info("starting race server",
		zap.String("name", cfg.Server.Name),
		zap.String("http_addr", cfg.HTTP.Addr()),
		zap.Bool("grpc_enabled", cfg.GRPC.Enabled),
		zap.String("grpc_addr", cfg.GRPC.Addr()),
		zap.String("store", cfg.Store.Backend),
		zap.Duration("startup", time.Since(start)),
	)

	if err := app.Lifecycle.Run(ctx); err != nil {
		app.Logger.Error("server exited with error", zap.Error(err))
		cleanup()
		log.Fatalf("server: %v", err)
	}
}
