package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/calderhq/calder/internal/platform/logger"
	"github.com/calderhq/calder/internal/platform/shutdown"
	"github.com/calderhq/calder/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := worker.LoadConfig()
	if err != nil {
		fmt.Printf("failed to load worker config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	client := worker.NewClient(cfg, log)
	executor := worker.NewExecutor(cfg.ScriptTimeout, cfg.Sandbox, log)
	runner := worker.NewRunner(cfg, client, executor, log)

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	if err := runner.Run(ctx); err != nil {
		fmt.Printf("worker exited: %v\n", err)
		os.Exit(1)
	}
}
