package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/calderhq/calder/internal/controller"
	"github.com/calderhq/calder/internal/platform/logger"
	"github.com/calderhq/calder/internal/platform/shutdown"
)

func main() {
	_ = godotenv.Load()

	cfg, err := controller.LoadConfig()
	if err != nil {
		fmt.Printf("failed to load controller config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	metrics := controller.NewMetricsClient(cfg.OrchestratorURL, 30*time.Second, log)
	scaler, err := controller.NewDeploymentScaler(cfg.DeploymentNamespace, cfg.DeploymentName, log)
	if err != nil {
		fmt.Printf("failed to initialize deployment scaler: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	if err := controller.New(cfg, metrics, scaler, log).Run(ctx); err != nil {
		fmt.Printf("controller exited: %v\n", err)
		os.Exit(1)
	}
}
