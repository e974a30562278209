package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/calderhq/calder/internal/orchestrator"
	"github.com/calderhq/calder/internal/platform/shutdown"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	a, err := orchestrator.New(ctx)
	if err != nil {
		fmt.Printf("failed to initialize orchestrator: %v\n", err)
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		fmt.Printf("orchestrator exited: %v\n", err)
		os.Exit(1)
	}
}
