package main

import (
	"context"
	"os"

	"github.com/calderhq/calder/internal/cli"
	"github.com/calderhq/calder/internal/platform/shutdown"
)

func main() {
	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	if err := cli.NewRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
