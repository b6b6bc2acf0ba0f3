package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kartshart/kartshart-backend/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.Error("cartctl command failed", err)
		os.Exit(1)
	}
}
