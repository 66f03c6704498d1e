package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/quill-hq/quill/internal/app"
	"github.com/quill-hq/quill/internal/config"
	"github.com/quill-hq/quill/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("server starting", "server_config", map[string]any{
		"address":          cfg.Addr(),
		"workers":          cfg.Workers,
		"rate_limit_rps":   cfg.RateLimitRPS,
		"rate_limit_burst": cfg.RateLimitBurst,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunServer(ctx, cfg, log.Zap()); err != nil {
		logger.ErrorObj("server exited with error", "error", err.Error())
		return fmt.Errorf("server run: %w", err)
	}
	return nil
}
