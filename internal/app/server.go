package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/quill-hq/quill/internal/config"
	"github.com/quill-hq/quill/internal/observability"
	"github.com/quill-hq/quill/internal/server"
)

// NewServer builds the HTTP API process from cfg.
func NewServer(cfg *config.Config, log *zap.Logger) (*server.Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	return server.New(server.Options{
		Addr:           cfg.Addr(),
		Workers:        cfg.Workers,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, log, observability.NewMetrics()), nil
}

// RunServer builds and runs the HTTP API until ctx is cancelled.
func RunServer(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	srv, err := NewServer(cfg, log)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
