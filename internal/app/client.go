// Package app assembles the quill runtimes from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/quill-hq/quill/internal/checkout"
	"github.com/quill-hq/quill/internal/config"
	"github.com/quill-hq/quill/internal/logger"
	"github.com/quill-hq/quill/internal/observability"
	"github.com/quill-hq/quill/internal/probe"
	"github.com/quill-hq/quill/internal/storage"
	"github.com/quill-hq/quill/pkg/billing"
	"github.com/quill-hq/quill/pkg/httpclient"
	"github.com/quill-hq/quill/pkg/notifiers"
)

// Client is the checkout runtime used by the CLI. It owns the billing client,
// the session store and the notifier fanout.
type Client struct {
	cfg     *config.Config
	API     *billing.Client
	Flow    *checkout.Flow
	Metrics *observability.Metrics
	store   storage.Store
	fanout  *notifiers.Fanout
	http    httpclient.Client
	log     logger.Logger
}

// ClientOptions overrides pieces of the runtime. Zero values use defaults.
type ClientOptions struct {
	Out     io.Writer
	Alerter checkout.Alerter
	Opener  checkout.URLOpener
}

// NewClient builds a checkout runtime from cfg.
func NewClient(ctx context.Context, cfg *config.Config, log logger.Logger, opts ClientOptions) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Alerter == nil {
		opts.Alerter = checkout.NewConsoleAlerter(os.Stderr)
	}

	metrics := observability.NewMetrics()
	hc := httpclient.NewRestyClient(cfg.RequestTimeout)
	api, err := billing.New(
		billing.Config{BaseURL: cfg.APIBaseURL, AuthToken: cfg.AuthToken},
		billing.WithHTTPClient(hc),
		billing.WithObserver(metrics.ObserveClientRequest),
	)
	if err != nil {
		return nil, fmt.Errorf("init billing client: %w", err)
	}

	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storage.Options{
		TTL:             cfg.SessionTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.DebugObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"session_ttl_seconds":      int(cfg.SessionTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	fanout, err := buildFanout(ctx, cfg.NotifiersFile, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	flow, err := checkout.NewFlow(checkout.Deps{
		API:       api,
		Store:     store,
		Out:       opts.Out,
		Alerter:   opts.Alerter,
		Opener:    opts.Opener,
		Publisher: fanout,
		Log:       log,
	})
	if err != nil {
		_ = fanout.Close()
		_ = store.Close()
		return nil, err
	}

	return &Client{
		cfg:     cfg,
		API:     api,
		Flow:    flow,
		Metrics: metrics,
		store:   store,
		fanout:  fanout,
		http:    hc,
		log:     log,
	}, nil
}

// Prober returns an API key prober sharing the runtime's HTTP transport.
func (c *Client) Prober() (*probe.Prober, error) {
	return probe.New(probe.Options{
		BaseURL: c.cfg.AnthropicBaseURL,
		APIKey:  c.cfg.AnthropicAPIKey,
		HTTP:    c.http,
		Log:     c.log,
	})
}

// Close releases the notifiers and the session store.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if err := c.fanout.Close(); err != nil {
		errs = append(errs, err)
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}

// buildFanout loads the notifier registry. An empty path yields an empty fanout.
func buildFanout(ctx context.Context, path string, log logger.Logger) (*notifiers.Fanout, error) {
	if path == "" {
		return notifiers.NewFanout(nil), nil
	}
	reg, err := notifiers.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load notifiers registry: %w", err)
	}
	enabled := reg.Enabled()
	built, err := notifiers.BuildAll(ctx, notifiers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build notifiers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, n := range enabled {
		summaries = append(summaries, map[string]string{"id": n.ID, "type": n.Type})
	}
	log.InfoObj("notifiers registry loaded", "notifiers_meta", map[string]any{
		"count":     len(summaries),
		"notifiers": summaries,
	})
	return notifiers.NewFanout(built), nil
}
