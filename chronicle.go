// Package chronicle is the top-level entry point: an event-sourced,
// content-addressed event store with a local SQLite backend and a
// distributed NATS JetStream backend behind one Store interface.
package chronicle

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/chronicle/internal/config"
	"git.home.luguber.info/inful/chronicle/internal/eventstore"
	"git.home.luguber.info/inful/chronicle/internal/metrics"
	"git.home.luguber.info/inful/chronicle/internal/natsstore"
	"git.home.luguber.info/inful/chronicle/internal/observability"
	"git.home.luguber.info/inful/chronicle/internal/payloadstore"
	"git.home.luguber.info/inful/chronicle/internal/projection"
	"git.home.luguber.info/inful/chronicle/internal/routing"
)

// Chronicle wires the configured backend, payload store and metrics
// together behind one handle.
type Chronicle struct {
	cfg      *config.Config
	logger   *slog.Logger
	payloads *payloadstore.Store
	store    eventstore.Store
	registry *prometheus.Registry
	recorder metrics.Recorder
}

// Open builds a Chronicle from the given configuration. The returned
// handle owns the underlying stores; Close releases them.
func Open(ctx context.Context, cfg *config.Config) (*Chronicle, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := NewLogger(cfg.Logging)
	observability.InitGlobalTracer()

	var registry *prometheus.Registry
	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(registry)
	}

	payloads, err := payloadstore.Open(payloadstore.Options{
		Path:                 cfg.Payloads.Path,
		InMemory:             cfg.Payloads.InMemory,
		CompressionThreshold: cfg.Payloads.CompressionThreshold,
		Logger:               logger,
	})
	if err != nil {
		return nil, err
	}

	var store eventstore.Store
	switch cfg.Backend {
	case "local":
		path := cfg.Local.DatabasePath
		if cfg.Local.InMemory {
			path = ":memory:"
		}
		store, err = eventstore.NewSQLiteStore(eventstore.SQLiteOptions{
			Path:     path,
			Payloads: payloads,
			Logger:   logger,
			Recorder: recorder,
		})
	case "nats":
		store, err = natsstore.Open(ctx, natsstore.Options{
			URL:             cfg.NATS.URL,
			StreamName:      cfg.NATS.Stream,
			SubjectPrefix:   cfg.NATS.SubjectPrefix,
			Replicas:        cfg.NATS.Replicas,
			DuplicateWindow: cfg.NATS.DuplicateWindowDuration(),
			OpTimeout:       cfg.NATS.OpTimeoutDuration(),
			CacheMaxBytes:   cfg.NATS.CacheMaxBytes,
			Payloads:        payloads,
			Logger:          logger,
			Recorder:        recorder,
		})
	default:
		err = fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		payloads.Close()
		return nil, err
	}

	logger.Info("chronicle opened", "backend", cfg.Backend)

	return &Chronicle{
		cfg:      cfg,
		logger:   logger,
		payloads: payloads,
		store:    store,
		registry: registry,
		recorder: recorder,
	}, nil
}

// Store returns the unified event store.
func (c *Chronicle) Store() eventstore.Store { return c.store }

// Config returns the configuration the handle was opened with.
func (c *Chronicle) Config() *config.Config { return c.cfg }

// Logger returns the configured logger.
func (c *Chronicle) Logger() *slog.Logger { return c.logger }

// Stats returns store-level counters.
func (c *Chronicle) Stats(ctx context.Context) (eventstore.Stats, error) {
	return c.store.Stats(ctx)
}

// MetricsHandler returns the Prometheus scrape handler, or nil when
// metrics are disabled.
func (c *Chronicle) MetricsHandler() http.Handler {
	if c.registry == nil {
		return nil
	}
	return metrics.HTTPHandler(c.registry)
}

// RebuildGraph replays every stream into a fresh GraphView.
func (c *Chronicle) RebuildGraph(ctx context.Context) (*projection.GraphView, projection.RebuildReport, error) {
	view := projection.NewGraphView()
	report, err := c.RebuildProjection(ctx, view)
	return view, report, err
}

// RebuildProjection resets the projection and replays every stream into
// it, using the configured lane count and routing strategy.
func (c *Chronicle) RebuildProjection(ctx context.Context, p projection.Projection) (report projection.RebuildReport, err error) {
	ctx = observability.WithProjection(ctx, p.Name())
	ctx, span := observability.GetGlobalTracer().StartProjectionSpan(ctx, p.Name())
	defer func() { observability.EndSpan(span, err) }()

	ids, err := c.store.Aggregates(ctx)
	if err != nil {
		return projection.RebuildReport{}, err
	}
	strategy, err := routing.ParseStrategy(c.cfg.Projection.Strategy)
	if err != nil {
		return projection.RebuildReport{}, err
	}
	rebuilder := projection.NewRebuilder(c.store, projection.RebuilderOptions{
		Lanes:    c.cfg.Projection.Lanes,
		Strategy: strategy,
		Logger:   c.logger,
	})
	return rebuilder.Rebuild(ctx, p, ids)
}

// Close releases the event store and the payload store.
func (c *Chronicle) Close() error {
	storeErr := c.store.Close()
	payloadErr := c.payloads.Close()
	if storeErr != nil {
		return storeErr
	}
	return payloadErr
}

// NewLogger builds a slog.Logger from the logging configuration.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
