package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"git.home.luguber.info/inful/chronicle"
	"git.home.luguber.info/inful/chronicle/internal/config"
	"git.home.luguber.info/inful/chronicle/internal/eventstore"
	"git.home.luguber.info/inful/chronicle/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"chronicle.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	Append struct {
		Aggregate string `short:"a" help:"Aggregate id (uuid); a new one is generated when empty"`
		Type      string `short:"t" help:"Event type" default:"node.added"`
		Payload   string `short:"p" help:"JSON payload" default:"{}"`
		Expect    int64  `help:"Expected stream version; -1 appends unconditionally" default:"-1"`
	} `cmd:"" help:"Append an event to a stream"`

	Replay struct {
		Aggregate string `short:"a" help:"Replay one stream instead of rebuilding the projection"`
	} `cmd:"" help:"Rebuild the graph projection and print a summary"`

	Serve struct {
		Aggregate string `short:"a" help:"Subscribe to one stream instead of all"`
	} `cmd:"" help:"Print live events as they are committed"`

	Stats struct{} `cmd:"" help:"Print store statistics"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	var err error
	switch ctx.Command() {
	case "init":
		err = config.Init(CLI.Config, CLI.Init.Force)
	case "append":
		err = withStore(runAppend)
	case "replay":
		err = withStore(runReplay)
	case "serve":
		err = withStore(runServe)
	case "stats":
		err = withStore(runStats)
	case "version":
		fmt.Printf("chronicle %s (commit %s, built %s)\n",
			version.Version, version.GitCommit, version.BuildTime)
	}
	if err != nil {
		slog.Error("Command failed", "command", ctx.Command(), "error", err)
		os.Exit(1)
	}
}

// withStore loads configuration, opens the store and guarantees it is
// closed when the command returns.
func withStore(run func(ctx context.Context, c *chronicle.Chronicle) error) error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}
	if CLI.Verbose {
		cfg.Logging.Level = "debug"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := chronicle.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			slog.Warn("Failed to close store", "error", err)
		}
	}()

	return run(ctx, c)
}

func runAppend(ctx context.Context, c *chronicle.Chronicle) error {
	aggregateID := uuid.New()
	if CLI.Append.Aggregate != "" {
		var err error
		aggregateID, err = uuid.Parse(CLI.Append.Aggregate)
		if err != nil {
			return fmt.Errorf("invalid aggregate id: %w", err)
		}
	}
	if !json.Valid([]byte(CLI.Append.Payload)) {
		return fmt.Errorf("payload is not valid JSON")
	}

	proposed := []eventstore.ProposedEvent{{
		EventType: CLI.Append.Type,
		Payload:   []byte(CLI.Append.Payload),
	}}
	var expected *uint64
	if CLI.Append.Expect >= 0 {
		v := uint64(CLI.Append.Expect)
		expected = &v
	}

	committed, err := c.Store().AppendEvents(ctx, aggregateID, proposed, expected)
	if err != nil {
		return err
	}

	event := committed[0]
	fmt.Printf("aggregate: %s\nsequence:  %d\nevent_cid: %s\n",
		event.AggregateID, event.Sequence, event.EventCID)
	return nil
}

func runReplay(ctx context.Context, c *chronicle.Chronicle) error {
	if CLI.Replay.Aggregate != "" {
		aggregateID, err := uuid.Parse(CLI.Replay.Aggregate)
		if err != nil {
			return fmt.Errorf("invalid aggregate id: %w", err)
		}
		events, err := c.Store().Events(ctx, aggregateID)
		if err != nil {
			return err
		}
		for _, event := range events {
			fmt.Printf("%6d  %-20s %s\n", event.Sequence, event.EventType, event.EventCID)
		}
		fmt.Printf("%d events\n", len(events))
		return nil
	}

	start := time.Now()
	view, report, err := c.RebuildGraph(ctx)
	if err != nil {
		return err
	}
	summary := view.Summary()

	fmt.Printf("aggregates: %d\nevents:     %d\nnodes:      %d\nedges:      %d\nelapsed:    %s\n",
		report.Aggregates, report.Events, summary.NodeCount, summary.EdgeCount,
		time.Since(start).Round(time.Millisecond))
	for _, failed := range report.Failed {
		fmt.Printf("failed:     %s\n", failed)
	}
	return nil
}

func runServe(ctx context.Context, c *chronicle.Chronicle) error {
	var aggregateID *uuid.UUID
	if CLI.Serve.Aggregate != "" {
		id, err := uuid.Parse(CLI.Serve.Aggregate)
		if err != nil {
			return fmt.Errorf("invalid aggregate id: %w", err)
		}
		aggregateID = &id
	}

	if handler := c.MetricsHandler(); handler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		server := &http.Server{Addr: c.Config().Metrics.Listen, Handler: mux}
		go func() {
			slog.Info("Metrics endpoint listening", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics endpoint failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	sub, err := c.Store().Subscribe(ctx, aggregateID)
	if err != nil {
		return err
	}
	defer sub.Close()

	slog.Info("Subscribed, waiting for events...")
	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutdown signal received")
			return nil
		case event, ok := <-sub.EventsChan():
			if !ok {
				return nil
			}
			slog.Info("Event committed",
				"aggregate", event.AggregateID,
				"sequence", event.Sequence,
				"type", event.EventType,
				"cid", event.EventCID.String(),
				"correlation", event.Identity.CorrelationID.String())
		}
	}
}

func runStats(ctx context.Context, c *chronicle.Chronicle) error {
	stats, err := c.Stats(ctx)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
