// Package natsstore implements the distributed event store on NATS
// JetStream. Every aggregate stream maps to one subject under a shared
// stream; appends are optimistic-concurrency-controlled with JetStream's
// expected-last-sequence-per-subject guard, so replicas of the writer never
// fork a stream.
package natsstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/chronicle/internal/foundation/errors"
	"git.home.luguber.info/inful/chronicle/internal/metrics"
	"git.home.luguber.info/inful/chronicle/internal/payloadstore"
)

const (
	// DefaultStreamName is the JetStream stream holding all events.
	DefaultStreamName = "CHRONICLE-EVENTS"
	// DefaultSubjectPrefix prefixes per-aggregate subjects.
	DefaultSubjectPrefix = "events"
	// DefaultDuplicateWindow is the server-side dedup window; message id is
	// the event cid, so redelivered publishes collapse.
	DefaultDuplicateWindow = 2 * time.Minute
	// DefaultOpTimeout bounds individual NATS operations.
	DefaultOpTimeout = 5 * time.Second
	// DefaultCacheMaxBytes bounds the read-through stream cache.
	DefaultCacheMaxBytes = 64 << 20
)

// ErrStoreUnavailable indicates the replicated log cannot be reached.
var ErrStoreUnavailable = errors.NatsError("event log unavailable").Build()

// Options configures the distributed store.
type Options struct {
	// URL is the NATS server URL; nats.DefaultURL when empty.
	URL string
	// StreamName overrides DefaultStreamName.
	StreamName string
	// SubjectPrefix overrides DefaultSubjectPrefix.
	SubjectPrefix string
	// Replicas is the JetStream replica count, default 1.
	Replicas int
	// DuplicateWindow overrides DefaultDuplicateWindow.
	DuplicateWindow time.Duration
	// OpTimeout overrides DefaultOpTimeout.
	OpTimeout time.Duration
	// CacheMaxBytes bounds the read cache; negative disables it.
	CacheMaxBytes int64
	// Payloads is the local payload blob store. Required.
	Payloads *payloadstore.Store
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// Recorder defaults to the noop recorder.
	Recorder metrics.Recorder
}

func (o *Options) applyDefaults() {
	if o.URL == "" {
		o.URL = nats.DefaultURL
	}
	if o.StreamName == "" {
		o.StreamName = DefaultStreamName
	}
	if o.SubjectPrefix == "" {
		o.SubjectPrefix = DefaultSubjectPrefix
	}
	if o.Replicas <= 0 {
		o.Replicas = 1
	}
	if o.DuplicateWindow <= 0 {
		o.DuplicateWindow = DefaultDuplicateWindow
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = DefaultOpTimeout
	}
	if o.CacheMaxBytes == 0 {
		o.CacheMaxBytes = DefaultCacheMaxBytes
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Recorder == nil {
		o.Recorder = metrics.NoopRecorder{}
	}
}

// connect dials NATS and ensures the event stream exists.
func connect(ctx context.Context, opts Options) (*nats.Conn, jetstream.JetStream, jetstream.Stream, error) {
	conn, err := nats.Connect(opts.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, nil, nil, ErrStoreUnavailable.WithContext("url", opts.URL)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, nil, nil, ErrStoreUnavailable.WithContext("url", opts.URL)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.OpTimeout)
	defer cancel()
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        opts.StreamName,
		Description: "chronicle event log",
		Subjects:    []string{opts.SubjectPrefix + ".>"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		Duplicates:  opts.DuplicateWindow,
		Replicas:    opts.Replicas,
	})
	if err != nil {
		conn.Close()
		return nil, nil, nil, ErrStoreUnavailable.
			WithContext("url", opts.URL).
			WithContext("stream", opts.StreamName)
	}

	opts.Logger.Info("connected to event log",
		"url", opts.URL,
		"stream", opts.StreamName,
		"replicas", opts.Replicas)
	return conn, js, stream, nil
}
