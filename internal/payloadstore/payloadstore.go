// Package payloadstore keeps event payload bytes in a content-addressed
// Badger key/value store. Payloads are keyed by their content id, so
// identical payloads written by different events are stored once. Larger
// payloads are transparently compressed with lzma.
package payloadstore

import (
	"bytes"
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/ulikunitz/xz/lzma"

	"git.home.luguber.info/inful/chronicle/internal/cid"
	"git.home.luguber.info/inful/chronicle/internal/foundation/errors"
	"git.home.luguber.info/inful/chronicle/internal/observability"
)

// DefaultCompressionThreshold is the payload size in bytes above which
// values are lzma-compressed before storage.
const DefaultCompressionThreshold = 1024

// Value encoding flags, stored as the first byte of every record.
const (
	encodingRaw  byte = 0
	encodingLzma byte = 1
)

var (
	// ErrPayloadNotFound is returned when no payload exists for a content id.
	ErrPayloadNotFound = errors.StorageError("payload not found").Build()

	// ErrStoreClosed is returned on use after Close.
	ErrStoreClosed = errors.StorageError("payload store is closed").Build()
)

// Options configures a Store.
type Options struct {
	// Path is the Badger directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps all data in memory, used by tests and ephemeral runs.
	InMemory bool
	// CompressionThreshold overrides DefaultCompressionThreshold; values of
	// this size or larger are compressed. Negative disables compression.
	CompressionThreshold int
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Store is a content-addressed payload store backed by Badger.
type Store struct {
	db        *badger.DB
	threshold int
	logger    *slog.Logger

	writes uint64
	dedups uint64
	reads  uint64
	closed atomic.Bool
}

// Stats is a point-in-time operation counter snapshot.
type Stats struct {
	Writes       uint64 `json:"writes"`
	Deduplicated uint64 `json:"deduplicated"`
	Reads        uint64 `json:"reads"`
}

// Open opens or creates the payload store.
func Open(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	badgerOpts := badger.DefaultOptions(opts.Path).
		WithInMemory(opts.InMemory).
		WithLogger(nil)
	if !opts.InMemory && opts.Path == "" {
		return nil, errors.ConfigError("payload store path is required").Build()
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, errors.StorageError("open payload store").
			WithCause(err).
			WithContext("path", opts.Path).
			Build()
	}

	threshold := opts.CompressionThreshold
	if threshold == 0 {
		threshold = DefaultCompressionThreshold
	}

	return &Store{db: db, threshold: threshold, logger: logger}, nil
}

// Put stores content and returns its content id. Storing the same content
// twice is a no-op beyond the existence check.
func (s *Store) Put(ctx context.Context, content []byte) (cid.ContentID, error) {
	if s.closed.Load() {
		return cid.ContentID{}, ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return cid.ContentID{}, err
	}

	_, span := observability.GetGlobalTracer().StartStorageSpan(ctx, "payload.put")
	defer span.End()

	id := cid.FromContent(content)
	key := id.Bytes()

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			atomic.AddUint64(&s.dedups, 1)
			return nil
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		value, err := s.encode(content)
		if err != nil {
			return err
		}
		atomic.AddUint64(&s.writes, 1)
		return txn.Set(key, value)
	})
	if err != nil {
		return cid.ContentID{}, errors.StorageError("store payload").
			WithCause(err).
			WithContext("payload_cid", id.String()).
			Build()
	}
	return id, nil
}

// Get returns the content for a content id.
func (s *Store) Get(ctx context.Context, id cid.ContentID) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	atomic.AddUint64(&s.reads, 1)

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(id.Bytes())
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrPayloadNotFound.WithContext("payload_cid", id.String())
	}
	if err != nil {
		return nil, errors.StorageError("read payload").
			WithCause(err).
			WithContext("payload_cid", id.String()).
			Build()
	}
	return s.decode(value, id)
}

// Has reports whether a payload exists for the content id.
func (s *Store) Has(ctx context.Context, id cid.ContentID) (bool, error) {
	if s.closed.Load() {
		return false, ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var exists bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(id.Bytes())
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, errors.StorageError("check payload existence").
			WithCause(err).
			WithContext("payload_cid", id.String()).
			Build()
	}
	return exists, nil
}

// Stats returns operation counters since Open.
func (s *Store) Stats() Stats {
	return Stats{
		Writes:       atomic.LoadUint64(&s.writes),
		Deduplicated: atomic.LoadUint64(&s.dedups),
		Reads:        atomic.LoadUint64(&s.reads),
	}
}

// Close syncs and closes the store. Safe to call more than once.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return errors.StorageError("close payload store").WithCause(err).Build()
	}
	return nil
}

func (s *Store) encode(content []byte) ([]byte, error) {
	if s.threshold < 0 || len(content) < s.threshold {
		return append([]byte{encodingRaw}, content...), nil
	}

	var buf bytes.Buffer
	buf.WriteByte(encodingLzma)
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(content); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	// Incompressible payloads can grow under lzma; keep whichever is smaller.
	if buf.Len() >= len(content)+1 {
		return append([]byte{encodingRaw}, content...), nil
	}
	return buf.Bytes(), nil
}

func (s *Store) decode(value []byte, id cid.ContentID) ([]byte, error) {
	if len(value) == 0 {
		return nil, errors.StorageError("empty payload record").
			WithContext("payload_cid", id.String()).
			Build()
	}
	switch value[0] {
	case encodingRaw:
		return value[1:], nil
	case encodingLzma:
		r, err := lzma.NewReader(bytes.NewReader(value[1:]))
		if err != nil {
			return nil, errors.StorageError("decompress payload").
				WithCause(err).
				WithContext("payload_cid", id.String()).
				Build()
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(r); err != nil {
			return nil, errors.StorageError("decompress payload").
				WithCause(err).
				WithContext("payload_cid", id.String()).
				Build()
		}
		return buf.Bytes(), nil
	default:
		return nil, errors.StorageError("unknown payload encoding").
			WithContext("encoding", int(value[0])).
			WithContext("payload_cid", id.String()).
			Build()
	}
}
