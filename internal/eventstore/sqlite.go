package eventstore

import (
	"context"
	"database/sql"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/chronicle/internal/cid"
	"git.home.luguber.info/inful/chronicle/internal/identity"
	"git.home.luguber.info/inful/chronicle/internal/metrics"
	"git.home.luguber.info/inful/chronicle/internal/observability"
	"git.home.luguber.info/inful/chronicle/internal/payloadstore"
)

const lockStripes = 64

// SQLiteStore implements Store on a local SQLite database. Event records
// live in SQLite; payload bytes live in the payload store, keyed by content
// id so identical payloads across streams are stored once.
type SQLiteStore struct {
	db       *sql.DB
	payloads *payloadstore.Store
	hub      *hub
	logger   *slog.Logger
	recorder metrics.Recorder

	// stripes serialize appends per aggregate without blocking appends to
	// other aggregates.
	stripes [lockStripes]sync.Mutex

	appends   uint64
	conflicts uint64
	closed    atomic.Bool
}

// SQLiteOptions configures a SQLiteStore.
type SQLiteOptions struct {
	// Path is the database path; ":memory:" keeps it in memory.
	Path string
	// Payloads is the payload blob store. Required.
	Payloads *payloadstore.Store
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// Recorder defaults to the noop recorder.
	Recorder metrics.Recorder
}

// NewSQLiteStore opens or creates a local event store.
func NewSQLiteStore(opts SQLiteOptions) (*SQLiteStore, error) {
	if opts.Payloads == nil {
		return nil, ErrDatabaseOpenFailed.WithContext("reason", "payload store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, ErrDatabaseOpenFailed.WithContext("path", opts.Path)
	}
	// modernc sqlite does not support concurrent writers on one connection
	// pool entry; a single connection with WAL keeps things simple.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		db:       db,
		payloads: opts.Payloads,
		hub:      newHub(logger),
		logger:   logger,
		recorder: recorder,
	}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, ErrInitializeSchemaFailed.WithContext("path", opts.Path)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	PRAGMA journal_mode=WAL;
	CREATE TABLE IF NOT EXISTS events (
		aggregate_id   TEXT    NOT NULL,
		sequence       INTEGER NOT NULL,
		event_type     TEXT    NOT NULL,
		event_cid      TEXT    NOT NULL UNIQUE,
		parent_cids    TEXT    NOT NULL,
		payload_cid    TEXT    NOT NULL,
		message_id     TEXT    NOT NULL,
		correlation_id TEXT    NOT NULL,
		causation_id   TEXT    NOT NULL,
		timestamp      INTEGER NOT NULL,
		PRIMARY KEY (aggregate_id, sequence)
	);
	CREATE INDEX IF NOT EXISTS idx_events_event_cid ON events(event_cid);
	CREATE INDEX IF NOT EXISTS idx_events_correlation ON events(correlation_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) stripe(aggregateID uuid.UUID) *sync.Mutex {
	h := fnv.New32a()
	h.Write(aggregateID[:])
	return &s.stripes[h.Sum32()%lockStripes]
}

// Append adds a single event to the aggregate's stream, unconditionally.
func (s *SQLiteStore) Append(ctx context.Context, aggregateID uuid.UUID, eventType string, payload []byte) (Event, error) {
	events, err := s.AppendEvents(ctx, aggregateID, []ProposedEvent{{EventType: eventType, Payload: payload}}, nil)
	if err != nil {
		return Event{}, err
	}
	return events[0], nil
}

// AppendEvents atomically appends a batch with optional optimistic
// concurrency control.
func (s *SQLiteStore) AppendEvents(ctx context.Context, aggregateID uuid.UUID, events []ProposedEvent, expectedVersion *uint64) ([]Event, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if len(events) == 0 {
		return nil, ErrEmptyAppend
	}

	ctx, span := observability.GetGlobalTracer().StartAppendSpan(ctx, aggregateID.String())
	span.SetAttribute("batch.size", len(events))
	defer span.End()

	start := time.Now()
	mu := s.stripe(aggregateID)
	mu.Lock()
	defer mu.Unlock()

	head, err := s.head(ctx, aggregateID)
	if err != nil {
		return nil, err
	}
	if expectedVersion != nil && *expectedVersion != head.version {
		atomic.AddUint64(&s.conflicts, 1)
		s.recorder.IncAppendConflict()
		return nil, ErrConcurrencyConflict.
			WithContext("aggregate_id", aggregateID.String()).
			WithContext("expected_version", *expectedVersion).
			WithContext("current_version", head.version)
	}

	// Payload blobs are written before the SQLite transaction; a payload
	// row without an event referencing it is harmless garbage, the reverse
	// would be a broken stream.
	committed := make([]Event, 0, len(events))
	sequence := head.version
	parents := head.parents()
	lastIdentity := head.identity
	now := time.Now().UTC()

	for _, proposed := range events {
		sequence++
		payloadCID, perr := s.payloads.Put(ctx, proposed.Payload)
		if perr != nil {
			return nil, perr
		}
		eventCID := ComputeEventCID(aggregateID, proposed.EventType, sequence, payloadCID, parents)

		var ident identity.MessageIdentity
		switch {
		case proposed.CausedBy != nil:
			ident = identity.EventFromCommand(eventCID, *proposed.CausedBy)
		case lastIdentity != nil:
			ident = identity.EventFromEvent(eventCID, *lastIdentity)
		default:
			ident = identity.RootEvent(eventCID)
		}

		committed = append(committed, Event{
			AggregateID: aggregateID,
			Sequence:    sequence,
			EventType:   proposed.EventType,
			EventCID:    eventCID,
			ParentCIDs:  parents,
			PayloadCID:  payloadCID,
			Identity:    ident,
			Timestamp:   now,
		})
		parents = []cid.ContentID{eventCID}
		identCopy := ident
		lastIdentity = &identCopy
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, ErrEventAppendFailed.WithContext("aggregate_id", aggregateID.String())
	}
	defer tx.Rollback()

	for _, ev := range committed {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO events (aggregate_id, sequence, event_type, event_cid, parent_cids,
			 payload_cid, message_id, correlation_id, causation_id, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.AggregateID.String(), ev.Sequence, ev.EventType, ev.EventCID.String(),
			joinCIDs(ev.ParentCIDs), ev.PayloadCID.String(),
			ev.Identity.MessageID.String(), ev.Identity.CorrelationID.String(),
			ev.Identity.CausationID.String(), ev.Timestamp.UnixNano(),
		)
		if err != nil {
			return nil, ErrEventAppendFailed.
				WithContext("aggregate_id", ev.AggregateID.String()).
				WithContext("sequence", ev.Sequence)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, ErrEventAppendFailed.WithContext("aggregate_id", aggregateID.String())
	}

	atomic.AddUint64(&s.appends, 1)
	s.recorder.IncAppend()
	s.recorder.ObserveAppendDuration(time.Since(start))
	s.hub.publish(committed)
	return committed, nil
}

type streamHead struct {
	version  uint64
	lastCID  cid.ContentID
	identity *identity.MessageIdentity
}

func (h streamHead) parents() []cid.ContentID {
	if h.version == 0 {
		return nil
	}
	return []cid.ContentID{h.lastCID}
}

func (s *SQLiteStore) head(ctx context.Context, aggregateID uuid.UUID) (streamHead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT sequence, event_cid, message_id, correlation_id, causation_id
		 FROM events WHERE aggregate_id = ? ORDER BY sequence DESC LIMIT 1`,
		aggregateID.String(),
	)

	var seq uint64
	var eventCID, messageID, correlationID, causationID string
	err := row.Scan(&seq, &eventCID, &messageID, &correlationID, &causationID)
	if err == sql.ErrNoRows {
		return streamHead{}, nil
	}
	if err != nil {
		return streamHead{}, ErrEventQueryFailed.WithContext("aggregate_id", aggregateID.String())
	}

	last, err := cid.Parse(eventCID)
	if err != nil {
		return streamHead{}, ErrEventScanFailed.WithContext("aggregate_id", aggregateID.String())
	}
	ident, err := parseIdentity(messageID, correlationID, causationID)
	if err != nil {
		return streamHead{}, err
	}
	return streamHead{version: seq, lastCID: last, identity: &ident}, nil
}

const eventColumns = `aggregate_id, sequence, event_type, event_cid, parent_cids,
 payload_cid, message_id, correlation_id, causation_id, timestamp`

// Events returns the aggregate's full stream in sequence order.
func (s *SQLiteStore) Events(ctx context.Context, aggregateID uuid.UUID) ([]Event, error) {
	return s.EventsFrom(ctx, aggregateID, 0)
}

// EventsFrom returns the stream starting at the given sequence.
func (s *SQLiteStore) EventsFrom(ctx context.Context, aggregateID uuid.UUID, position uint64) ([]Event, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	ctx, span := observability.GetGlobalTracer().StartReplaySpan(ctx, aggregateID.String(), position)
	defer span.End()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE aggregate_id = ? AND sequence >= ? ORDER BY sequence`,
		aggregateID.String(), position,
	)
	if err != nil {
		return nil, ErrEventQueryFailed.WithContext("aggregate_id", aggregateID.String())
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	s.recorder.AddEventsReplayed(len(events))
	return events, nil
}

// EventByCID looks up a single event by its content id.
func (s *SQLiteStore) EventByCID(ctx context.Context, id cid.ContentID) (Event, error) {
	if s.closed.Load() {
		return Event{}, ErrStoreClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE event_cid = ?`, id.String())
	if err != nil {
		return Event{}, ErrEventQueryFailed.WithContext("event_cid", id.String())
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return Event{}, err
	}
	if len(events) == 0 {
		return Event{}, ErrEventNotFound.WithContext("event_cid", id.String())
	}
	return events[0], nil
}

// TraverseFrom walks parent links backward from the given event.
func (s *SQLiteStore) TraverseFrom(ctx context.Context, id cid.ContentID, limit int) ([]Event, error) {
	var chain []Event
	current := id
	for limit <= 0 || len(chain) < limit {
		ev, err := s.EventByCID(ctx, current)
		if err != nil {
			return nil, err
		}
		chain = append(chain, ev)
		if len(ev.ParentCIDs) == 0 {
			break
		}
		current = ev.ParentCIDs[0]
	}
	return chain, nil
}

// Payload returns the payload bytes for a payload cid.
func (s *SQLiteStore) Payload(ctx context.Context, id cid.ContentID) ([]byte, error) {
	return s.payloads.Get(ctx, id)
}

// Subscribe delivers events committed after the call.
func (s *SQLiteStore) Subscribe(ctx context.Context, aggregateID *uuid.UUID) (*Subscription, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	return s.hub.subscribe(ctx, aggregateID), nil
}

// Version returns the aggregate's current version.
func (s *SQLiteStore) Version(ctx context.Context, aggregateID uuid.UUID) (uint64, error) {
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM events WHERE aggregate_id = ?`,
		aggregateID.String())
	var version uint64
	if err := row.Scan(&version); err != nil {
		return 0, ErrEventQueryFailed.WithContext("aggregate_id", aggregateID.String())
	}
	return version, nil
}

// Aggregates lists all stream ids.
func (s *SQLiteStore) Aggregates(ctx context.Context) ([]uuid.UUID, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT aggregate_id FROM events ORDER BY aggregate_id`)
	if err != nil {
		return nil, ErrEventQueryFailed.WithContext("query", "aggregates")
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, ErrEventScanFailed.WithContext("column", "aggregate_id")
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, ErrEventScanFailed.WithContext("aggregate_id", raw)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats returns store-level counters.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	if s.closed.Load() {
		return Stats{}, ErrStoreClosed
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT aggregate_id) FROM events`)
	var stats Stats
	if err := row.Scan(&stats.TotalEvents, &stats.Aggregates); err != nil {
		return Stats{}, ErrEventQueryFailed.WithContext("query", "stats")
	}
	stats.Appends = atomic.LoadUint64(&s.appends)
	stats.Conflicts = atomic.LoadUint64(&s.conflicts)
	return stats, nil
}

// Close closes the database and ends all subscriptions.
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.hub.close()
	return s.db.Close()
}

func joinCIDs(ids []cid.ContentID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}

func splitCIDs(joined string) ([]cid.ContentID, error) {
	if joined == "" {
		return nil, nil
	}
	parts := strings.Split(joined, ",")
	ids := make([]cid.ContentID, len(parts))
	for i, part := range parts {
		id, err := cid.Parse(part)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func parseIdentity(messageID, correlationID, causationID string) (identity.MessageIdentity, error) {
	var ident identity.MessageIdentity
	var err error
	if ident.MessageID, err = identity.ParseID(messageID); err != nil {
		return identity.MessageIdentity{}, ErrEventScanFailed.WithContext("field", "message_id")
	}
	if ident.CorrelationID, err = identity.ParseID(correlationID); err != nil {
		return identity.MessageIdentity{}, ErrEventScanFailed.WithContext("field", "correlation_id")
	}
	if ident.CausationID, err = identity.ParseID(causationID); err != nil {
		return identity.MessageIdentity{}, ErrEventScanFailed.WithContext("field", "causation_id")
	}
	return ident, nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	events := []Event{}
	for rows.Next() {
		var aggregate, eventType, eventCID, parentCIDs, payloadCID string
		var messageID, correlationID, causationID string
		var sequence uint64
		var timestampNano int64

		err := rows.Scan(&aggregate, &sequence, &eventType, &eventCID, &parentCIDs,
			&payloadCID, &messageID, &correlationID, &causationID, &timestampNano)
		if err != nil {
			return nil, ErrEventScanFailed.WithContext("reason", err.Error())
		}

		aggregateID, err := uuid.Parse(aggregate)
		if err != nil {
			return nil, ErrEventScanFailed.WithContext("field", "aggregate_id")
		}
		eCID, err := cid.Parse(eventCID)
		if err != nil {
			return nil, ErrEventScanFailed.WithContext("field", "event_cid")
		}
		pCID, err := cid.Parse(payloadCID)
		if err != nil {
			return nil, ErrEventScanFailed.WithContext("field", "payload_cid")
		}
		parents, err := splitCIDs(parentCIDs)
		if err != nil {
			return nil, ErrEventScanFailed.WithContext("field", "parent_cids")
		}
		ident, err := parseIdentity(messageID, correlationID, causationID)
		if err != nil {
			return nil, err
		}

		events = append(events, Event{
			AggregateID: aggregateID,
			Sequence:    sequence,
			EventType:   eventType,
			EventCID:    eCID,
			ParentCIDs:  parents,
			PayloadCID:  pCID,
			Identity:    ident,
			Timestamp:   time.Unix(0, timestampNano).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, ErrEventQueryFailed.WithContext("reason", err.Error())
	}
	return events, nil
}
