package natsstore

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/chronicle/internal/cid"
	"git.home.luguber.info/inful/chronicle/internal/eventstore"
	"git.home.luguber.info/inful/chronicle/internal/foundation/errors"
	"git.home.luguber.info/inful/chronicle/internal/identity"
	"git.home.luguber.info/inful/chronicle/internal/observability"
	"git.home.luguber.info/inful/chronicle/internal/payloadstore"
	"git.home.luguber.info/inful/chronicle/internal/retry"
)

// envelope is the wire form of one event. The payload travels inline so any
// replica can materialize its local payload store from the log alone.
type envelope struct {
	eventstore.Event
	Payload []byte `json:"payload"`
}

type head struct {
	mu       sync.Mutex
	hydrated bool
	version  uint64
	lastCID  cid.ContentID
	identity *identity.MessageIdentity
	// streamSeq is the JetStream stream sequence of the subject's last
	// message, the token the per-subject publish guard checks.
	streamSeq uint64
}

func (h *head) parents() []cid.ContentID {
	if h.version == 0 {
		return nil
	}
	return []cid.ContentID{h.lastCID}
}

// Store implements eventstore.Store on a shared JetStream event log.
type Store struct {
	opts     Options
	conn     *nats.Conn
	js       jetstream.JetStream
	stream   jetstream.Stream
	payloads *payloadstore.Store
	cache    *streamCache

	// retryPolicy bounds retries of unconditional appends that lose a
	// race against a foreign writer.
	retryPolicy retry.Policy

	headsMu sync.Mutex
	heads   map[uuid.UUID]*head

	indexMu sync.RWMutex
	index   map[cid.ContentID]eventstore.Event

	appends   uint64
	conflicts uint64
	closed    atomic.Bool
}

// Open connects to NATS, ensures the stream exists and returns the store.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Payloads == nil {
		return nil, errors.ConfigError("payload store is required").Build()
	}
	opts.applyDefaults()

	conn, js, stream, err := connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	cache, err := newStreamCache(opts.CacheMaxBytes, opts.Recorder)
	if err != nil {
		conn.Close()
		return nil, errors.InternalError("read cache initialization failed").WithCause(err).Build()
	}

	return &Store{
		opts:        opts,
		conn:        conn,
		js:          js,
		stream:      stream,
		payloads:    opts.Payloads,
		cache:       cache,
		retryPolicy: retry.DefaultPolicy(),
		heads:       make(map[uuid.UUID]*head),
		index:       make(map[cid.ContentID]eventstore.Event),
	}, nil
}

func (s *Store) subject(aggregateID uuid.UUID) string {
	return s.opts.SubjectPrefix + "." + aggregateID.String()
}

func (s *Store) headFor(aggregateID uuid.UUID) *head {
	s.headsMu.Lock()
	defer s.headsMu.Unlock()
	h, ok := s.heads[aggregateID]
	if !ok {
		h = &head{}
		s.heads[aggregateID] = h
	}
	return h
}

// hydrate loads the subject's last message into the head. Caller holds h.mu.
func (s *Store) hydrate(ctx context.Context, aggregateID uuid.UUID, h *head) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	raw, err := s.stream.GetLastMsgForSubject(ctx, s.subject(aggregateID))
	if err != nil {
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			h.hydrated = true
			h.version = 0
			h.streamSeq = 0
			h.identity = nil
			return nil
		}
		return ErrStoreUnavailable.WithContext("aggregate_id", aggregateID.String())
	}

	var env envelope
	if err := json.Unmarshal(raw.Data, &env); err != nil {
		return eventstore.ErrEventScanFailed.WithContext("aggregate_id", aggregateID.String())
	}
	ident := env.Identity
	h.hydrated = true
	h.version = env.Sequence
	h.lastCID = env.EventCID
	h.identity = &ident
	h.streamSeq = raw.Sequence
	return nil
}

// Append adds a single event to the aggregate's stream, unconditionally.
func (s *Store) Append(ctx context.Context, aggregateID uuid.UUID, eventType string, payload []byte) (eventstore.Event, error) {
	events, err := s.AppendEvents(ctx, aggregateID,
		[]eventstore.ProposedEvent{{EventType: eventType, Payload: payload}}, nil)
	if err != nil {
		return eventstore.Event{}, err
	}
	return events[0], nil
}

// AppendEvents appends a batch with optional optimistic concurrency
// control. Events publish one at a time under the per-subject sequence
// guard; if a foreign writer slips in mid-batch the committed prefix stands
// (it is a valid chain) and the call reports a conflict.
func (s *Store) AppendEvents(ctx context.Context, aggregateID uuid.UUID, events []eventstore.ProposedEvent, expectedVersion *uint64) ([]eventstore.Event, error) {
	if s.closed.Load() {
		return nil, eventstore.ErrStoreClosed
	}
	if len(events) == 0 {
		return nil, eventstore.ErrEmptyAppend
	}

	ctx = observability.WithAggregateID(ctx, aggregateID.String())
	ctx, span := observability.GetGlobalTracer().StartAppendSpan(ctx, aggregateID.String())
	span.SetAttribute("batch.size", len(events))
	defer span.End()

	h := s.headFor(aggregateID)
	h.mu.Lock()
	defer h.mu.Unlock()

	for attempt := 0; ; attempt++ {
		if !h.hydrated {
			if err := s.hydrate(ctx, aggregateID, h); err != nil {
				return nil, err
			}
		}
		if expectedVersion != nil && *expectedVersion != h.version {
			atomic.AddUint64(&s.conflicts, 1)
			s.opts.Recorder.IncAppendConflict()
			s.cache.drop(aggregateID)
			return nil, eventstore.ErrConcurrencyConflict.
				WithContext("aggregate_id", aggregateID.String()).
				WithContext("expected_version", *expectedVersion).
				WithContext("current_version", h.version)
		}

		committed, err := s.publishBatch(ctx, aggregateID, h, events)
		if err == nil {
			atomic.AddUint64(&s.appends, 1)
			s.opts.Recorder.IncAppend()
			s.cache.extend(aggregateID, committed)
			s.indexEvents(committed)
			return committed, nil
		}
		if !errors.Is(err, eventstore.ErrConcurrencyConflict) {
			return nil, err
		}

		// A foreign writer advanced the subject. The head is stale either
		// way; only unconditional appends that committed nothing retry.
		h.hydrated = false
		s.cache.drop(aggregateID)
		if expectedVersion != nil || len(committed) > 0 || attempt >= s.retryPolicy.MaxRetries {
			atomic.AddUint64(&s.conflicts, 1)
			s.opts.Recorder.IncAppendConflict()
			return nil, err
		}
		if err := s.retryPolicy.Wait(ctx, attempt+1); err != nil {
			return nil, err
		}
	}
}

// publishBatch publishes the proposed events; caller holds h.mu. Returns the
// committed prefix alongside any error.
func (s *Store) publishBatch(ctx context.Context, aggregateID uuid.UUID, h *head, events []eventstore.ProposedEvent) ([]eventstore.Event, error) {
	start := time.Now()
	committed := make([]eventstore.Event, 0, len(events))

	for _, proposed := range events {
		sequence := h.version + 1
		payloadCID, err := s.payloads.Put(ctx, proposed.Payload)
		if err != nil {
			return committed, err
		}
		parents := h.parents()
		eventCID := eventstore.ComputeEventCID(aggregateID, proposed.EventType, sequence, payloadCID, parents)

		var ident identity.MessageIdentity
		switch {
		case proposed.CausedBy != nil:
			ident = identity.EventFromCommand(eventCID, *proposed.CausedBy)
		case h.identity != nil:
			ident = identity.EventFromEvent(eventCID, *h.identity)
		default:
			ident = identity.RootEvent(eventCID)
		}

		ev := eventstore.Event{
			AggregateID: aggregateID,
			Sequence:    sequence,
			EventType:   proposed.EventType,
			EventCID:    eventCID,
			ParentCIDs:  parents,
			PayloadCID:  payloadCID,
			Identity:    ident,
			Timestamp:   time.Now().UTC(),
		}

		data, err := json.Marshal(envelope{Event: ev, Payload: proposed.Payload})
		if err != nil {
			return committed, eventstore.ErrEventAppendFailed.
				WithContext("aggregate_id", aggregateID.String()).
				WithContext("sequence", sequence)
		}

		msg := &nats.Msg{
			Subject: s.subject(aggregateID),
			Data:    data,
			Header:  nats.Header{},
		}
		ident.ToHeader(msg.Header)
		msg.Header.Set(jetstream.MsgIDHeader, eventCID.String())

		pubCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
		ack, err := s.js.PublishMsg(pubCtx, msg,
			jetstream.WithExpectLastSequencePerSubject(h.streamSeq))
		cancel()
		if err != nil {
			if isWrongLastSequence(err) {
				return committed, eventstore.ErrConcurrencyConflict.
					WithContext("aggregate_id", aggregateID.String()).
					WithContext("sequence", sequence)
			}
			return committed, ErrStoreUnavailable.
				WithContext("aggregate_id", aggregateID.String()).
				WithContext("sequence", sequence)
		}

		h.version = sequence
		h.lastCID = eventCID
		identCopy := ident
		h.identity = &identCopy
		h.streamSeq = ack.Sequence
		committed = append(committed, ev)
	}

	s.opts.Recorder.ObserveAppendDuration(time.Since(start))
	return committed, nil
}

func isWrongLastSequence(err error) bool {
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}

// Events returns the aggregate's full stream, from the cache when possible.
func (s *Store) Events(ctx context.Context, aggregateID uuid.UUID) ([]eventstore.Event, error) {
	if s.closed.Load() {
		return nil, eventstore.ErrStoreClosed
	}
	if cached, ok := s.cache.get(aggregateID); ok {
		return append([]eventstore.Event(nil), cached...), nil
	}

	ctx, span := observability.GetGlobalTracer().StartReplaySpan(ctx, aggregateID.String(), 0)
	defer span.End()

	events, err := s.replaySubject(ctx, s.subject(aggregateID))
	if err != nil {
		return nil, err
	}
	s.cache.set(aggregateID, events)
	s.opts.Recorder.AddEventsReplayed(len(events))
	return append([]eventstore.Event(nil), events...), nil
}

// EventsFrom returns the stream starting at the given sequence.
func (s *Store) EventsFrom(ctx context.Context, aggregateID uuid.UUID, position uint64) ([]eventstore.Event, error) {
	events, err := s.Events(ctx, aggregateID)
	if err != nil {
		return nil, err
	}
	for i, ev := range events {
		if ev.Sequence >= position {
			return events[i:], nil
		}
	}
	return []eventstore.Event{}, nil
}

// EventByCID looks up an event by content id, replaying the whole log once
// to build the index if needed.
func (s *Store) EventByCID(ctx context.Context, id cid.ContentID) (eventstore.Event, error) {
	if s.closed.Load() {
		return eventstore.Event{}, eventstore.ErrStoreClosed
	}
	s.indexMu.RLock()
	ev, ok := s.index[id]
	s.indexMu.RUnlock()
	if ok {
		return ev, nil
	}

	if _, err := s.replaySubject(ctx, s.opts.SubjectPrefix+".>"); err != nil {
		return eventstore.Event{}, err
	}

	s.indexMu.RLock()
	ev, ok = s.index[id]
	s.indexMu.RUnlock()
	if !ok {
		return eventstore.Event{}, eventstore.ErrEventNotFound.WithContext("event_cid", id.String())
	}
	return ev, nil
}

// TraverseFrom walks parent links backward from the given event.
func (s *Store) TraverseFrom(ctx context.Context, id cid.ContentID, limit int) ([]eventstore.Event, error) {
	var chain []eventstore.Event
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

// Payload returns payload bytes from the local payload store, which is
// materialized from envelopes during appends and replays.
func (s *Store) Payload(ctx context.Context, id cid.ContentID) ([]byte, error) {
	return s.payloads.Get(ctx, id)
}

// Subscribe delivers events committed after the call via an ordered
// push consumer.
func (s *Store) Subscribe(ctx context.Context, aggregateID *uuid.UUID) (*eventstore.Subscription, error) {
	if s.closed.Load() {
		return nil, eventstore.ErrStoreClosed
	}

	filter := s.opts.SubjectPrefix + ".>"
	if aggregateID != nil {
		filter = s.subject(*aggregateID)
	}
	ctx = observability.WithStream(ctx, s.opts.StreamName)
	ctx = observability.WithSubject(ctx, filter)
	observability.DebugContext(ctx, "starting live subscription")

	cons, err := s.js.OrderedConsumer(ctx, s.opts.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{filter},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, ErrStoreUnavailable.WithContext("filter", filter)
	}

	ch := make(chan eventstore.Event, 256)
	var mu sync.Mutex
	closed := false

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		ev, payload, decodeErr := s.decodeEnvelope(msg.Data())
		if decodeErr != nil {
			s.opts.Logger.Warn("skipping undecodable event", "subject", msg.Subject(), "error", decodeErr)
			return
		}
		if _, perr := s.payloads.Put(context.Background(), payload); perr != nil {
			s.opts.Logger.Warn("payload materialization failed", "event_cid", ev.EventCID.String(), "error", perr)
		}
		s.indexEvents([]eventstore.Event{ev})

		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- ev:
			s.opts.Recorder.IncLiveDelivery()
		default:
			s.opts.Logger.Warn("dropping event for slow subscriber",
				"aggregate_id", ev.AggregateID.String(),
				"sequence", ev.Sequence)
		}
	})
	if err != nil {
		return nil, ErrStoreUnavailable.WithContext("filter", filter)
	}

	cancel := func() {
		cc.Stop()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}
	sub := eventstore.NewSubscription(ch, cancel)

	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	return sub, nil
}

// Version returns the aggregate's current version from its head.
func (s *Store) Version(ctx context.Context, aggregateID uuid.UUID) (uint64, error) {
	if s.closed.Load() {
		return 0, eventstore.ErrStoreClosed
	}
	h := s.headFor(aggregateID)
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.hydrated {
		if err := s.hydrate(ctx, aggregateID, h); err != nil {
			return 0, err
		}
	}
	return h.version, nil
}

// Aggregates lists stream ids by asking the server for the per-subject
// message counts under the subject prefix.
func (s *Store) Aggregates(ctx context.Context) ([]uuid.UUID, error) {
	if s.closed.Load() {
		return nil, eventstore.ErrStoreClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	info, err := s.stream.Info(ctx, jetstream.WithSubjectFilter(s.opts.SubjectPrefix+".>"))
	if err != nil {
		return nil, ErrStoreUnavailable.WithContext("stream", s.opts.StreamName)
	}

	ids := make([]uuid.UUID, 0, len(info.State.Subjects))
	for subject := range info.State.Subjects {
		raw := strings.TrimPrefix(subject, s.opts.SubjectPrefix+".")
		id, err := uuid.Parse(raw)
		if err != nil {
			// Foreign subject under our prefix; not one of our streams.
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Stats reports log totals and local counters.
func (s *Store) Stats(ctx context.Context) (eventstore.Stats, error) {
	if s.closed.Load() {
		return eventstore.Stats{}, eventstore.ErrStoreClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	info, err := s.stream.Info(ctx)
	if err != nil {
		return eventstore.Stats{}, ErrStoreUnavailable.WithContext("stream", s.opts.StreamName)
	}
	hits, misses := s.cache.stats()
	return eventstore.Stats{
		TotalEvents: info.State.Msgs,
		Aggregates:  uint64(info.State.NumSubjects),
		Appends:     atomic.LoadUint64(&s.appends),
		Conflicts:   atomic.LoadUint64(&s.conflicts),
		CacheHits:   hits,
		CacheMisses: misses,
	}, nil
}

// Close drains the connection and releases the cache.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cache.close()
	s.conn.Close()
	return nil
}

// replaySubject reads every message matching the filter in stream order.
func (s *Store) replaySubject(ctx context.Context, filter string) ([]eventstore.Event, error) {
	infoCtx, cancelInfo := context.WithTimeout(ctx, s.opts.OpTimeout)
	info, err := s.stream.Info(infoCtx)
	cancelInfo()
	if err != nil {
		return nil, ErrStoreUnavailable.WithContext("stream", s.opts.StreamName)
	}
	lastSeq := info.State.LastSeq
	if info.State.Msgs == 0 {
		return []eventstore.Event{}, nil
	}

	cons, err := s.js.OrderedConsumer(ctx, s.opts.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{filter},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, ErrStoreUnavailable.WithContext("filter", filter)
	}

	var (
		replayMu  sync.Mutex
		events    = []eventstore.Event{}
		replayErr error
	)
	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		meta, metaErr := msg.Metadata()
		if metaErr != nil {
			return
		}
		ev, payload, decodeErr := s.decodeEnvelope(msg.Data())
		if decodeErr != nil {
			replayMu.Lock()
			replayErr = decodeErr
			replayMu.Unlock()
			finish()
			return
		}
		if _, perr := s.payloads.Put(context.Background(), payload); perr != nil {
			replayMu.Lock()
			replayErr = perr
			replayMu.Unlock()
			finish()
			return
		}
		replayMu.Lock()
		events = append(events, ev)
		replayMu.Unlock()
		if meta.Sequence.Stream >= lastSeq {
			finish()
		}
	})
	if err != nil {
		return nil, ErrStoreUnavailable.WithContext("filter", filter)
	}
	defer cc.Stop()

	// The consumer tells us when it has passed the stream's tail even if
	// no message matched the filter.
	pending := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ci, infoErr := cons.Info(ctx)
				if infoErr == nil && ci.NumPending == 0 {
					finish()
					return
				}
			case <-pending:
				return
			}
		}
	}()
	defer close(pending)

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ErrStoreUnavailable.WithContext("filter", filter).WithContext("reason", "context cancelled")
	}

	replayMu.Lock()
	defer replayMu.Unlock()
	if replayErr != nil {
		return nil, replayErr
	}
	s.indexEvents(events)
	return events, nil
}

func (s *Store) decodeEnvelope(data []byte) (eventstore.Event, []byte, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return eventstore.Event{}, nil, eventstore.ErrEventScanFailed.WithContext("reason", err.Error())
	}
	return env.Event, env.Payload, nil
}

func (s *Store) indexEvents(events []eventstore.Event) {
	if len(events) == 0 {
		return
	}
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	for _, ev := range events {
		s.index[ev.EventCID] = ev
	}
}
