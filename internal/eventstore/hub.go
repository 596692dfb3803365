package eventstore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const subscriptionBuffer = 256

// Subscription is a live feed of committed events.
type Subscription struct {
	ch     chan Event
	cancel func()
	once   sync.Once
}

// NewSubscription wraps a delivery channel and a cancel function. Used by
// store backends; callers receive subscriptions from Store.Subscribe.
func NewSubscription(ch chan Event, cancel func()) *Subscription {
	return &Subscription{ch: ch, cancel: cancel}
}

// EventsChan returns the delivery channel. It is closed when the
// subscription ends.
func (s *Subscription) EventsChan() <-chan Event { return s.ch }

// Close ends the subscription. Safe to call more than once.
func (s *Subscription) Close() { s.once.Do(s.cancel) }

type subscriber struct {
	id        uint64
	aggregate *uuid.UUID // nil means all streams
	ch        chan Event
}

// hub fans committed events out to subscribers. Delivery is best effort:
// a subscriber whose buffer is full misses the event and a warning is
// logged; it can recover by replaying from its last seen sequence.
type hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber
	logger *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &hub{subs: make(map[uint64]*subscriber), logger: logger}
}

func (h *hub) subscribe(ctx context.Context, aggregateID *uuid.UUID) *Subscription {
	h.mu.Lock()
	h.nextID++
	sub := &subscriber{
		id:        h.nextID,
		aggregate: aggregateID,
		ch:        make(chan Event, subscriptionBuffer),
	}
	h.subs[sub.id] = sub
	h.mu.Unlock()

	remove := func() {
		h.mu.Lock()
		if _, ok := h.subs[sub.id]; ok {
			delete(h.subs, sub.id)
			close(sub.ch)
		}
		h.mu.Unlock()
	}

	ctx, cancelCtx := context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		remove()
	}()

	return &Subscription{ch: sub.ch, cancel: cancelCtx}
}

func (h *hub) publish(events []Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		for _, ev := range events {
			if sub.aggregate != nil && *sub.aggregate != ev.AggregateID {
				continue
			}
			select {
			case sub.ch <- ev:
			default:
				h.logger.Warn("dropping event for slow subscriber",
					"aggregate_id", ev.AggregateID.String(),
					"sequence", ev.Sequence)
			}
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}
