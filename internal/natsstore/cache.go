package natsstore

import (
	"sync/atomic"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"

	"git.home.luguber.info/inful/chronicle/internal/eventstore"
	"git.home.luguber.info/inful/chronicle/internal/metrics"
)

// streamCache is a bounded read-through cache of replayed streams, keyed by
// aggregate id. It is extended on the caller's own appends and dropped on
// any concurrency conflict, which keeps reads-after-writes consistent
// without trusting the cache across writers.
type streamCache struct {
	cache    *ristretto.Cache
	recorder metrics.Recorder
	hits     atomic.Uint64
	misses   atomic.Uint64
}

// eventCost approximates the in-memory footprint of one cached event.
const eventCost = 512

func newStreamCache(maxBytes int64, recorder metrics.Recorder) (*streamCache, error) {
	if maxBytes < 0 {
		return &streamCache{recorder: recorder}, nil
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxBytes / eventCost * 10,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &streamCache{cache: cache, recorder: recorder}, nil
}

func (c *streamCache) get(aggregateID uuid.UUID) ([]eventstore.Event, bool) {
	if c.cache == nil {
		return nil, false
	}
	value, ok := c.cache.Get(aggregateID.String())
	if !ok {
		c.misses.Add(1)
		c.recorder.IncCacheMiss()
		return nil, false
	}
	events, ok := value.([]eventstore.Event)
	if !ok {
		c.misses.Add(1)
		c.recorder.IncCacheMiss()
		return nil, false
	}
	c.hits.Add(1)
	c.recorder.IncCacheHit()
	return events, true
}

func (c *streamCache) stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *streamCache) set(aggregateID uuid.UUID, events []eventstore.Event) {
	if c.cache == nil {
		return
	}
	cost := int64(len(events)+1) * eventCost
	c.cache.Set(aggregateID.String(), events, cost)
}

// extend appends freshly committed events to a cached stream if the cache
// still holds the immediate predecessor; otherwise the entry is dropped.
func (c *streamCache) extend(aggregateID uuid.UUID, committed []eventstore.Event) {
	if c.cache == nil || len(committed) == 0 {
		return
	}
	cached, ok := c.get(aggregateID)
	if !ok {
		return
	}
	if len(cached) == 0 || cached[len(cached)-1].Sequence+1 != committed[0].Sequence {
		c.drop(aggregateID)
		return
	}
	extended := make([]eventstore.Event, 0, len(cached)+len(committed))
	extended = append(extended, cached...)
	extended = append(extended, committed...)
	c.set(aggregateID, extended)
}

func (c *streamCache) drop(aggregateID uuid.UUID) {
	if c.cache == nil {
		return
	}
	c.cache.Del(aggregateID.String())
}

func (c *streamCache) close() {
	if c.cache != nil {
		c.cache.Close()
	}
}
