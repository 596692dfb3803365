// Package routing assigns aggregate streams to rebuild workers. The
// strategy set is closed: adding a strategy means adding a constant and a
// switch arm, which keeps dispatch visible and exhaustively checkable.
package routing

import (
	"hash/fnv"
	"sync/atomic"

	"git.home.luguber.info/inful/chronicle/internal/foundation/errors"
)

// Strategy selects how work keys map onto workers.
type Strategy uint8

const (
	// RoundRobin cycles through workers in order.
	RoundRobin Strategy = iota
	// LoadBased picks the worker with the fewest pending assignments.
	LoadBased
	// CapabilityScore picks the worker with the highest score for the key,
	// using rendezvous hashing so a key sticks to the same worker while
	// the worker set is stable.
	CapabilityScore
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case RoundRobin:
		return "round_robin"
	case LoadBased:
		return "load_based"
	case CapabilityScore:
		return "capability_score"
	default:
		return "unknown"
	}
}

// ParseStrategy maps a config string onto a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "round_robin", "":
		return RoundRobin, nil
	case "load_based":
		return LoadBased, nil
	case "capability_score":
		return CapabilityScore, nil
	default:
		return RoundRobin, errors.ConfigError("unknown routing strategy").
			WithContext("strategy", name).
			Build()
	}
}

// Worker is one assignment target.
type Worker struct {
	// ID names the worker.
	ID string
	// Capacity weights CapabilityScore assignment; zero means 1.
	Capacity int

	pending atomic.Int64
}

// Pending returns the worker's current pending assignment count.
func (w *Worker) Pending() int64 { return w.pending.Load() }

// Acquire records an assignment; Release retires it.
func (w *Worker) Acquire() { w.pending.Add(1) }
func (w *Worker) Release() { w.pending.Add(-1) }

// Assigner maps keys onto workers according to a fixed strategy.
type Assigner struct {
	strategy Strategy
	next     atomic.Uint64
}

// NewAssigner creates an Assigner for the given strategy.
func NewAssigner(strategy Strategy) *Assigner {
	return &Assigner{strategy: strategy}
}

// Strategy returns the configured strategy.
func (a *Assigner) Strategy() Strategy { return a.strategy }

// Pick selects a worker for the key. It returns nil when workers is empty.
func (a *Assigner) Pick(workers []*Worker, key string) *Worker {
	if len(workers) == 0 {
		return nil
	}
	switch a.strategy {
	case LoadBased:
		best := workers[0]
		for _, w := range workers[1:] {
			if w.Pending() < best.Pending() {
				best = w
			}
		}
		return best
	case CapabilityScore:
		best := workers[0]
		bestScore := score(workers[0], key)
		for _, w := range workers[1:] {
			if s := score(w, key); s > bestScore {
				best, bestScore = w, s
			}
		}
		return best
	default: // RoundRobin
		n := a.next.Add(1) - 1
		return workers[n%uint64(len(workers))]
	}
}

// score is a rendezvous hash; capacity grants a worker extra lottery
// tickets, the best of which counts.
func score(w *Worker, key string) uint64 {
	capacity := w.Capacity
	if capacity < 1 {
		capacity = 1
	}
	var best uint64
	for i := 0; i < capacity; i++ {
		h := fnv.New64a()
		h.Write([]byte(w.ID))
		h.Write([]byte{byte(i), 0})
		h.Write([]byte(key))
		if s := h.Sum64(); s > best {
			best = s
		}
	}
	return best
}
