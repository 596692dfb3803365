package projection

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/chronicle/internal/eventstore"
	"git.home.luguber.info/inful/chronicle/internal/routing"
)

// RebuildReport summarizes one rebuild run.
type RebuildReport struct {
	// Aggregates is the number of streams replayed.
	Aggregates int `json:"aggregates"`
	// Events is the number of events applied.
	Events int `json:"events"`
	// Failed lists aggregates whose replay or apply failed. A failure in
	// one aggregate does not stop the others.
	Failed []uuid.UUID `json:"failed,omitempty"`
}

// Rebuilder replays streams from a store into a projection. Aggregates are
// routed onto worker lanes; events within one aggregate always stay on one
// lane so per-stream order is preserved.
type Rebuilder struct {
	store    eventstore.Store
	assigner *routing.Assigner
	lanes    int
	logger   *slog.Logger
}

// RebuilderOptions configures a Rebuilder.
type RebuilderOptions struct {
	// Lanes is the number of parallel worker lanes, default 4.
	Lanes int
	// Strategy selects how aggregates map onto lanes, default RoundRobin.
	Strategy routing.Strategy
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// NewRebuilder creates a Rebuilder over the given store.
func NewRebuilder(store eventstore.Store, opts RebuilderOptions) *Rebuilder {
	lanes := opts.Lanes
	if lanes <= 0 {
		lanes = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Rebuilder{
		store:    store,
		assigner: routing.NewAssigner(opts.Strategy),
		lanes:    lanes,
		logger:   logger,
	}
}

// Rebuild resets the projection and replays the given aggregates from the
// beginning.
func (r *Rebuilder) Rebuild(ctx context.Context, projection Projection, aggregateIDs []uuid.UUID) (RebuildReport, error) {
	projection.Reset()
	return r.RebuildFrom(ctx, projection, aggregateIDs, 0)
}

// RebuildFrom replays the given aggregates starting at position (inclusive)
// without resetting the projection. Position 0 replays everything.
func (r *Rebuilder) RebuildFrom(ctx context.Context, projection Projection, aggregateIDs []uuid.UUID, position uint64) (RebuildReport, error) {
	workers := make([]*routing.Worker, r.lanes)
	buckets := make([][]uuid.UUID, r.lanes)
	laneIndex := make(map[string]int, r.lanes)
	for i := range workers {
		workers[i] = &routing.Worker{ID: laneName(i)}
		laneIndex[workers[i].ID] = i
	}
	for _, aggregateID := range aggregateIDs {
		worker := r.assigner.Pick(workers, aggregateID.String())
		worker.Acquire()
		idx := laneIndex[worker.ID]
		buckets[idx] = append(buckets[idx], aggregateID)
	}

	var (
		mu     sync.Mutex
		report RebuildReport
		wg     sync.WaitGroup
	)
	for lane, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		wg.Add(1)
		go func(lane int, bucket []uuid.UUID) {
			defer wg.Done()
			for _, aggregateID := range bucket {
				applied, err := r.replayAggregate(ctx, projection, aggregateID, position)
				mu.Lock()
				report.Aggregates++
				report.Events += applied
				if err != nil {
					report.Failed = append(report.Failed, aggregateID)
				}
				mu.Unlock()
				if err != nil {
					r.logger.Error("aggregate replay failed",
						"projection", projection.Name(),
						"aggregate_id", aggregateID.String(),
						"error", err)
				}
				workers[lane].Release()
			}
		}(lane, bucket)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return report, ErrRebuildFailed.WithContext("reason", err.Error())
	}
	return report, nil
}

func (r *Rebuilder) replayAggregate(ctx context.Context, projection Projection, aggregateID uuid.UUID, position uint64) (int, error) {
	events, err := r.store.EventsFrom(ctx, aggregateID, position)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, ev := range events {
		payload, err := r.store.Payload(ctx, ev.PayloadCID)
		if err != nil {
			return applied, err
		}
		if err := projection.Apply(ev, payload); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func laneName(i int) string {
	return "lane-" + strconv.Itoa(i)
}
