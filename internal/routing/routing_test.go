package routing

import (
	"testing"
)

func makeWorkers(ids ...string) []*Worker {
	workers := make([]*Worker, len(ids))
	for i, id := range ids {
		workers[i] = &Worker{ID: id}
	}
	return workers
}

func TestRoundRobinCycles(t *testing.T) {
	a := NewAssigner(RoundRobin)
	workers := makeWorkers("w1", "w2", "w3")

	var order []string
	for i := 0; i < 6; i++ {
		order = append(order, a.Pick(workers, "any").ID)
	}
	want := []string{"w1", "w2", "w3", "w1", "w2", "w3"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("pick %d: expected %s, got %s", i, want[i], order[i])
		}
	}
}

func TestLoadBasedPrefersIdleWorker(t *testing.T) {
	a := NewAssigner(LoadBased)
	workers := makeWorkers("w1", "w2", "w3")
	workers[0].Acquire()
	workers[0].Acquire()
	workers[1].Acquire()

	if got := a.Pick(workers, "any"); got.ID != "w3" {
		t.Fatalf("expected w3, got %s", got.ID)
	}

	workers[0].Release()
	workers[0].Release()
	if got := a.Pick(workers, "any"); got.ID != "w1" && got.ID != "w3" {
		t.Fatalf("expected an idle worker, got %s", got.ID)
	}
}

func TestCapabilityScoreIsSticky(t *testing.T) {
	a := NewAssigner(CapabilityScore)
	workers := makeWorkers("w1", "w2", "w3")

	first := a.Pick(workers, "aggregate-42")
	for i := 0; i < 10; i++ {
		if got := a.Pick(workers, "aggregate-42"); got.ID != first.ID {
			t.Fatalf("key moved from %s to %s", first.ID, got.ID)
		}
	}

	// Different keys should not all land on one worker.
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		seen[a.Pick(workers, string(rune('a'+i))).ID] = true
	}
	if len(seen) < 2 {
		t.Fatal("capability scoring sent every key to one worker")
	}
}

func TestPickEmptyWorkers(t *testing.T) {
	if got := NewAssigner(RoundRobin).Pick(nil, "key"); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestParseStrategy(t *testing.T) {
	cases := map[string]Strategy{
		"":                 RoundRobin,
		"round_robin":      RoundRobin,
		"load_based":       LoadBased,
		"capability_score": CapabilityScore,
	}
	for name, want := range cases {
		got, err := ParseStrategy(name)
		if err != nil || got != want {
			t.Fatalf("ParseStrategy(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := ParseStrategy("random"); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}
