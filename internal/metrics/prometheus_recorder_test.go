package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncAppend()
	pr.IncAppendConflict()
	pr.ObserveAppendDuration(15 * time.Millisecond)
	pr.AddEventsReplayed(42)
	pr.IncCacheHit()
	pr.IncCacheMiss()
	pr.IncLiveDelivery()
	// Basic scrape to ensure metrics encode without panic
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected metrics, got none")
	}
}

func TestNilPrometheusRecorderSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.IncAppend()
	pr.ObserveAppendDuration(time.Millisecond)
	pr.AddEventsReplayed(1)
}
