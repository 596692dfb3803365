package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once           sync.Once
	appends        prom.Counter
	conflicts      prom.Counter
	appendDuration prom.Histogram
	replayed       prom.Counter
	cacheLookups   *prom.CounterVec
	liveDeliveries prom.Counter
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.appends = prom.NewCounter(prom.CounterOpts{
			Namespace: "chronicle",
			Name:      "appends_total",
			Help:      "Successful event append operations",
		})
		pr.conflicts = prom.NewCounter(prom.CounterOpts{
			Namespace: "chronicle",
			Name:      "append_conflicts_total",
			Help:      "Appends rejected on expected-version mismatch",
		})
		pr.appendDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "chronicle",
			Name:      "append_duration_seconds",
			Help:      "End-to-end append latency",
			Buckets:   prom.DefBuckets,
		})
		pr.replayed = prom.NewCounter(prom.CounterOpts{
			Namespace: "chronicle",
			Name:      "events_replayed_total",
			Help:      "Events served by replay reads",
		})
		pr.cacheLookups = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "chronicle",
			Name:      "cache_lookups_total",
			Help:      "Read cache lookups by result",
		}, []string{"result"})
		pr.liveDeliveries = prom.NewCounter(prom.CounterOpts{
			Namespace: "chronicle",
			Name:      "live_deliveries_total",
			Help:      "Events delivered to live subscribers",
		})
		reg.MustRegister(pr.appends, pr.conflicts, pr.appendDuration, pr.replayed, pr.cacheLookups, pr.liveDeliveries)
	})
	return pr
}

func (p *PrometheusRecorder) IncAppend() {
	if p == nil || p.appends == nil {
		return
	}
	p.appends.Inc()
}

func (p *PrometheusRecorder) IncAppendConflict() {
	if p == nil || p.conflicts == nil {
		return
	}
	p.conflicts.Inc()
}

func (p *PrometheusRecorder) ObserveAppendDuration(d time.Duration) {
	if p == nil || p.appendDuration == nil {
		return
	}
	p.appendDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddEventsReplayed(n int) {
	if p == nil || p.replayed == nil || n <= 0 {
		return
	}
	p.replayed.Add(float64(n))
}

func (p *PrometheusRecorder) IncCacheHit() {
	if p == nil || p.cacheLookups == nil {
		return
	}
	p.cacheLookups.WithLabelValues("hit").Inc()
}

func (p *PrometheusRecorder) IncCacheMiss() {
	if p == nil || p.cacheLookups == nil {
		return
	}
	p.cacheLookups.WithLabelValues("miss").Inc()
}

func (p *PrometheusRecorder) IncLiveDelivery() {
	if p == nil || p.liveDeliveries == nil {
		return
	}
	p.liveDeliveries.Inc()
}
