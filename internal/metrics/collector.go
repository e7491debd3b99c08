// Package metrics - collector.go owns the bucket store and its lifecycle.
//
// DESIGN: Record operations are non-blocking best-effort: any internal
// failure is logged and swallowed so metrics recording never fails or
// delays the request path. An unhealthy provider report triggers an
// out-of-band, fire-and-forget alert evaluation. The retention sweep is
// the only place buckets are removed.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voxlane/audio-gateway/internal/config"
)

// AlertEvaluator is the alert engine hook the collector pokes when it sees
// an unhealthy provider signal.
type AlertEvaluator interface {
	EvaluateMetrics(ctx context.Context, snapshot Snapshot) error
}

const evaluateTimeout = 30 * time.Second

// Collector aggregates per-operation outcomes into time-bucketed counters.
type Collector struct {
	cfg config.MetricsConfig

	mu      sync.RWMutex
	buckets map[int64]*Bucket

	providerHealth sync.Map // provider name -> bool

	evalMu    sync.RWMutex
	evaluator AlertEvaluator

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a collector and starts its retention sweep.
// Call Close to stop the sweep.
func NewCollector(cfg config.MetricsConfig) *Collector {
	if cfg.BucketInterval <= 0 {
		cfg.BucketInterval = time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = time.Hour
	}
	c := &Collector{
		cfg:      cfg,
		buckets:  make(map[int64]*Bucket),
		stopChan: make(chan struct{}),
	}
	go c.sweep()
	return c
}

// SetEvaluator wires the alert engine. Safe to call after construction;
// breaks the collector/engine construction cycle.
func (c *Collector) SetEvaluator(e AlertEvaluator) {
	c.evalMu.Lock()
	c.evaluator = e
	c.evalMu.Unlock()
}

// bucketFor resolves the bucket covering now, creating it lazily.
func (c *Collector) bucketFor(now time.Time) *Bucket {
	start := now.Truncate(c.cfg.BucketInterval)
	key := start.UnixNano()

	c.mu.RLock()
	b := c.buckets[key]
	c.mu.RUnlock()
	if b != nil {
		return b
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if b = c.buckets[key]; b == nil {
		b = newBucket(start)
		c.buckets[key] = b
	}
	return b
}

// recoverRecord swallows panics on the best-effort recording path.
func recoverRecord(kind string) {
	if r := recover(); r != nil {
		log.Error().Str("kind", kind).Interface("panic", r).Msg("metrics: record failed")
	}
}

// RecordTranscription records a speech-to-text call outcome.
func (c *Collector) RecordTranscription(m TranscriptionMetric) {
	defer recoverRecord("transcription")
	c.bucketFor(time.Now()).addTranscription(m)
	observeOutcome(OpTranscription, m.Provider, m.Duration.Seconds(), m.Success)
	if m.CacheHit {
		promCacheHits.Inc()
	}
	c.flagHighLatency(OpTranscription, m.Provider, m.Duration, c.cfg.HighLatency.Transcription)
}

// RecordSynthesis records a text-to-speech call outcome.
func (c *Collector) RecordSynthesis(m SynthesisMetric) {
	defer recoverRecord("synthesis")
	c.bucketFor(time.Now()).addSynthesis(m)
	observeOutcome(OpSynthesis, m.Provider, m.Duration.Seconds(), m.Success)
	if m.CacheHit {
		promCacheHits.Inc()
	}
	c.flagHighLatency(OpSynthesis, m.Provider, m.Duration, c.cfg.HighLatency.Synthesis)
}

// RecordRealtime records a realtime duplex session outcome.
func (c *Collector) RecordRealtime(m RealtimeMetric) {
	defer recoverRecord("realtime")
	c.bucketFor(time.Now()).addRealtime(m)
	observeOutcome(OpRealtime, m.Provider, m.Duration.Seconds(), m.Success)
	promRealtimeAudioSeconds.Add(m.SessionSeconds)
	c.flagHighLatency(OpRealtime, m.Provider, m.Duration, c.cfg.HighLatency.Realtime)
}

// RecordRouting records a provider-routing decision.
func (c *Collector) RecordRouting(m RoutingMetric) {
	defer recoverRecord("routing")
	c.bucketFor(time.Now()).addRouting(m)
}

// RecordProviderHealth records a health-check result. An unhealthy report
// triggers a fire-and-forget alert evaluation so operators hear about it
// without blocking the health-check caller.
func (c *Collector) RecordProviderHealth(m ProviderHealthMetric) {
	defer recoverRecord("provider_health")
	c.bucketFor(time.Now()).addHealth(m)
	c.providerHealth.Store(m.Provider, m.Healthy)

	if m.Healthy {
		promProviderHealthy.WithLabelValues(m.Provider).Set(1)
		return
	}
	promProviderHealthy.WithLabelValues(m.Provider).Set(0)
	log.Warn().
		Str("provider", m.Provider).
		Str("detail", m.Detail).
		Msg("provider_unhealthy")
	go c.evaluateNow()
}

func (c *Collector) evaluateNow() {
	defer recoverRecord("alert_evaluation")

	c.evalMu.RLock()
	e := c.evaluator
	c.evalMu.RUnlock()
	if e == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), evaluateTimeout)
	defer cancel()
	if err := e.EvaluateMetrics(ctx, c.Snapshot()); err != nil {
		log.Error().Err(err).Msg("metrics: reactive alert evaluation failed")
	}
}

// BeginOperation marks an operation in-flight.
func (c *Collector) BeginOperation(op Operation) {
	defer recoverRecord("begin_operation")
	c.bucketFor(time.Now()).incActive(op)
	promActiveOps.WithLabelValues(string(op)).Inc()
}

// EndOperation marks an operation finished.
func (c *Collector) EndOperation(op Operation) {
	defer recoverRecord("end_operation")
	c.bucketFor(time.Now()).decActive(op)
	promActiveOps.WithLabelValues(string(op)).Dec()
}

func (c *Collector) flagHighLatency(op Operation, provider string, latency, threshold time.Duration) {
	if threshold <= 0 || latency < threshold {
		return
	}
	log.Warn().
		Str("operation", string(op)).
		Str("provider", provider).
		Dur("latency", latency).
		Dur("threshold", threshold).
		Msg("high_latency")
}

// Snapshot returns a point-in-time read of the current bucket's aggregates.
func (c *Collector) Snapshot() Snapshot {
	now := time.Now()
	b := c.bucketFor(now)

	elapsed := now.Sub(b.Start).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}

	total := b.TotalRequests()
	failed := b.FailedRequests()

	snap := Snapshot{
		Timestamp:              now,
		ActiveTranscriptions:   b.activeCount(OpTranscription),
		ActiveSyntheses:        b.activeCount(OpSynthesis),
		ActiveRealtimeSessions: b.activeCount(OpRealtime),
		RequestsPerSecond:      float64(total) / elapsed,
		ProviderHealth:         make(map[string]bool),
		TotalRequests:          total,
		FailedRequests:         failed,
		RealtimeAudioSeconds:   b.RealtimeAudioSeconds(),
	}
	if total > 0 {
		snap.CurrentErrorRate = float64(failed) / float64(total)
	}
	snap.ActiveConnections = snap.ActiveTranscriptions + snap.ActiveSyntheses + snap.ActiveRealtimeSessions

	c.providerHealth.Range(func(k, v any) bool {
		snap.ProviderHealth[k.(string)] = v.(bool)
		return true
	})

	return snap
}

// sweep periodically flushes buckets older than the retention period.
func (c *Collector) sweep() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-c.cfg.Retention)
			c.mu.Lock()
			removed := 0
			for key, b := range c.buckets {
				if b.Start.Before(cutoff) {
					delete(c.buckets, key)
					removed++
				}
			}
			c.mu.Unlock()
			if removed > 0 {
				log.Debug().Int("buckets", removed).Msg("metrics: flushed expired buckets")
			}
		}
	}
}

// Close stops the retention sweep.
func (c *Collector) Close() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}
