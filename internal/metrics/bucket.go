// Package metrics - bucket.go holds one aggregation interval's data.
//
// DESIGN: Scalar counters use atomic increments so many in-flight requests
// never serialize behind a lock; event lists and keyed count maps take the
// bucket mutex only for the append/lookup itself. Buckets are created
// lazily and removed only by the collector's retention sweep.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Bucket aggregates all metrics for one fixed-width time window.
type Bucket struct {
	Start time.Time

	total      atomic.Int64
	success    atomic.Int64
	failed     atomic.Int64
	cacheHits  atomic.Int64
	cdnUploads atomic.Int64

	realtimeTurns  atomic.Int64
	realtimeMillis atomic.Int64 // cumulative realtime audio, milliseconds

	mu             sync.Mutex
	transcriptions []TranscriptionMetric
	syntheses      []SynthesisMetric
	realtime       []RealtimeMetric
	routing        []RoutingMetric
	health         []ProviderHealthMetric

	countsMu   sync.Mutex
	active     map[Operation]*atomic.Int64
	byProvider map[string]*atomic.Int64
	byStrategy map[string]*atomic.Int64
}

func newBucket(start time.Time) *Bucket {
	return &Bucket{
		Start:      start,
		active:     make(map[Operation]*atomic.Int64),
		byProvider: make(map[string]*atomic.Int64),
		byStrategy: make(map[string]*atomic.Int64),
	}
}

// counter returns the per-key counter, creating it under countsMu on first
// use. The returned *atomic.Int64 is safe to bump without the lock.
func counter[K comparable](b *Bucket, m map[K]*atomic.Int64, key K) *atomic.Int64 {
	b.countsMu.Lock()
	defer b.countsMu.Unlock()
	c, ok := m[key]
	if !ok {
		c = &atomic.Int64{}
		m[key] = c
	}
	return c
}

func (b *Bucket) recordOutcome(provider string, success, cacheHit bool) {
	b.total.Add(1)
	if success {
		b.success.Add(1)
	} else {
		b.failed.Add(1)
	}
	if cacheHit {
		b.cacheHits.Add(1)
	}
	counter(b, b.byProvider, provider).Add(1)
}

func (b *Bucket) addTranscription(m TranscriptionMetric) {
	b.recordOutcome(m.Provider, m.Success, m.CacheHit)
	b.mu.Lock()
	b.transcriptions = append(b.transcriptions, m)
	b.mu.Unlock()
}

func (b *Bucket) addSynthesis(m SynthesisMetric) {
	b.recordOutcome(m.Provider, m.Success, m.CacheHit)
	if m.CdnUpload {
		b.cdnUploads.Add(1)
	}
	b.mu.Lock()
	b.syntheses = append(b.syntheses, m)
	b.mu.Unlock()
}

func (b *Bucket) addRealtime(m RealtimeMetric) {
	b.recordOutcome(m.Provider, m.Success, false)
	b.realtimeTurns.Add(int64(m.Turns))
	b.realtimeMillis.Add(int64(m.SessionSeconds * 1000))
	b.mu.Lock()
	b.realtime = append(b.realtime, m)
	b.mu.Unlock()
}

func (b *Bucket) addRouting(m RoutingMetric) {
	if m.Strategy != "" {
		counter(b, b.byStrategy, m.Strategy).Add(1)
	}
	b.mu.Lock()
	b.routing = append(b.routing, m)
	b.mu.Unlock()
}

func (b *Bucket) addHealth(m ProviderHealthMetric) {
	b.mu.Lock()
	b.health = append(b.health, m)
	b.mu.Unlock()
}

func (b *Bucket) incActive(op Operation) { counter(b, b.active, op).Add(1) }
func (b *Bucket) decActive(op Operation) { counter(b, b.active, op).Add(-1) }

func (b *Bucket) activeCount(op Operation) int64 {
	b.countsMu.Lock()
	defer b.countsMu.Unlock()
	if c, ok := b.active[op]; ok {
		return c.Load()
	}
	return 0
}

// TotalRequests returns the bucket's total request count.
func (b *Bucket) TotalRequests() int64 { return b.total.Load() }

// SuccessfulRequests returns the bucket's successful request count.
func (b *Bucket) SuccessfulRequests() int64 { return b.success.Load() }

// FailedRequests returns the bucket's failed request count.
func (b *Bucket) FailedRequests() int64 { return b.failed.Load() }

// CacheHits returns the bucket's cache hit count.
func (b *Bucket) CacheHits() int64 { return b.cacheHits.Load() }

// RealtimeAudioSeconds returns cumulative realtime audio seconds.
func (b *Bucket) RealtimeAudioSeconds() float64 {
	return float64(b.realtimeMillis.Load()) / 1000
}

// ProviderRequests returns the request count recorded for a provider.
func (b *Bucket) ProviderRequests(provider string) int64 {
	b.countsMu.Lock()
	defer b.countsMu.Unlock()
	if c, ok := b.byProvider[provider]; ok {
		return c.Load()
	}
	return 0
}

// Events returns copies of the bucket's event lists.
func (b *Bucket) Events() (transcriptions []TranscriptionMetric, syntheses []SynthesisMetric, realtime []RealtimeMetric, routing []RoutingMetric, health []ProviderHealthMetric) {
	b.mu.Lock()
	defer b.mu.Unlock()
	transcriptions = append(transcriptions, b.transcriptions...)
	syntheses = append(syntheses, b.syntheses...)
	realtime = append(realtime, b.realtime...)
	routing = append(routing, b.routing...)
	health = append(health, b.health...)
	return
}
