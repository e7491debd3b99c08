package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlane/audio-gateway/internal/config"
)

func testConfig() config.MetricsConfig {
	return config.MetricsConfig{
		BucketInterval: time.Minute,
		Retention:      time.Hour,
		SweepInterval:  time.Minute,
		HighLatency: config.LatencyThresholds{
			Transcription: 10 * time.Second,
			Synthesis:     5 * time.Second,
			Realtime:      2 * time.Second,
		},
	}
}

// totalAcrossBuckets sums totals over every live bucket, so the assertion
// holds even when the test run straddles a bucket boundary.
func totalAcrossBuckets(c *Collector) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total int64
	for _, b := range c.buckets {
		total += b.TotalRequests()
	}
	return total
}

func TestCollector_ConcurrentRecordingLosesNothing(t *testing.T) {
	const (
		goroutines = 12
		perWorker  = 200
	)
	c := NewCollector(testConfig())
	defer c.Close()

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				c.RecordSynthesis(SynthesisMetric{
					Provider:   "polly",
					Duration:   15 * time.Millisecond,
					Success:    true,
					Characters: 120,
				})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(goroutines*perWorker), totalAcrossBuckets(c))
}

func TestCollector_SnapshotAggregates(t *testing.T) {
	c := NewCollector(testConfig())
	defer c.Close()

	c.BeginOperation(OpTranscription)
	c.BeginOperation(OpRealtime)

	for i := 0; i < 8; i++ {
		c.RecordTranscription(TranscriptionMetric{Provider: "whisper", Duration: 10 * time.Millisecond, Success: true})
	}
	c.RecordTranscription(TranscriptionMetric{Provider: "whisper", Duration: 10 * time.Millisecond, Success: false, ErrorCode: "timeout"})
	c.RecordTranscription(TranscriptionMetric{Provider: "whisper", Duration: 10 * time.Millisecond, Success: false, ErrorCode: "timeout"})
	c.RecordRealtime(RealtimeMetric{Provider: "live", Duration: time.Second, Success: true, SessionSeconds: 30, Turns: 5})

	c.RecordProviderHealth(ProviderHealthMetric{Provider: "whisper", Healthy: true, CheckedAt: time.Now()})

	snap := c.Snapshot()
	assert.Equal(t, int64(1), snap.ActiveTranscriptions)
	assert.Equal(t, int64(0), snap.ActiveSyntheses)
	assert.Equal(t, int64(1), snap.ActiveRealtimeSessions)
	assert.Equal(t, int64(2), snap.ActiveConnections)
	assert.Equal(t, int64(11), snap.TotalRequests)
	assert.Equal(t, int64(2), snap.FailedRequests)
	assert.InDelta(t, 2.0/11.0, snap.CurrentErrorRate, 0.0001)
	assert.Greater(t, snap.RequestsPerSecond, 0.0)
	assert.InDelta(t, 30.0, snap.RealtimeAudioSeconds, 0.001)
	assert.Equal(t, map[string]bool{"whisper": true}, snap.ProviderHealth)

	c.EndOperation(OpTranscription)
	assert.Equal(t, int64(0), c.Snapshot().ActiveTranscriptions)
}

func TestCollector_SnapshotZeroErrorRateWithoutTraffic(t *testing.T) {
	c := NewCollector(testConfig())
	defer c.Close()

	snap := c.Snapshot()
	assert.Zero(t, snap.CurrentErrorRate)
	assert.Zero(t, snap.TotalRequests)
	assert.NotNil(t, snap.ProviderHealth)
}

// countingEvaluator counts evaluation passes.
type countingEvaluator struct {
	calls atomic.Int64
}

func (e *countingEvaluator) EvaluateMetrics(context.Context, Snapshot) error {
	e.calls.Add(1)
	return nil
}

func TestCollector_UnhealthyProviderTriggersOneEvaluation(t *testing.T) {
	c := NewCollector(testConfig())
	defer c.Close()

	eval := &countingEvaluator{}
	c.SetEvaluator(eval)

	c.RecordProviderHealth(ProviderHealthMetric{Provider: "whisper", Healthy: false, CheckedAt: time.Now(), Detail: "502"})

	require.Eventually(t, func() bool {
		return eval.calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), eval.calls.Load(), "one unhealthy report must trigger exactly one evaluation")

	snap := c.Snapshot()
	assert.Equal(t, map[string]bool{"whisper": false}, snap.ProviderHealth)
}

func TestCollector_HealthyProviderDoesNotTriggerEvaluation(t *testing.T) {
	c := NewCollector(testConfig())
	defer c.Close()

	eval := &countingEvaluator{}
	c.SetEvaluator(eval)

	c.RecordProviderHealth(ProviderHealthMetric{Provider: "whisper", Healthy: true, CheckedAt: time.Now()})

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, eval.calls.Load())
}

func TestCollector_RecordingWithoutEvaluatorIsSafe(t *testing.T) {
	c := NewCollector(testConfig())
	defer c.Close()

	c.RecordProviderHealth(ProviderHealthMetric{Provider: "whisper", Healthy: false, CheckedAt: time.Now()})
	time.Sleep(20 * time.Millisecond)
}

func TestCollector_SweepFlushesExpiredBuckets(t *testing.T) {
	cfg := testConfig()
	cfg.SweepInterval = 10 * time.Millisecond
	cfg.Retention = 20 * time.Millisecond
	c := NewCollector(cfg)
	defer c.Close()

	stale := newBucket(time.Now().Add(-time.Hour))
	c.mu.Lock()
	c.buckets[stale.Start.UnixNano()] = stale
	c.mu.Unlock()

	require.Eventually(t, func() bool {
		c.mu.RLock()
		defer c.mu.RUnlock()
		_, ok := c.buckets[stale.Start.UnixNano()]
		return !ok
	}, 2*time.Second, 5*time.Millisecond, "expired bucket must be flushed by the sweep")
}

func TestCollector_BucketForReusesWindow(t *testing.T) {
	c := NewCollector(testConfig())
	defer c.Close()

	// Mid-window base so the two reads always land in the same bucket.
	base := time.Now().Truncate(time.Minute).Add(10 * time.Second)
	b1 := c.bucketFor(base)
	b2 := c.bucketFor(base.Add(time.Second))
	assert.Same(t, b1, b2)

	b3 := c.bucketFor(base.Add(2 * time.Minute))
	assert.NotSame(t, b1, b3)
}

func TestCollector_CloseIsIdempotent(t *testing.T) {
	c := NewCollector(testConfig())
	c.Close()
	c.Close()
}
