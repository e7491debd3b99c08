package alerting_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlane/audio-gateway/internal/alerting"
	"github.com/voxlane/audio-gateway/internal/config"
	"github.com/voxlane/audio-gateway/internal/metrics"
)

func metricsTestConfig() config.MetricsConfig {
	return config.MetricsConfig{
		BucketInterval: time.Minute,
		Retention:      time.Hour,
		SweepInterval:  time.Minute,
	}
}

func testSnapshot() metrics.Snapshot {
	return metrics.Snapshot{
		Timestamp:              time.Now(),
		ActiveRealtimeSessions: 4,
		RequestsPerSecond:      10,
		CurrentErrorRate:       0.2,
		ProviderHealth:         map[string]bool{"alpha": true, "beta": false},
		ActiveConnections:      25,
		TotalRequests:          100,
		FailedRequests:         20,
	}
}

func errorRateRule(id string, threshold float64) alerting.Rule {
	return alerting.Rule{
		ID:        id,
		Name:      "High error rate",
		Metric:    alerting.MetricErrorRate,
		Condition: alerting.Condition{Operator: alerting.OpGreaterThan, Threshold: threshold},
		Severity:  alerting.SeverityCritical,
	}
}

// recordingNotifier captures every dispatched alert.
type recordingNotifier struct {
	mu    sync.Mutex
	sent  []alerting.Alert
	fail  bool
	chans []string
}

func (n *recordingNotifier) Send(_ context.Context, alert alerting.Alert, channel string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return fmt.Errorf("channel %s unavailable", channel)
	}
	n.sent = append(n.sent, alert)
	n.chans = append(n.chans, channel)
	return nil
}

func (n *recordingNotifier) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func TestEngine_TriggersAlertWithMessage(t *testing.T) {
	src := alerting.NewStaticRuleSource(errorRateRule("r1", 0.1))
	engine := alerting.NewEngine(src, nil, 10)
	defer engine.Close()

	err := engine.EvaluateMetrics(context.Background(), testSnapshot())
	require.NoError(t, err)

	history := engine.AlertHistory(time.Time{}, time.Now().Add(time.Minute), "")
	require.Len(t, history, 1)

	alert := history[0]
	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, "r1", alert.RuleID)
	assert.Equal(t, alerting.MetricErrorRate, alert.Metric)
	assert.Equal(t, 0.2, alert.Value)
	assert.Equal(t, alerting.StateActive, alert.State)
	assert.Equal(t, alerting.SeverityCritical, alert.Severity)
	assert.Equal(t, "High error rate: ErrorRate is 0.2 (threshold: GreaterThan 0.1)", alert.Message)
	assert.Equal(t, "GreaterThan", alert.Details["operator"])
	assert.Equal(t, "0.1", alert.Details["threshold"])
	assert.WithinDuration(t, time.Now(), alert.TriggeredAt, time.Minute)
}

func TestEngine_NoTriggerWhenConditionFalse(t *testing.T) {
	src := alerting.NewStaticRuleSource(errorRateRule("r1", 0.5))
	engine := alerting.NewEngine(src, nil, 10)
	defer engine.Close()

	require.NoError(t, engine.EvaluateMetrics(context.Background(), testSnapshot()))
	assert.Empty(t, engine.AlertHistory(time.Time{}, time.Now(), ""))
}

func TestEngine_CooldownSuppressesRepeatThenAllows(t *testing.T) {
	rule := errorRateRule("r1", 0.1)
	rule.Cooldown = 100 * time.Millisecond
	src := alerting.NewStaticRuleSource(rule)
	engine := alerting.NewEngine(src, nil, 10)
	defer engine.Close()

	ctx := context.Background()
	snap := testSnapshot()

	require.NoError(t, engine.EvaluateMetrics(ctx, snap))
	require.NoError(t, engine.EvaluateMetrics(ctx, snap))
	assert.Len(t, engine.AlertHistory(time.Time{}, time.Now(), ""), 1,
		"second evaluation inside the cooldown window must not trigger")

	time.Sleep(120 * time.Millisecond)
	require.NoError(t, engine.EvaluateMetrics(ctx, snap))
	assert.Len(t, engine.AlertHistory(time.Time{}, time.Now(), ""), 2,
		"evaluation after the cooldown window must trigger again")
}

func TestEngine_HistoryEvictsOldestFIFO(t *testing.T) {
	rules := make([]alerting.Rule, 0, 4)
	for i := 0; i < 4; i++ {
		r := errorRateRule(fmt.Sprintf("r%d", i), 0.1)
		r.Name = fmt.Sprintf("rule-%d", i)
		rules = append(rules, r)
	}
	engine := alerting.NewEngine(alerting.NewStaticRuleSource(rules...), nil, 3)
	defer engine.Close()

	require.NoError(t, engine.EvaluateMetrics(context.Background(), testSnapshot()))

	history := engine.AlertHistory(time.Time{}, time.Now(), "")
	require.Len(t, history, 3)
	for _, a := range history {
		assert.NotEqual(t, "r0", a.RuleID, "oldest alert must be evicted first")
	}
}

func TestEngine_HistoryFiltersBySeverity(t *testing.T) {
	critical := errorRateRule("r1", 0.1)
	warning := errorRateRule("r2", 0.1)
	warning.Severity = alerting.SeverityWarning
	engine := alerting.NewEngine(alerting.NewStaticRuleSource(critical, warning), nil, 10)
	defer engine.Close()

	require.NoError(t, engine.EvaluateMetrics(context.Background(), testSnapshot()))

	all := engine.AlertHistory(time.Time{}, time.Now(), "")
	require.Len(t, all, 2)

	warnings := engine.AlertHistory(time.Time{}, time.Now(), alerting.SeverityWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, "r2", warnings[0].RuleID)
}

func TestEngine_ProviderAvailabilityRatio(t *testing.T) {
	rule := alerting.Rule{
		ID:        "avail",
		Name:      "Provider availability",
		Metric:    alerting.MetricProviderAvailability,
		Condition: alerting.Condition{Operator: alerting.OpLessThan, Threshold: 0.75},
		Severity:  alerting.SeverityCritical,
	}
	engine := alerting.NewEngine(alerting.NewStaticRuleSource(rule), nil, 10)
	defer engine.Close()

	// One healthy of two providers: availability 0.5.
	require.NoError(t, engine.EvaluateMetrics(context.Background(), testSnapshot()))

	history := engine.AlertHistory(time.Time{}, time.Now(), "")
	require.Len(t, history, 1)
	assert.Equal(t, 0.5, history[0].Value)
	assert.Equal(t, "Provider availability: ProviderAvailability is 0.5 (threshold: LessThan 0.75)", history[0].Message)
}

func TestEngine_UnimplementedMetricsResolveToZero(t *testing.T) {
	for _, metric := range []alerting.MetricType{
		alerting.MetricLatency,
		alerting.MetricCacheHitRate,
		alerting.MetricCostRate,
		alerting.MetricQueueLength,
	} {
		t.Run(string(metric), func(t *testing.T) {
			rule := alerting.Rule{
				ID:        "z-" + string(metric),
				Name:      "zero",
				Metric:    metric,
				Condition: alerting.Condition{Operator: alerting.OpGreaterThan, Threshold: 0},
				Severity:  alerting.SeverityInfo,
			}
			engine := alerting.NewEngine(alerting.NewStaticRuleSource(rule), nil, 10)
			defer engine.Close()

			require.NoError(t, engine.EvaluateMetrics(context.Background(), testSnapshot()))
			assert.Empty(t, engine.AlertHistory(time.Time{}, time.Now(), ""),
				"a metric without a snapshot source must never fire a GreaterThan-zero rule")
		})
	}
}

func TestEngine_DispatchesToAllChannels(t *testing.T) {
	rule := errorRateRule("r1", 0.1)
	rule.Channels = []string{"ops-email", "ops-pager"}
	notifier := &recordingNotifier{}
	engine := alerting.NewEngine(alerting.NewStaticRuleSource(rule), notifier, 10)
	defer engine.Close()

	require.NoError(t, engine.EvaluateMetrics(context.Background(), testSnapshot()))
	assert.Equal(t, 2, notifier.sentCount())
	assert.ElementsMatch(t, []string{"ops-email", "ops-pager"}, notifier.chans)
}

func TestEngine_NotifierFailureDoesNotAbortEvaluation(t *testing.T) {
	r1 := errorRateRule("r1", 0.1)
	r1.Channels = []string{"broken"}
	r2 := errorRateRule("r2", 0.1)
	engine := alerting.NewEngine(alerting.NewStaticRuleSource(r1, r2), &recordingNotifier{fail: true}, 10)
	defer engine.Close()

	require.NoError(t, engine.EvaluateMetrics(context.Background(), testSnapshot()))
	assert.Len(t, engine.AlertHistory(time.Time{}, time.Now(), ""), 2,
		"notification failure must not prevent the alert or later rules")
}

func TestEngine_AcknowledgeAlert(t *testing.T) {
	engine := alerting.NewEngine(alerting.NewStaticRuleSource(errorRateRule("r1", 0.1)), nil, 10)
	defer engine.Close()

	require.NoError(t, engine.EvaluateMetrics(context.Background(), testSnapshot()))
	history := engine.AlertHistory(time.Time{}, time.Now(), "")
	require.Len(t, history, 1)
	id := history[0].ID

	assert.False(t, engine.AcknowledgeAlert("no-such-id", "op", ""))
	assert.True(t, engine.AcknowledgeAlert(id, "operator@voxlane", "known outage"))
	assert.False(t, engine.AcknowledgeAlert(id, "someone-else", ""), "second acknowledge must be a no-op")

	acked := engine.AlertHistory(time.Time{}, time.Now(), "")[0]
	assert.Equal(t, alerting.StateAcknowledged, acked.State)
	assert.Equal(t, "operator@voxlane", acked.AcknowledgedBy)
	assert.Equal(t, "known outage", acked.AckNote)
	require.NotNil(t, acked.AcknowledgedAt)
}

// blockingRuleSource blocks ActiveRules until released, holding the
// evaluation gate occupied.
type blockingRuleSource struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingRuleSource) ActiveRules(context.Context) ([]alerting.Rule, error) {
	close(s.entered)
	<-s.release
	return nil, nil
}

func TestEngine_CancelledContextUnwindsWithoutGate(t *testing.T) {
	src := &blockingRuleSource{entered: make(chan struct{}), release: make(chan struct{})}
	engine := alerting.NewEngine(src, nil, 10)
	defer engine.Close()

	done := make(chan struct{})
	go func() {
		_ = engine.EvaluateMetrics(context.Background(), testSnapshot())
		close(done)
	}()
	<-src.entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := engine.EvaluateMetrics(ctx, testSnapshot())
	assert.ErrorIs(t, err, context.Canceled)

	close(src.release)
	<-done
}

func TestEngine_ReactiveEvaluationThroughCollector(t *testing.T) {
	collector := metrics.NewCollector(metricsTestConfig())
	defer collector.Close()

	rule := alerting.Rule{
		ID:        "avail",
		Name:      "Provider down",
		Metric:    alerting.MetricProviderAvailability,
		Condition: alerting.Condition{Operator: alerting.OpLessThan, Threshold: 1},
		Severity:  alerting.SeverityCritical,
	}
	engine := alerting.NewEngine(alerting.NewStaticRuleSource(rule), nil, 10)
	defer engine.Close()
	collector.SetEvaluator(engine)

	collector.RecordProviderHealth(metrics.ProviderHealthMetric{
		Provider:  "alpha",
		Healthy:   false,
		CheckedAt: time.Now(),
		Detail:    "connect timeout",
	})

	require.Eventually(t, func() bool {
		return len(engine.AlertHistory(time.Time{}, time.Now(), "")) == 1
	}, 2*time.Second, 10*time.Millisecond, "unhealthy provider must trigger one reactive evaluation")

	alert := engine.AlertHistory(time.Time{}, time.Now(), "")[0]
	assert.Equal(t, float64(0), alert.Value)
	assert.Equal(t, "Provider down: ProviderAvailability is 0 (threshold: LessThan 1)", alert.Message)
}
