// Package alerting - testrule.go simulates a rule against synthetic metrics.
//
// DESIGN: TestRule never touches real history or cooldown state; it answers
// "would this rule fire, and do its channels work" with fixed-value metrics.
package alerting

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/voxlane/audio-gateway/internal/metrics"
)

// ChannelTestResult is the outcome of exercising one notification channel.
type ChannelTestResult struct {
	Channel string `json:"channel"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// TestResult is the outcome of simulating a rule.
type TestResult struct {
	RuleName     string              `json:"rule_name"`
	Metric       MetricType          `json:"metric"`
	Value        float64             `json:"value"`
	WouldTrigger bool                `json:"would_trigger"`
	Message      string              `json:"message,omitempty"`
	Channels     []ChannelTestResult `json:"channels,omitempty"`
}

// syntheticSnapshot returns fixed-value metrics for rule simulation.
func syntheticSnapshot() metrics.Snapshot {
	return metrics.Snapshot{
		Timestamp:              time.Now(),
		ActiveTranscriptions:   2,
		ActiveSyntheses:        1,
		ActiveRealtimeSessions: 3,
		RequestsPerSecond:      42,
		CurrentErrorRate:       0.15,
		ProviderHealth:         map[string]bool{"primary": true, "secondary": false},
		ActiveConnections:      25,
		TotalRequests:          2520,
		FailedRequests:         378,
	}
}

// TestRule simulates the rule against synthetic metrics and exercises its
// notification channels with a test alert.
func (e *Engine) TestRule(ctx context.Context, rule Rule) TestResult {
	snapshot := syntheticSnapshot()
	value := metricValue(rule.Metric, snapshot)

	result := TestResult{
		RuleName:     rule.Name,
		Metric:       rule.Metric,
		Value:        value,
		WouldTrigger: rule.Condition.Evaluate(value),
	}
	if result.WouldTrigger {
		result.Message = rule.message(value)
	}

	if e.notifier == nil {
		return result
	}

	testAlert := Alert{
		ID:          uuid.NewString(),
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Metric:      rule.Metric,
		Value:       value,
		Message:     rule.message(value),
		Details:     map[string]string{"test": "true"},
		Severity:    rule.Severity,
		State:       StateActive,
		TriggeredAt: time.Now(),
	}
	for _, channel := range rule.Channels {
		r := ChannelTestResult{Channel: channel, OK: true}
		if err := e.notifier.Send(ctx, testAlert, channel); err != nil {
			r.OK = false
			r.Error = err.Error()
		}
		result.Channels = append(result.Channels, r)
	}
	return result
}
