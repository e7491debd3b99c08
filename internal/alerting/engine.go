// Package alerting - engine.go runs evaluation passes.
//
// DESIGN: All evaluation passes are serialized behind a single-slot gate so
// periodic and reactive triggers cannot storm duplicate alerts. The history
// lock is never held across notification dispatch; dispatch happens after
// the history mutation is committed.
package alerting

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/voxlane/audio-gateway/internal/metrics"
)

// RuleSource supplies the active rule set for one evaluation pass.
type RuleSource interface {
	ActiveRules(ctx context.Context) ([]Rule, error)
}

// SnapshotSource supplies metric snapshots for periodic evaluation.
type SnapshotSource interface {
	Snapshot() metrics.Snapshot
}

// Engine evaluates snapshots against active rules.
type Engine struct {
	rules        RuleSource
	notifier     Notifier
	historyLimit int

	evalGate chan struct{} // capacity 1

	histMu  sync.Mutex
	history []*Alert

	lastAlert sync.Map // rule id -> time.Time

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewEngine creates an alert engine. historyLimit bounds the retained
// triggered alerts (FIFO eviction).
func NewEngine(rules RuleSource, notifier Notifier, historyLimit int) *Engine {
	if historyLimit < 1 {
		historyLimit = 1
	}
	return &Engine{
		rules:        rules,
		notifier:     notifier,
		historyLimit: historyLimit,
		evalGate:     make(chan struct{}, 1),
		stopChan:     make(chan struct{}),
	}
}

// EvaluateMetrics runs one evaluation pass over all active rules. Only one
// pass runs at a time system-wide; a cancelled context unwinds without
// leaving the gate held. Per-rule failures are logged and never abort the
// remaining rules.
func (e *Engine) EvaluateMetrics(ctx context.Context, snapshot metrics.Snapshot) error {
	select {
	case e.evalGate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.evalGate }()

	rules, err := e.rules.ActiveRules(ctx)
	if err != nil {
		log.Error().Err(err).Msg("alerting: failed to load active rules")
		return nil
	}

	now := time.Now()
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.evaluateRule(ctx, rule, snapshot, now)
	}
	return nil
}

// evaluateRule checks one rule against the snapshot, isolating its errors.
func (e *Engine) evaluateRule(ctx context.Context, rule Rule, snapshot metrics.Snapshot, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("rule", rule.Name).
				Interface("panic", r).
				Msg("alerting: rule evaluation failed")
		}
	}()

	if last, ok := e.lastAlert.Load(rule.ID); ok {
		if now.Sub(last.(time.Time)) < rule.Cooldown {
			return
		}
	}

	value := metricValue(rule.Metric, snapshot)
	if !rule.Condition.Evaluate(value) {
		return
	}

	alert := e.trigger(rule, value, now)
	e.dispatch(ctx, alert)

	log.Warn().
		Str("rule", rule.Name).
		Str("metric", string(rule.Metric)).
		Float64("value", value).
		Str("severity", string(rule.Severity)).
		Msg("alert_triggered")
}

// metricValue maps a rule's metric type onto a snapshot field. Kept as one
// switch with an explicit fallback so the mapping stays auditable as a
// single table. Latency, CacheHitRate, CostRate and QueueLength have no
// source in the current snapshot model and resolve to zero; known
// data-completeness gap.
func metricValue(metric MetricType, snapshot metrics.Snapshot) float64 {
	switch metric {
	case MetricErrorRate:
		return snapshot.CurrentErrorRate
	case MetricProviderAvailability:
		total := len(snapshot.ProviderHealth)
		if total == 0 {
			return 0
		}
		healthy := 0
		for _, ok := range snapshot.ProviderHealth {
			if ok {
				healthy++
			}
		}
		return float64(healthy) / float64(total)
	case MetricActiveSessions:
		return float64(snapshot.ActiveRealtimeSessions)
	case MetricRequestRate:
		return snapshot.RequestsPerSecond
	case MetricConnectionPoolUtilization:
		return float64(snapshot.ActiveConnections) / 100.0
	default:
		// Latency, CacheHitRate, CostRate, QueueLength.
		return 0
	}
}

// trigger builds the alert and commits it to history under the history
// lock; notification dispatch happens outside, in the caller.
func (e *Engine) trigger(rule Rule, value float64, now time.Time) *Alert {
	alert := &Alert{
		ID:       uuid.NewString(),
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Metric:   rule.Metric,
		Value:    value,
		Message:  rule.message(value),
		Details: map[string]string{
			"operator":  string(rule.Condition.Operator),
			"threshold": fmt.Sprintf("%g", rule.Condition.Threshold),
		},
		Severity:    rule.Severity,
		State:       StateActive,
		Channels:    append([]string(nil), rule.Channels...),
		TriggeredAt: now,
	}

	e.histMu.Lock()
	e.history = append(e.history, alert)
	if len(e.history) > e.historyLimit {
		// FIFO eviction at the front.
		copy(e.history, e.history[1:])
		e.history[len(e.history)-1] = nil
		e.history = e.history[:e.historyLimit]
	}
	e.histMu.Unlock()

	e.lastAlert.Store(rule.ID, now)
	return alert
}

// dispatch sends the alert to every configured channel, isolating failures
// per channel.
func (e *Engine) dispatch(ctx context.Context, alert *Alert) {
	if e.notifier == nil {
		return
	}
	for _, channel := range alert.Channels {
		if err := e.notifier.Send(ctx, *alert, channel); err != nil {
			log.Error().
				Err(err).
				Str("channel", channel).
				Str("alert_id", alert.ID).
				Msg("alerting: notification failed")
		}
	}
}

// AlertHistory returns triggered alerts in [start, end], most recent first.
// A non-empty severity filters the result.
func (e *Engine) AlertHistory(start, end time.Time, severity Severity) []Alert {
	e.histMu.Lock()
	defer e.histMu.Unlock()

	out := make([]Alert, 0, len(e.history))
	for _, a := range e.history {
		if a.TriggeredAt.Before(start) || a.TriggeredAt.After(end) {
			continue
		}
		if severity != "" && a.Severity != severity {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TriggeredAt.After(out[j].TriggeredAt)
	})
	return out
}

// AcknowledgeAlert transitions the matching alert to Acknowledged and
// stamps metadata. No-op when the id is unknown; returns whether a
// transition happened.
func (e *Engine) AcknowledgeAlert(id, by, note string) bool {
	e.histMu.Lock()
	defer e.histMu.Unlock()

	for _, a := range e.history {
		if a.ID != id {
			continue
		}
		if a.State == StateAcknowledged {
			return false
		}
		now := time.Now()
		a.State = StateAcknowledged
		a.AcknowledgedAt = &now
		a.AcknowledgedBy = by
		a.AckNote = note
		return true
	}
	return false
}

// Start launches periodic evaluation against the snapshot source.
func (e *Engine) Start(src SnapshotSource, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-e.stopChan:
				return
			case <-ticker.C:
				if err := e.EvaluateMetrics(context.Background(), src.Snapshot()); err != nil {
					log.Error().Err(err).Msg("alerting: periodic evaluation failed")
				}
			}
		}
	}()
}

// Close stops periodic evaluation.
func (e *Engine) Close() {
	e.stopOnce.Do(func() { close(e.stopChan) })
}
