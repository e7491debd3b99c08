// Package alerting evaluates metric snapshots against operator-defined
// health rules.
//
// DESIGN: Rules are immutable for the duration of one evaluation pass and
// come from a RuleSource. Triggered alerts live in a bounded FIFO history
// owned by the engine; their only mutation is the Active -> Acknowledged
// transition.
package alerting

import (
	"fmt"
	"time"
)

// MetricType enumerates the metric a rule evaluates.
type MetricType string

const (
	MetricErrorRate                 MetricType = "ErrorRate"
	MetricLatency                   MetricType = "Latency"
	MetricProviderAvailability      MetricType = "ProviderAvailability"
	MetricCacheHitRate              MetricType = "CacheHitRate"
	MetricActiveSessions            MetricType = "ActiveSessions"
	MetricRequestRate               MetricType = "RequestRate"
	MetricCostRate                  MetricType = "CostRate"
	MetricConnectionPoolUtilization MetricType = "ConnectionPoolUtilization"
	MetricQueueLength               MetricType = "QueueLength"
)

// Operator is a rule condition comparison operator.
type Operator string

const (
	OpGreaterThan    Operator = "GreaterThan"
	OpLessThan       Operator = "LessThan"
	OpEquals         Operator = "Equals"
	OpNotEquals      Operator = "NotEquals"
	OpGreaterOrEqual Operator = "GreaterOrEqual"
	OpLessOrEqual    Operator = "LessOrEqual"
)

// floatTolerance is the absolute-difference tolerance for equality
// comparisons; avoids floating-point false negatives/positives.
const floatTolerance = 0.001

// Condition pairs an operator with a numeric threshold.
type Condition struct {
	Operator  Operator `json:"operator" yaml:"operator"`
	Threshold float64  `json:"threshold" yaml:"threshold"`
}

// Evaluate reports whether value satisfies the condition.
func (c Condition) Evaluate(value float64) bool {
	switch c.Operator {
	case OpGreaterThan:
		return value > c.Threshold
	case OpLessThan:
		return value < c.Threshold
	case OpEquals:
		return abs(value-c.Threshold) < floatTolerance
	case OpNotEquals:
		return abs(value-c.Threshold) >= floatTolerance
	case OpGreaterOrEqual:
		return value >= c.Threshold
	case OpLessOrEqual:
		return value <= c.Threshold
	default:
		return false
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// Severity classifies an alert's urgency.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rule is an operator-defined health rule.
type Rule struct {
	ID        string        `json:"id" yaml:"id"`
	Name      string        `json:"name" yaml:"name"`
	Metric    MetricType    `json:"metric" yaml:"metric"`
	Condition Condition     `json:"condition" yaml:"condition"`
	Cooldown  time.Duration `json:"cooldown" yaml:"cooldown"`
	Severity  Severity      `json:"severity" yaml:"severity"`
	Channels  []string      `json:"channels" yaml:"channels"`
}

// message formats the alert message for a measured value.
func (r Rule) message(value float64) string {
	return fmt.Sprintf("%s: %s is %g (threshold: %s %g)",
		r.Name, r.Metric, value, r.Condition.Operator, r.Condition.Threshold)
}

// State is a triggered alert's lifecycle state.
type State string

const (
	StateActive       State = "Active"
	StateAcknowledged State = "Acknowledged"
)

// Alert is one triggered rule occurrence.
type Alert struct {
	ID             string            `json:"id"`
	RuleID         string            `json:"rule_id"`
	RuleName       string            `json:"rule_name"`
	Metric         MetricType        `json:"metric"`
	Value          float64           `json:"value"`
	Message        string            `json:"message"`
	Details        map[string]string `json:"details,omitempty"`
	Severity       Severity          `json:"severity"`
	State          State             `json:"state"`
	Channels       []string          `json:"channels,omitempty"`
	TriggeredAt    time.Time         `json:"triggered_at"`
	AcknowledgedAt *time.Time        `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string            `json:"acknowledged_by,omitempty"`
	AckNote        string            `json:"ack_note,omitempty"`
}
