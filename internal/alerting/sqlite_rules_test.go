package alerting_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlane/audio-gateway/internal/alerting"
)

func openTestStore(t *testing.T) *alerting.SQLiteRuleStore {
	t.Helper()
	store, err := alerting.OpenRuleStore(filepath.Join(t.TempDir(), "rules.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteRuleStore_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rule := alerting.Rule{
		ID:        "r1",
		Name:      "High error rate",
		Metric:    alerting.MetricErrorRate,
		Condition: alerting.Condition{Operator: alerting.OpGreaterThan, Threshold: 0.25},
		Cooldown:  5 * time.Minute,
		Severity:  alerting.SeverityCritical,
		Channels:  []string{"ops-email", "ops-pager"},
	}
	require.NoError(t, store.SaveRule(ctx, rule, true))

	rules, err := store.ActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	got := rules[0]
	assert.Equal(t, rule.ID, got.ID)
	assert.Equal(t, rule.Name, got.Name)
	assert.Equal(t, rule.Metric, got.Metric)
	assert.Equal(t, rule.Condition, got.Condition)
	assert.Equal(t, rule.Cooldown, got.Cooldown)
	assert.Equal(t, rule.Severity, got.Severity)
	assert.Equal(t, rule.Channels, got.Channels)
}

func TestSQLiteRuleStore_DisabledRulesExcluded(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	enabled := alerting.Rule{
		ID:        "on",
		Name:      "enabled",
		Metric:    alerting.MetricRequestRate,
		Condition: alerting.Condition{Operator: alerting.OpGreaterThan, Threshold: 100},
		Severity:  alerting.SeverityInfo,
	}
	disabled := enabled
	disabled.ID = "off"
	disabled.Name = "disabled"

	require.NoError(t, store.SaveRule(ctx, enabled, true))
	require.NoError(t, store.SaveRule(ctx, disabled, false))

	rules, err := store.ActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "on", rules[0].ID)
}

func TestSQLiteRuleStore_UpsertReplacesExisting(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rule := alerting.Rule{
		ID:        "r1",
		Name:      "original",
		Metric:    alerting.MetricErrorRate,
		Condition: alerting.Condition{Operator: alerting.OpGreaterThan, Threshold: 0.1},
		Severity:  alerting.SeverityWarning,
	}
	require.NoError(t, store.SaveRule(ctx, rule, true))

	rule.Name = "updated"
	rule.Condition.Threshold = 0.2
	require.NoError(t, store.SaveRule(ctx, rule, true))

	rules, err := store.ActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "updated", rules[0].Name)
	assert.Equal(t, 0.2, rules[0].Condition.Threshold)
}

func TestSQLiteRuleStore_DeleteRule(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rule := alerting.Rule{
		ID:        "r1",
		Name:      "to delete",
		Metric:    alerting.MetricErrorRate,
		Condition: alerting.Condition{Operator: alerting.OpGreaterThan, Threshold: 0.1},
		Severity:  alerting.SeverityInfo,
	}
	require.NoError(t, store.SaveRule(ctx, rule, true))
	require.NoError(t, store.DeleteRule(ctx, "r1"))

	rules, err := store.ActiveRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestSQLiteRuleStore_RejectsEmptyID(t *testing.T) {
	store := openTestStore(t)
	err := store.SaveRule(context.Background(), alerting.Rule{Name: "anonymous"}, true)
	assert.Error(t, err)
}

func TestOpenRuleStore_RequiresPath(t *testing.T) {
	_, err := alerting.OpenRuleStore("")
	assert.Error(t, err)
}
