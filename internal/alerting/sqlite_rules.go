// Package alerting - sqlite_rules.go is the SQLite-backed rule repository.
//
// DESIGN: One table, read mostly once per evaluation pass. Channels are
// stored as a JSON array column; cooldown as integer seconds. Disabled
// rules stay in the table but never reach an evaluation pass.
package alerting

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const rulesSchema = `
CREATE TABLE IF NOT EXISTS alert_rules (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	metric_type      TEXT NOT NULL,
	operator         TEXT NOT NULL,
	threshold        REAL NOT NULL,
	cooldown_seconds INTEGER NOT NULL DEFAULT 0,
	severity         TEXT NOT NULL DEFAULT 'warning',
	channels         TEXT NOT NULL DEFAULT '[]',
	enabled          INTEGER NOT NULL DEFAULT 1
);`

// SQLiteRuleStore persists alert rules in a SQLite database.
type SQLiteRuleStore struct {
	db *sql.DB
}

// OpenRuleStore opens (creating if needed) the rule database at path.
func OpenRuleStore(path string) (*SQLiteRuleStore, error) {
	if path == "" {
		return nil, fmt.Errorf("rule store path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule store '%s': %w", path, err)
	}
	if _, err := db.Exec(rulesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize rule store schema: %w", err)
	}
	return &SQLiteRuleStore{db: db}, nil
}

// ActiveRules returns all enabled rules.
func (s *SQLiteRuleStore) ActiveRules(ctx context.Context) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, metric_type, operator, threshold, cooldown_seconds, severity, channels
		FROM alert_rules WHERE enabled = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var (
			rule            Rule
			cooldownSeconds int64
			channelsJSON    string
		)
		if err := rows.Scan(&rule.ID, &rule.Name, (*string)(&rule.Metric),
			(*string)(&rule.Condition.Operator), &rule.Condition.Threshold,
			&cooldownSeconds, (*string)(&rule.Severity), &channelsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		rule.Cooldown = time.Duration(cooldownSeconds) * time.Second
		if err := json.Unmarshal([]byte(channelsJSON), &rule.Channels); err != nil {
			return nil, fmt.Errorf("malformed channels for rule '%s': %w", rule.ID, err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// SaveRule inserts or replaces a rule.
func (s *SQLiteRuleStore) SaveRule(ctx context.Context, rule Rule, enabled bool) error {
	if rule.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	channelsJSON, err := json.Marshal(rule.Channels)
	if err != nil {
		return fmt.Errorf("failed to encode channels: %w", err)
	}
	enabledInt := 0
	if enabled {
		enabledInt = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alert_rules (id, name, metric_type, operator, threshold, cooldown_seconds, severity, channels, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			metric_type = excluded.metric_type,
			operator = excluded.operator,
			threshold = excluded.threshold,
			cooldown_seconds = excluded.cooldown_seconds,
			severity = excluded.severity,
			channels = excluded.channels,
			enabled = excluded.enabled`,
		rule.ID, rule.Name, string(rule.Metric), string(rule.Condition.Operator),
		rule.Condition.Threshold, int64(rule.Cooldown/time.Second),
		string(rule.Severity), string(channelsJSON), enabledInt)
	if err != nil {
		return fmt.Errorf("failed to save rule '%s': %w", rule.ID, err)
	}
	return nil
}

// DeleteRule removes a rule by id.
func (s *SQLiteRuleStore) DeleteRule(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete rule '%s': %w", id, err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteRuleStore) Close() error {
	return s.db.Close()
}

var _ RuleSource = (*SQLiteRuleStore)(nil)
