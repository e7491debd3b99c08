// Package alerting - rules.go provides rule sources.
//
// DESIGN: StaticRuleSource serves a fixed in-memory rule set (tests,
// single-node deployments). The SQLite-backed store lives in
// sqlite_rules.go for shared deployments.
package alerting

import (
	"context"
	"sync"
)

// StaticRuleSource serves an in-memory rule set.
type StaticRuleSource struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewStaticRuleSource creates a source serving the given rules.
func NewStaticRuleSource(rules ...Rule) *StaticRuleSource {
	return &StaticRuleSource{rules: rules}
}

// ActiveRules returns a copy of the current rule set.
func (s *StaticRuleSource) ActiveRules(_ context.Context) ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Rule(nil), s.rules...), nil
}

// SetRules replaces the rule set.
func (s *StaticRuleSource) SetRules(rules []Rule) {
	s.mu.Lock()
	s.rules = append([]Rule(nil), rules...)
	s.mu.Unlock()
}

var _ RuleSource = (*StaticRuleSource)(nil)
