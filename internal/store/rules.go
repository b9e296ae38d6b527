// Package store persists rules, users and custom variables through the
// named queries in internal/core/db.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AnotherFoxGuy/sogeBot/internal/core/db"
	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// ruleRow is the column layout of the rules table. JSON columns are TEXT so
// the same schema serves SQLite and PostgreSQL.
type ruleRow struct {
	ID          string    `db:"id"`
	EventName   string    `db:"event_name"`
	Definitions string    `db:"definitions"`
	Triggered   string    `db:"triggered"`
	IsEnabled   bool      `db:"is_enabled"`
	Filter      string    `db:"filter"`
	Operations  string    `db:"operations"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r ruleRow) toRule() (*types.Rule, error) {
	rule := &types.Rule{
		ID:        types.RuleID(r.ID),
		EventName: r.EventName,
		IsEnabled: r.IsEnabled,
		Filter:    r.Filter,
	}
	if err := decodeJSON(r.Definitions, &rule.Definitions); err != nil {
		return nil, fmt.Errorf("rule %s definitions: %w", r.ID, err)
	}
	if err := decodeJSON(r.Triggered, &rule.Triggered); err != nil {
		return nil, fmt.Errorf("rule %s triggered: %w", r.ID, err)
	}
	if err := decodeJSON(r.Operations, &rule.Operations); err != nil {
		return nil, fmt.Errorf("rule %s operations: %w", r.ID, err)
	}
	rule.EnsureState()
	if rule.Operations == nil {
		rule.Operations = []types.OperationSpec{}
	}
	return rule, nil
}

func decodeJSON(s string, dest any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), dest)
}

func encodeJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

// RuleStore reads and writes rules.
type RuleStore struct {
	q   *db.Queries
	now func() time.Time
}

// NewRuleStore creates a rule store over loaded queries.
func NewRuleStore(q *db.Queries) *RuleStore {
	return &RuleStore{q: q, now: func() time.Time { return time.Now().UTC() }}
}

// Ping reports whether the backing database is reachable.
func (s *RuleStore) Ping(ctx context.Context) error {
	if err := s.q.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreNotReady, err)
	}
	return nil
}

func (s *RuleStore) selectRules(ctx context.Context, name string, args ...any) ([]*types.Rule, error) {
	var rows []ruleRow
	if err := s.q.SelectContext(ctx, name, &rows, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	rules := make([]*types.Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.toRule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// FindEnabled returns enabled rules selected by ID when q.ID is set, else by event name.
func (s *RuleStore) FindEnabled(ctx context.Context, q types.RuleQuery) ([]*types.Rule, error) {
	if q.ID != "" {
		return s.selectRules(ctx, "find-enabled-rules-by-id", string(q.ID))
	}
	return s.selectRules(ctx, "find-enabled-rules-by-event", q.EventName)
}

// FindByEvent returns every rule, enabled or not, bound to one of the event names.
func (s *RuleStore) FindByEvent(ctx context.Context, eventNames ...string) ([]*types.Rule, error) {
	var all []*types.Rule
	for _, name := range eventNames {
		rules, err := s.selectRules(ctx, "find-rules-by-event", name)
		if err != nil {
			return nil, err
		}
		all = append(all, rules...)
	}
	return all, nil
}

// List returns all rules ordered by creation.
func (s *RuleStore) List(ctx context.Context) ([]*types.Rule, error) {
	return s.selectRules(ctx, "list-rules")
}

// Get returns one rule or ErrRuleNotFound.
func (s *RuleStore) Get(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	var row ruleRow
	err := s.q.GetContext(ctx, "get-rule", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get-rule: %w", err)
	}
	return row.toRule()
}

// Save inserts or replaces a rule. A rule without an ID gets a new UUIDv7.
func (s *RuleStore) Save(ctx context.Context, rule *types.Rule) (*types.Rule, error) {
	out := rule.Clone()
	if out.ID == "" {
		out.ID = types.NewRuleID()
	}
	out.EnsureState()

	definitions, err := encodeJSON(out.Definitions, "{}")
	if err != nil {
		return nil, fmt.Errorf("encode definitions: %w", err)
	}
	triggered, err := encodeJSON(out.Triggered, "{}")
	if err != nil {
		return nil, fmt.Errorf("encode triggered: %w", err)
	}
	operations, err := encodeJSON(out.Operations, "[]")
	if err != nil {
		return nil, fmt.Errorf("encode operations: %w", err)
	}

	now := s.now()
	_, err = s.q.ExecContext(ctx, "upsert-rule",
		string(out.ID), out.EventName, definitions, triggered, out.IsEnabled, out.Filter, operations, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert-rule: %w", err)
	}
	return out, nil
}

// SaveTriggered persists only the triggered state of a rule, leaving
// concurrently edited definitions and operations untouched.
func (s *RuleStore) SaveTriggered(ctx context.Context, id types.RuleID, state types.TriggeredState) error {
	triggered, err := encodeJSON(state, "{}")
	if err != nil {
		return fmt.Errorf("encode triggered: %w", err)
	}
	res, err := s.q.ExecContext(ctx, "update-rule-triggered", triggered, s.now(), string(id))
	if err != nil {
		return fmt.Errorf("update-rule-triggered: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return types.ErrRuleNotFound
	}
	return nil
}

// ResetTriggered clears the triggered state of every rule bound to eventName.
func (s *RuleStore) ResetTriggered(ctx context.Context, eventName string) (int64, error) {
	res, err := s.q.ExecContext(ctx, "reset-triggered-by-event", s.now(), eventName)
	if err != nil {
		return 0, fmt.Errorf("reset-triggered-by-event: %w", err)
	}
	return res.RowsAffected()
}

// Delete removes a rule or returns ErrRuleNotFound.
func (s *RuleStore) Delete(ctx context.Context, id types.RuleID) error {
	res, err := s.q.ExecContext(ctx, "delete-rule", string(id))
	if err != nil {
		return fmt.Errorf("delete-rule: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return types.ErrRuleNotFound
	}
	return nil
}
