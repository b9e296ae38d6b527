package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/AnotherFoxGuy/sogeBot/internal/core/db"
	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// VariableName normalises a custom variable name to its "$_name" form.
func VariableName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "$_")
	name = strings.TrimPrefix(name, "$")
	return "$_" + name
}

// VariableStore holds user-defined custom variables.
type VariableStore struct {
	q *db.Queries
}

// NewVariableStore creates a variable store over loaded queries.
func NewVariableStore(q *db.Queries) *VariableStore {
	return &VariableStore{q: q}
}

// Get returns the value of a variable or ErrVariableNotFound.
func (s *VariableStore) Get(ctx context.Context, name string) (string, error) {
	var value string
	err := s.q.GetContext(ctx, "get-variable", &value, VariableName(name))
	if errors.Is(err, sql.ErrNoRows) {
		return "", types.ErrVariableNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get-variable: %w", err)
	}
	return value, nil
}

// Set creates or replaces a variable.
func (s *VariableStore) Set(ctx context.Context, name, value string) error {
	if _, err := s.q.ExecContext(ctx, "upsert-variable", VariableName(name), value); err != nil {
		return fmt.Errorf("upsert-variable: %w", err)
	}
	return nil
}

// All returns every variable keyed by its "$_name" form.
func (s *VariableStore) All(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Name  string `db:"name"`
		Value string `db:"value"`
	}
	if err := s.q.SelectContext(ctx, "list-variables", &rows); err != nil {
		return nil, fmt.Errorf("list-variables: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Name] = r.Value
	}
	return out, nil
}
