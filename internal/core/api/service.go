// Package api provides the gRPC admin API of the event engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/AnotherFoxGuy/sogeBot/internal/core/auth"
	"github.com/AnotherFoxGuy/sogeBot/internal/filter"
	"github.com/AnotherFoxGuy/sogeBot/internal/operations"
	"github.com/AnotherFoxGuy/sogeBot/internal/trigger"
	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// Engine is the engine surface exposed over the API.
type Engine interface {
	Fire(ctx context.Context, eventID string, attrs types.Attributes) error
	Reset(ctx context.Context, eventName string) (int64, error)
	TestFire(ctx context.Context, req trigger.TestFireRequest) error
	EventKinds() []trigger.EventKind
	Operations() []operations.Descriptor
}

// RuleStore is the rule administration surface.
type RuleStore interface {
	List(ctx context.Context) ([]*types.Rule, error)
	Get(ctx context.Context, id types.RuleID) (*types.Rule, error)
	Save(ctx context.Context, rule *types.Rule) (*types.Rule, error)
	Delete(ctx context.Context, id types.RuleID) error
}

// AdminService implements AdminServer.
// Thin orchestration layer delegating to the engine and the rule store.
type AdminService struct {
	engine  Engine
	rules   RuleStore
	timeout time.Duration
	logger  *slog.Logger
}

var _ AdminServer = (*AdminService)(nil)

// NewAdminService creates service instance with dependencies.
func NewAdminService(engine Engine, rules RuleStore, timeout time.Duration, logger *slog.Logger) (*AdminService, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if rules == nil {
		return nil, fmt.Errorf("rules cannot be nil")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminService{engine: engine, rules: rules, timeout: timeout, logger: logger}, nil
}

func (s *AdminService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *AdminService) audit(ctx context.Context, action string, args ...any) {
	if key, ok := auth.KeyFromContext(ctx); ok {
		args = append(args, "api_key", key.Name)
	}
	s.logger.Info(action, args...)
}

// Fire runs an event. Request: {"event": "<kind or rule id>", "attributes": {...}}.
func (s *AdminService) Fire(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	in := req.AsMap()
	event, _ := in["event"].(string)
	if strings.TrimSpace(event) == "" {
		return nil, invalid("event is required")
	}
	attrs, _ := in["attributes"].(map[string]any)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.engine.Fire(ctx, event, types.Attributes(attrs)); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Reset clears triggered state. Request: {"event": "<kind>"}. Response: {"rules": n}.
func (s *AdminService) Reset(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	event, _ := req.AsMap()["event"].(string)
	if strings.TrimSpace(event) == "" {
		return nil, invalid("event is required")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.engine.Reset(ctx, event)
	if err != nil {
		return nil, toStatus(err)
	}
	s.audit(ctx, "triggered state reset via api", "event", event, "rules", n)
	return structpb.NewStruct(map[string]any{"rules": float64(n)})
}

// TestFire dispatches a rule's operations with synthetic attributes. A
// malformed request or an unknown rule dispatches nothing and is not an error.
func (s *AdminService) TestFire(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	var in trigger.TestFireRequest
	if err := decode(req, &in); err != nil {
		s.logger.Debug("ignoring malformed test fire request", "error", err)
		return &emptypb.Empty{}, nil
	}
	if _, err := types.ParseRuleID(string(in.RuleID)); err != nil {
		s.logger.Debug("ignoring test fire without a rule id", "id", in.RuleID)
		return &emptypb.Empty{}, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.engine.TestFire(ctx, in); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// ListEventKinds returns the event catalog. Response: {"events": [...]}.
func (s *AdminService) ListEventKinds(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return encode(map[string]any{"events": s.engine.EventKinds()})
}

// ListOperations returns the operation catalog. Response: {"operations": [...]}.
func (s *AdminService) ListOperations(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return encode(map[string]any{"operations": s.engine.Operations()})
}

// ListRules returns every rule. Response: {"rules": [...]}.
func (s *AdminService) ListRules(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rules, err := s.rules.List(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	if rules == nil {
		rules = []*types.Rule{}
	}
	return encode(map[string]any{"rules": rules})
}

// GetRule returns one rule. Request: {"id": "<uuid>"}.
func (s *AdminService) GetRule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := ruleID(req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rule, err := s.rules.Get(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(rule)
}

// SaveRule validates and stores a rule. The request is the rule itself; a
// rule without id is created. Triggered state is never taken from the caller.
func (s *AdminService) SaveRule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var rule types.Rule
	if err := decode(req, &rule); err != nil {
		return nil, invalid("malformed rule: %v", err)
	}
	if err := s.validate(&rule); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rule.Triggered = types.TriggeredState{}
	if rule.ID != "" {
		existing, err := s.rules.Get(ctx, rule.ID)
		switch {
		case err == nil:
			rule.Triggered = existing.Triggered
		case !errors.Is(err, types.ErrRuleNotFound):
			return nil, toStatus(err)
		}
	}

	saved, err := s.rules.Save(ctx, &rule)
	if err != nil {
		return nil, toStatus(err)
	}
	s.audit(ctx, "rule saved via api", "rule_id", saved.ID, "event", saved.EventName)
	return encode(saved)
}

// DeleteRule removes a rule. Request: {"id": "<uuid>"}.
func (s *AdminService) DeleteRule(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	id, err := ruleID(req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.rules.Delete(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	s.audit(ctx, "rule deleted via api", "rule_id", id)
	return &emptypb.Empty{}, nil
}

// validate checks the event kind, the filter and operation names.
func (s *AdminService) validate(rule *types.Rule) error {
	if rule.ID != "" {
		if _, err := types.ParseRuleID(string(rule.ID)); err != nil {
			return invalid("id must be a rule UUID")
		}
	}
	if !s.knownKind(rule.EventName) {
		return toStatus(fmt.Errorf("%w: %q", types.ErrUnknownEventKind, rule.EventName))
	}
	if strings.TrimSpace(rule.Filter) != "" {
		if _, err := filter.Compile(rule.Filter); err != nil {
			return toStatus(fmt.Errorf("filter: %w", err))
		}
	}
	known := make(map[string]bool)
	for _, op := range s.engine.Operations() {
		known[op.ID] = true
	}
	for i, op := range rule.Operations {
		if !known[op.Name] {
			return invalid("operations[%d]: unknown operation %q", i, op.Name)
		}
	}
	return nil
}

func (s *AdminService) knownKind(name string) bool {
	for _, k := range s.engine.EventKinds() {
		if k.ID == name {
			return true
		}
	}
	return false
}

func ruleID(req *structpb.Struct) (types.RuleID, error) {
	raw, _ := req.AsMap()["id"].(string)
	id, err := types.ParseRuleID(raw)
	if err != nil {
		return "", invalid("id must be a rule UUID")
	}
	return id, nil
}

// decode converts a Struct into a JSON-tagged Go value.
func decode(in *structpb.Struct, out any) error {
	raw, err := in.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// encode converts a JSON-tagged Go value into a Struct.
func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, toStatus(err)
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}
