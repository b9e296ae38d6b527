// internal/trigger/engine.go
package trigger

/*
 * Rule matcher and dispatcher.
 *
 * Fire runs one platform event through the rules bound to it:
 *
 *   1. copy attributes so the caller's map is never mutated
 *   2. resolve identities (may abort the firing)
 *   3. reset shortcut: attributes.reset clears triggered state and returns
 *   4. load enabled rules by rule id (UUID) or by event kind name
 *   5. per rule, evaluate the filter and the kind's condition concurrently
 *   6. gate: both must hold unless the firing is command-triggered
 *   7. submit each known operation to the executor, skipping run-command
 *      operations that would re-run the triggering command
 *
 * Rules are processed sequentially. Operations run on the executor and are
 * never awaited.
 */

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AnotherFoxGuy/sogeBot/internal/filter"
	"github.com/AnotherFoxGuy/sogeBot/internal/operations"
	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// RuleStore is the rule persistence surface used by the engine.
type RuleStore interface {
	DecayStore
	FindEnabled(ctx context.Context, q types.RuleQuery) ([]*types.Rule, error)
	ResetTriggered(ctx context.Context, eventName string) (int64, error)
}

// VariableSource exposes custom variables to filters.
type VariableSource interface {
	All(ctx context.Context) (map[string]string, error)
}

// OperationCatalog resolves operation names.
type OperationCatalog interface {
	Lookup(name string) (operations.Descriptor, bool)
	List() []operations.Descriptor
}

// Submitter accepts operation tasks.
type Submitter interface {
	Submit(task Task) error
}

// Deps are the engine's collaborators. Rules, Users, Lookup, Stream,
// Operations and Executor are required.
type Deps struct {
	Rules      RuleStore
	Users      UserStore
	Lookup     PrincipalLookup
	Stream     StreamState
	Variables  VariableSource
	Operations OperationCatalog
	Executor   Submitter
	Exclusions *ExclusionCache
	Identity   BotIdentity
	Metrics    *Metrics
	Logger     *slog.Logger
	// DecayPeriod is the fade-out tick; 0 means one second.
	DecayPeriod time.Duration
	Now         func() time.Time
}

// Engine is the event trigger engine.
type Engine struct {
	rules     RuleStore
	stream    StreamState
	variables VariableSource
	ops       OperationCatalog
	executor  Submitter
	kinds     *Catalog
	resolver  *Resolver
	excluded  *ExclusionCache
	locks     *ruleLocks
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
	decay     time.Duration
}

// New wires an engine.
func New(d Deps) *Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics(nil)
	}
	if d.Exclusions == nil {
		d.Exclusions = NewExclusionCache()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.DecayPeriod <= 0 {
		d.DecayPeriod = time.Second
	}
	return &Engine{
		rules:     d.Rules,
		stream:    d.Stream,
		variables: d.Variables,
		ops:       d.Operations,
		executor:  d.Executor,
		kinds:     NewCatalog(NewConditions(d.Rules, d.Stream, d.Now)),
		resolver:  NewResolver(d.Users, d.Lookup, d.Exclusions, d.Identity, d.Logger, d.Metrics),
		excluded:  d.Exclusions,
		locks:     newRuleLocks(),
		metrics:   d.Metrics,
		logger:    d.Logger,
		now:       d.Now,
		decay:     d.DecayPeriod,
	}
}

// Decayer returns the fade-out scheduler sharing this engine's rule locks.
func (e *Engine) Decayer() *Decayer {
	return &Decayer{
		store:   e.rules,
		locks:   e.locks,
		period:  e.decay,
		now:     e.now,
		logger:  e.logger,
		metrics: e.metrics,
	}
}

// EventKinds lists the event catalog.
func (e *Engine) EventKinds() []EventKind {
	return e.kinds.List()
}

// Operations lists the operation catalog.
func (e *Engine) Operations() []operations.Descriptor {
	return e.ops.List()
}

// Exclusions returns the identity exclusion cache.
func (e *Engine) Exclusions() *ExclusionCache {
	return e.excluded
}

// Fire runs one event through its rules. It returns after every matching
// rule reached dispatch or skip; operations may still be running.
func (e *Engine) Fire(ctx context.Context, eventID string, attrs types.Attributes) error {
	attrs = attrs.Clone()
	e.metrics.fires.WithLabelValues(e.fireLabel(eventID)).Inc()
	e.logger.Debug("event fired", "event", eventID, "attributes", attrs)

	ok, err := e.resolver.Resolve(ctx, eventID, attrs)
	if err != nil {
		return fmt.Errorf("resolve identity: %w", err)
	}
	if !ok {
		return nil
	}

	if types.Truthy(attrs[types.AttrReset]) {
		_, err := e.Reset(ctx, eventID)
		return err
	}

	query := types.RuleQuery{EventName: eventID}
	if types.IsUUID(eventID) {
		query = types.RuleQuery{ID: types.RuleID(eventID)}
	}
	rules, err := e.rules.FindEnabled(ctx, query)
	if err != nil {
		return fmt.Errorf("load rules for %s: %w", eventID, err)
	}
	if len(rules) == 0 {
		return nil
	}

	custom := e.customVariables(ctx, rules)
	for _, rule := range rules {
		e.processRule(ctx, eventID, rule, attrs, custom)
	}
	return nil
}

func (e *Engine) fireLabel(eventID string) string {
	if _, ok := e.kinds.Get(eventID); ok {
		return eventID
	}
	if types.IsUUID(eventID) {
		return "rule"
	}
	return "unknown"
}

// customVariables loads custom variables once per firing, and only when a
// rule has a filter to evaluate.
func (e *Engine) customVariables(ctx context.Context, rules []*types.Rule) map[string]string {
	if e.variables == nil {
		return nil
	}
	for _, r := range rules {
		if strings.TrimSpace(r.Filter) == "" {
			continue
		}
		vars, err := e.variables.All(ctx)
		if err != nil {
			e.logger.Warn("custom variables unavailable to filters", "error", err)
			return nil
		}
		return vars
	}
	return nil
}

func (e *Engine) processRule(ctx context.Context, eventID string, rule *types.Rule, attrs types.Attributes, custom map[string]string) {
	var byFilter, byCondition bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		byFilter = e.checkFilter(rule, attrs.Clone(), custom)
		return nil
	})
	g.Go(func() error {
		byCondition = e.checkCondition(gctx, rule, attrs.Clone())
		return nil
	})
	_ = g.Wait()

	triggeredBy, forced := attrs[types.AttrIsTriggeredByCommand]
	forced = forced && types.Truthy(triggeredBy)

	switch {
	case byFilter && byCondition:
		e.metrics.evaluations.WithLabelValues(OutcomeDispatched).Inc()
	case forced:
		e.metrics.evaluations.WithLabelValues(OutcomeForced).Inc()
	case !byFilter:
		e.metrics.evaluations.WithLabelValues(OutcomeFiltered).Inc()
		return
	default:
		e.metrics.evaluations.WithLabelValues(OutcomeCondition).Inc()
		return
	}

	e.logger.Info("event triggered, running operations",
		"event", eventID, "rule_id", rule.ID, "operations", len(rule.Operations))

	for _, spec := range rule.Operations {
		desc, ok := e.ops.Lookup(spec.Name)
		if !ok {
			e.logger.Debug("skipping unknown operation", "rule_id", rule.ID, "operation", spec.Name)
			continue
		}
		if forced && spec.Name == operations.RunCommand &&
			strings.HasPrefix(spec.Definitions.String("commandToRun"), types.ToString(triggeredBy)) {
			e.metrics.reentrant.Inc()
			e.logger.Warn("cannot trigger run-command, it would cause an infinite loop",
				"rule_id", rule.ID, "command", spec.Definitions.String("commandToRun"))
			continue
		}

		opAttrs := attrs.Clone()
		opAttrs[types.AttrEventID] = string(rule.ID)
		e.submit(Task{
			RuleID:      rule.ID,
			Operation:   spec.Name,
			Definitions: spec.Definitions.WithDefaults(desc.Definitions),
			Attributes:  opAttrs,
			Dispatch:    desc.Dispatch,
		})
	}
}

func (e *Engine) submit(task Task) {
	if err := e.executor.Submit(task); err != nil {
		e.logger.Warn("operation dropped", "rule_id", task.RuleID, "operation", task.Operation, "error", err)
		return
	}
	e.metrics.dispatched.WithLabelValues(task.Operation).Inc()
}

// checkFilter evaluates the rule's filter; any error counts as false.
func (e *Engine) checkFilter(rule *types.Rule, attrs types.Attributes, custom map[string]string) bool {
	if strings.TrimSpace(rule.Filter) == "" {
		return true
	}
	vars := filter.BuildVars(attrs, e.stream.Globals(), custom)
	ok, err := filter.CheckErr(rule.Filter, vars)
	if err != nil {
		e.logger.Debug("filter evaluation failed", "rule_id", rule.ID, "error", err)
		return false
	}
	return ok
}

// checkCondition runs the kind's checker on a fresh copy of the rule read
// under the rule's lock. Checker errors count as false.
func (e *Engine) checkCondition(ctx context.Context, rule *types.Rule, attrs types.Attributes) bool {
	kind, ok := e.kinds.Get(rule.EventName)
	if !ok || kind.Check == nil {
		return true
	}

	unlock := e.locks.lock(rule.ID)
	defer unlock()

	fresh, err := e.rules.Get(ctx, rule.ID)
	if err != nil {
		e.logger.Warn("condition check skipped, rule unavailable", "rule_id", rule.ID, "error", err)
		return false
	}
	fresh.Definitions = fresh.Definitions.WithDefaults(kind.Definitions)

	ok, err = kind.Check(ctx, fresh, attrs)
	if err != nil {
		e.logger.Error("condition check failed", "rule_id", rule.ID, "event", rule.EventName, "error", err)
		return false
	}
	return ok
}

// Reset clears the triggered state of every rule bound to eventName.
func (e *Engine) Reset(ctx context.Context, eventName string) (int64, error) {
	n, err := e.rules.ResetTriggered(ctx, eventName)
	if err != nil {
		return 0, fmt.Errorf("reset %s: %w", eventName, err)
	}
	e.logger.Info("triggered state reset", "event", eventName, "rules", n)
	return n, nil
}

// OnStreamEnd starts a new exclusion epoch and re-arms per-stream conditions.
func (e *Engine) OnStreamEnd(ctx context.Context) {
	e.excluded.Clear()
	for _, kind := range []string{KindStreamIsRunningXMinutes, KindEveryXMinutesOfStream} {
		if _, err := e.Reset(ctx, kind); err != nil {
			e.logger.Warn("stream end reset failed", "event", kind, "error", err)
		}
	}
}
