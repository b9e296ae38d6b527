// internal/types/rules.go
package types

/*
 * Domain types for rule matching.
 *
 * Provides Rule, OperationSpec and TriggeredState used by internal/trigger
 * for matching and dispatch. These types are storage agnostic - JSON column
 * encoding happens in internal/store.
 *
 * Key types:
 *   - Rule: event kind binding with filter, definitions and operations
 *   - OperationSpec: one configured operation (name + parameter bag)
 *   - TriggeredState: per-rule persisted counters and millisecond anchors
 *   - RuleQuery: selector used by Fire (by rule ID or by event name)
 */

// Triggered state keys written by condition checkers and the decayer.
const (
	TriggeredRunEveryXCommands = "runEveryXCommands"
	TriggeredRunEveryXKeywords = "runEveryXKeywords"
	TriggeredRunInterval       = "runInterval"
	TriggeredRunAfterXMinutes  = "runAfterXMinutes"
	TriggeredRunEveryXMinutes  = "runEveryXMinutes"
	TriggeredFadeOutInterval   = "fadeOutInterval"
)

// OperationSpec is one configured operation of a rule.
type OperationSpec struct {
	Name        string      `json:"name" yaml:"name"`
	Definitions Definitions `json:"definitions" yaml:"definitions"`
}

// TriggeredState holds numeric counters and anchors (Unix milliseconds).
// Values are not clamped by construction; writers decide.
type TriggeredState map[string]float64

// Get returns the value for key, 0 when unset.
func (t TriggeredState) Get(key string) float64 {
	return t[key]
}

// Has reports whether key has been written.
func (t TriggeredState) Has(key string) bool {
	_, ok := t[key]
	return ok
}

// Rule binds an event kind to a filter and an ordered list of operations.
type Rule struct {
	ID          RuleID          `json:"id" yaml:"id"`
	EventName   string          `json:"eventName" yaml:"eventName"`
	Definitions Definitions     `json:"definitions" yaml:"definitions"`
	Triggered   TriggeredState  `json:"triggered" yaml:"triggered,omitempty"`
	IsEnabled   bool            `json:"isEnabled" yaml:"isEnabled"`
	Filter      string          `json:"filter" yaml:"filter"`
	Operations  []OperationSpec `json:"operations" yaml:"operations"`
}

// Clone returns a deep copy safe to mutate independently.
func (r *Rule) Clone() *Rule {
	out := *r
	out.Definitions = r.Definitions.Clone()
	out.Triggered = make(TriggeredState, len(r.Triggered))
	for k, v := range r.Triggered {
		out.Triggered[k] = v
	}
	out.Operations = make([]OperationSpec, len(r.Operations))
	for i, op := range r.Operations {
		out.Operations[i] = OperationSpec{Name: op.Name, Definitions: op.Definitions.Clone()}
	}
	return &out
}

// EnsureState initialises nil maps so checkers can write unconditionally.
func (r *Rule) EnsureState() {
	if r.Triggered == nil {
		r.Triggered = TriggeredState{}
	}
	if r.Definitions == nil {
		r.Definitions = Definitions{}
	}
}

// RuleQuery selects enabled rules for a firing: by ID when set, else by event.
type RuleQuery struct {
	ID        RuleID
	EventName string
}
