// internal/trigger/conditions.go
package trigger

/*
 * Built-in condition checkers.
 *
 * Each checker first verifies that the rule is bound to its own event kind;
 * a mismatch returns false with no side effects. Stateful checkers update
 * rule.Triggered in place and persist it with SaveTriggered. Callers hold the
 * rule's lock for the whole check.
 *
 * Anchors are Unix milliseconds. The interval gate allows a trigger when
 *   runInterval > 0 and now - anchor >= runInterval seconds, or
 *   runInterval == 0 and the anchor was never stamped (one shot until reset).
 */

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/AnotherFoxGuy/sogeBot/internal/filter"
	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// TriggeredWriter persists a rule's triggered state.
type TriggeredWriter interface {
	SaveTriggered(ctx context.Context, id types.RuleID, state types.TriggeredState) error
}

// StreamState is the read-only stream view used by checkers and filters.
type StreamState interface {
	Viewers() int
	Online() (bool, time.Time)
	Globals() filter.Globals
	MainCurrency() string
}

// Conditions binds checkers to their collaborators.
type Conditions struct {
	store  TriggeredWriter
	stream StreamState
	now    func() time.Time
}

// NewConditions creates checkers. now defaults to time.Now.
func NewConditions(store TriggeredWriter, stream StreamState, now func() time.Time) *Conditions {
	if now == nil {
		now = time.Now
	}
	return &Conditions{store: store, stream: stream, now: now}
}

func (c *Conditions) nowMillis() float64 {
	return float64(c.now().UnixMilli())
}

func (c *Conditions) save(ctx context.Context, rule *types.Rule) error {
	if err := c.store.SaveTriggered(ctx, rule.ID, rule.Triggered); err != nil {
		return fmt.Errorf("save triggered state of rule %s: %w", rule.ID, err)
	}
	return nil
}

// intervalGate reports whether the runInterval window allows a trigger.
func intervalGate(rule *types.Rule, now float64) bool {
	interval := rule.Definitions.Number("runInterval")
	anchor := rule.Triggered.Get(types.TriggeredRunInterval)
	return (interval > 0 && now-anchor >= interval*1000) ||
		(interval == 0 && anchor == 0)
}

func (c *Conditions) commandSendXTimes(ctx context.Context, rule *types.Rule, attrs types.Attributes) (bool, error) {
	if rule.EventName != KindCommandSendXTimes {
		return false, nil
	}
	command := strings.TrimSpace(rule.Definitions.String("commandToWatch"))
	if command == "" {
		return false, nil
	}
	re, err := regexp.Compile(`(?i)^` + regexp.QuoteMeta(command) + `\s`)
	if err != nil {
		return false, err
	}
	if !re.MatchString(attrs.String(types.AttrMessage) + " ") {
		return false, nil
	}

	rule.EnsureState()
	now := c.nowMillis()
	rule.Triggered[types.TriggeredRunEveryXCommands] = rule.Triggered.Get(types.TriggeredRunEveryXCommands) + 1

	trigger := rule.Triggered.Get(types.TriggeredRunEveryXCommands) >= rule.Definitions.Number("runEveryXCommands") &&
		intervalGate(rule, now)
	if trigger {
		rule.Triggered[types.TriggeredRunInterval] = now
		rule.Triggered[types.TriggeredRunEveryXCommands] = 0
	}
	return trigger, c.save(ctx, rule)
}

func (c *Conditions) keywordSendXTimes(ctx context.Context, rule *types.Rule, attrs types.Attributes) (bool, error) {
	if rule.EventName != KindKeywordSendXTimes {
		return false, nil
	}
	keyword := rule.Definitions.String("keywordToWatch")
	if strings.TrimSpace(keyword) == "" {
		return false, nil
	}
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(keyword))
	if err != nil {
		return false, err
	}
	matches := len(re.FindAllStringIndex(attrs.String(types.AttrMessage)+" ", -1))
	if matches == 0 {
		return false, nil
	}

	rule.EnsureState()
	now := c.nowMillis()
	count := rule.Triggered.Get(types.TriggeredRunEveryXKeywords)
	if rule.Definitions.Bool("resetCountEachMessage") {
		count = 0
	}
	count += float64(matches)
	rule.Triggered[types.TriggeredRunEveryXKeywords] = count

	trigger := count >= rule.Definitions.Number("runEveryXKeywords") && intervalGate(rule, now)
	if trigger {
		rule.Triggered[types.TriggeredRunInterval] = now
		rule.Triggered[types.TriggeredRunEveryXKeywords] = 0
	}
	return trigger, c.save(ctx, rule)
}

func (c *Conditions) numberOfViewersIsAtLeast(ctx context.Context, rule *types.Rule, _ types.Attributes) (bool, error) {
	if rule.EventName != KindNumberOfViewersIsAtLeastX {
		return false, nil
	}
	rule.EnsureState()
	now := c.nowMillis()
	trigger := float64(c.stream.Viewers()) >= rule.Definitions.Number("viewersAtLeast") && intervalGate(rule, now)
	if !trigger {
		return false, nil
	}
	rule.Triggered[types.TriggeredRunInterval] = now
	return true, c.save(ctx, rule)
}

// streamIsRunningXMinutes fires once per stream after the configured uptime.
func (c *Conditions) streamIsRunningXMinutes(ctx context.Context, rule *types.Rule, _ types.Attributes) (bool, error) {
	if rule.EventName != KindStreamIsRunningXMinutes {
		return false, nil
	}
	online, startedAt := c.stream.Online()
	if !online {
		return false, nil
	}
	rule.EnsureState()
	minutes := rule.Definitions.Number("runAfterXMinutes")
	elapsed := c.now().Sub(startedAt)
	trigger := rule.Triggered.Get(types.TriggeredRunAfterXMinutes) == 0 &&
		elapsed.Seconds() > minutes*60
	if !trigger {
		return false, nil
	}
	rule.Triggered[types.TriggeredRunAfterXMinutes] = minutes
	return true, c.save(ctx, rule)
}

// everyXMinutesOfStream stamps its anchor on first sight, then fires and
// re-stamps whenever the configured minutes have elapsed.
func (c *Conditions) everyXMinutesOfStream(ctx context.Context, rule *types.Rule, _ types.Attributes) (bool, error) {
	if rule.EventName != KindEveryXMinutesOfStream {
		return false, nil
	}
	rule.EnsureState()
	now := c.nowMillis()
	if rule.Triggered.Get(types.TriggeredRunEveryXMinutes) == 0 {
		rule.Triggered[types.TriggeredRunEveryXMinutes] = now
		if err := c.save(ctx, rule); err != nil {
			return false, err
		}
	}
	anchor := rule.Triggered.Get(types.TriggeredRunEveryXMinutes)
	trigger := now-anchor >= rule.Definitions.Number("runEveryXMinutes")*60*1000
	if !trigger {
		return false, nil
	}
	rule.Triggered[types.TriggeredRunEveryXMinutes] = now
	return true, c.save(ctx, rule)
}

func (c *Conditions) rewardRedeemed(_ context.Context, rule *types.Rule, attrs types.Attributes) (bool, error) {
	if rule.EventName != KindRewardRedeemed {
		return false, nil
	}
	v, ok := attrs["rewardId"]
	if !ok || v == nil {
		return false, nil
	}
	return types.ToString(v) == rule.Definitions.String("rewardId"), nil
}

func (c *Conditions) raid(_ context.Context, rule *types.Rule, attrs types.Attributes) (bool, error) {
	if rule.EventName != KindRaid {
		return false, nil
	}
	hostViewers, ok := attrs.Number("hostViewers")
	if !ok {
		return false, nil
	}
	return hostViewers >= rule.Definitions.Number("viewersAtLeast"), nil
}
