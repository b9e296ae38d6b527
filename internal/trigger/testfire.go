package trigger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// TestFireRequest asks for a synthetic firing of one rule. Values[i] is the
// caller value for Variables[i]; variables listed in Randomized get a random
// value of their class instead.
type TestFireRequest struct {
	RuleID     types.RuleID `json:"id"`
	Variables  []string     `json:"variables"`
	Randomized []string     `json:"randomized"`
	Values     []any        `json:"values"`
}

var (
	usernameVariables = []string{"username", "recipient", "target", "topContributionsBitsUsername", "topContributionsSubsUsername", "lastContributionUsername"}
	textVariables     = []string{"userInput", "message", "reason"}
	numericVariables  = []string{
		"hostViewers", "lastContributionTotal", "topContributionsSubsTotal", "topContributionsBitsTotal",
		"duration", "viewers", "bits", "subCumulativeMonths", "count", "subStreak", "amount", "amountInBotCurrency",
	}
	gameVariables          = []string{"game", "oldGame"}
	contributorIDVariables = []string{"topContributionsSubsUserId", "topContributionsBitsUserId", "lastContributionUserId"}
)

const usernameAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789_"

func sample[T any](choices ...T) T {
	return choices[rand.IntN(len(choices))]
}

// randomBetween returns an integer in [lo, hi].
func randomBetween(lo, hi int64) int64 {
	return lo + rand.Int64N(hi-lo+1)
}

func randomUsername() string {
	id, err := nanoid.Generate(usernameAlphabet, 12)
	if err != nil {
		return "viewer" + strconv.FormatInt(randomBetween(1000, 9999), 10)
	}
	return id
}

func monthsName(n any) string {
	if v, ok := types.ToNumber(n); ok && v == 1 {
		return "month"
	}
	return "months"
}

// BuildTestAttributes creates the attributes of a synthetic firing.
// Dotted variables ("is.moderator") are nested the way identity resolution
// attaches them.
func BuildTestAttributes(req TestFireRequest, mainCurrency string) types.Attributes {
	attrs := types.Attributes{
		types.AttrTest:   true,
		types.AttrUserID: "0",
		"currency":       sample("CZK", "USD", "EUR"),
	}

	for i, name := range req.Variables {
		randomized := slices.Contains(req.Randomized, name)
		var given any
		if i < len(req.Values) {
			given = req.Values[i]
		}

		var value any
		switch {
		case slices.Contains(usernameVariables, name):
			value = pick(randomized, given, randomUsername)
		case slices.Contains(textVariables, name):
			value = pick(randomized, given, func() any { return sample("", "Lorem Ipsum Dolor Sit Amet") })
		case name == "source":
			value = pick(randomized, given, func() any { return sample("Twitch", "Discord") })
		case name == "tier":
			if randomized {
				value = float64(randomBetween(0, 3))
			} else if s, ok := given.(string); ok && s == "Prime" {
				value = float64(0)
			} else {
				n, _ := types.ToNumber(given)
				value = n
			}
		case slices.Contains(numericVariables, name):
			value = pick(randomized, given, func() any { return float64(randomBetween(10, 10_000_000_000)) })
		case slices.Contains(gameVariables, name):
			value = pick(randomized, given, func() any {
				return sample("Dota 2", "Escape From Tarkov", "Star Citizen", "Elite: Dangerous")
			})
		case name == "command":
			value = pick(randomized, given, func() any { return sample("!me", "!top", "!points") })
		case name == "subStreakShareEnabled" || strings.HasPrefix(name, "is.") || strings.HasPrefix(name, "recipientis."):
			value = pick(randomized, given, func() any { return rand.IntN(2) == 0 })
		case name == "level":
			value = pick(randomized, given, func() any { return float64(randomBetween(1, 5)) })
		case slices.Contains(contributorIDVariables, name):
			value = pick(randomized, given, func() any { return strconv.FormatInt(randomBetween(90000, 900000), 10) })
		case name == "lastContributionType":
			value = pick(randomized, given, func() any { return sample("BITS", "SUBS") })
		default:
			continue
		}
		setPath(attrs, name, value)
	}

	if v, ok := attrs["subStreak"]; ok {
		attrs["subStreakName"] = monthsName(v)
	}
	if v, ok := attrs["subCumulativeMonths"]; ok {
		attrs["subCumulativeMonthsName"] = monthsName(v)
	}
	if _, ok := attrs["amountInBotCurrency"]; ok {
		attrs["currencyInBot"] = mainCurrency
	}
	if v, ok := attrs["amount"]; ok {
		n, _ := types.ToNumber(v)
		attrs["amount"] = strconv.FormatFloat(n, 'f', 2, 64)
	}
	return attrs
}

func pick[T any](randomized bool, given any, gen func() T) any {
	if randomized {
		return gen()
	}
	return given
}

func setPath(attrs types.Attributes, path string, value any) {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		attrs[path] = value
		return
	}
	m, ok := attrs[head].(map[string]any)
	if !ok {
		m = map[string]any{}
		attrs[head] = m
	}
	m[rest] = value
}

// TestFire dispatches every known operation of a rule with synthetic
// attributes. Filters and conditions are not evaluated. A missing rule
// dispatches nothing.
func (e *Engine) TestFire(ctx context.Context, req TestFireRequest) error {
	rule, err := e.rules.Get(ctx, req.RuleID)
	if errors.Is(err, types.ErrRuleNotFound) {
		e.logger.Debug("test fire of missing rule", "rule_id", req.RuleID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("test fire %s: %w", req.RuleID, err)
	}

	attrs := BuildTestAttributes(req, e.stream.MainCurrency())
	e.logger.Info("test firing rule", "rule_id", rule.ID, "event", rule.EventName)
	for _, spec := range rule.Operations {
		desc, ok := e.ops.Lookup(spec.Name)
		if !ok {
			continue
		}
		e.submit(Task{
			RuleID:      rule.ID,
			Operation:   spec.Name,
			Definitions: spec.Definitions.WithDefaults(desc.Definitions),
			Attributes:  attrs.Clone(),
			Dispatch:    desc.Dispatch,
		})
	}
	return nil
}
