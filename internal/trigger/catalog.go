// internal/trigger/catalog.go
package trigger

/*
 * Event kind catalog.
 *
 * Declares every platform event a rule can bind to: the attribute variables
 * the event supplies (used by test firing and rule editors), default
 * definitions, and an optional condition checker for kinds that need more
 * than "the event occurred".
 *
 * The catalog is built once at startup and never mutated.
 */

import (
	"context"

	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// Event kind names with condition checkers.
const (
	KindNumberOfViewersIsAtLeastX = "number-of-viewers-is-at-least-x"
	KindStreamIsRunningXMinutes   = "stream-is-running-x-minutes"
	KindRewardRedeemed            = "reward-redeemed"
	KindCommandSendXTimes         = "command-send-x-times"
	KindKeywordSendXTimes         = "keyword-send-x-times"
	KindRaid                      = "raid"
	KindEveryXMinutesOfStream     = "every-x-minutes-of-stream"
)

// Checker is a built-in condition. It may mutate and persist rule.Triggered.
type Checker func(ctx context.Context, rule *types.Rule, attrs types.Attributes) (bool, error)

// EventKind describes one supported platform event.
type EventKind struct {
	ID          string            `json:"id"`
	Variables   []string          `json:"variables,omitempty"`
	Definitions types.Definitions `json:"definitions,omitempty"`
	Check       Checker           `json:"-"`
}

// Catalog is the immutable event kind registry.
type Catalog struct {
	kinds []EventKind
	byID  map[string]int
}

var userVariables = []string{"username", "is.moderator", "is.subscriber", "is.vip", "is.broadcaster", "is.bot", "is.owner"}

var hypeTrainVariables = []string{
	"level", "total", "goal",
	"topContributionsBitsUserId", "topContributionsBitsUsername", "topContributionsBitsTotal",
	"topContributionsSubsUserId", "topContributionsSubsUsername", "topContributionsSubsTotal",
	"lastContributionType", "lastContributionUserId", "lastContributionUsername", "lastContributionTotal",
}

func withUser(extra ...string) []string {
	return append(append([]string(nil), userVariables...), extra...)
}

// NewCatalog builds the event catalog with checkers bound to c.
func NewCatalog(c *Conditions) *Catalog {
	kinds := []EventKind{
		{ID: "commercial", Variables: []string{
			"duration", "startedAt", "isAutomatic",
			"broadcasterDisplayName", "broadcasterId", "broadcasterName",
			"requesterDisplayName", "requesterId", "requesterName",
		}},
		{ID: "shoutout-created", Variables: []string{
			"broadcasterDisplayName", "broadcasterId", "broadcasterName",
			"shoutedOutBroadcasterDisplayName", "shoutedOutBroadcasterId", "shoutedOutBroadcasterName",
			"viewerCount",
		}},
		{ID: "shoutout-received", Variables: []string{
			"broadcasterDisplayName", "broadcasterId", "broadcasterName", "viewerCount",
			"shoutingOutBroadcasterDisplayName", "shoutingOutBroadcasterId", "shoutingOutBroadcasterName",
		}},
		{ID: "prediction-started", Variables: []string{"titleOfPrediction", "outcomes", "locksAt"}},
		{ID: "prediction-locked", Variables: []string{"titleOfPrediction", "outcomes", "locksAt"}},
		{ID: "prediction-ended", Variables: []string{
			"titleOfPrediction", "outcomes", "locksAt",
			"winningOutcomeTitle", "winningOutcomeTotalPoints", "winningOutcomePercentage",
		}},
		{ID: "poll-started", Variables: []string{
			"titleOfPoll", "choices", "bitVotingEnabled", "bitAmountPerVote",
			"channelPointsVotingEnabled", "channelPointsAmountPerVote",
		}},
		{ID: "poll-ended", Variables: []string{"titleOfPoll", "choices", "votes", "winnerVotes", "winnerPercentage", "winnerChoice"}},
		{ID: "hypetrain-started"},
		{ID: "hypetrain-ended", Variables: hypeTrainVariables},
		{ID: "hypetrain-level-reached", Variables: hypeTrainVariables},
		{ID: "user-joined-channel", Variables: withUser()},
		{ID: "user-parted-channel", Variables: withUser()},
		{
			ID:          KindNumberOfViewersIsAtLeastX,
			Variables:   []string{"count"},
			Definitions: types.Definitions{"viewersAtLeast": float64(100), "runInterval": float64(0)},
			Check:       c.numberOfViewersIsAtLeast,
		},
		{
			ID:          KindStreamIsRunningXMinutes,
			Definitions: types.Definitions{"runAfterXMinutes": float64(100)},
			Check:       c.streamIsRunningXMinutes,
		},
		{ID: "mod", Variables: withUser()},
		{ID: "timeout", Variables: withUser("duration")},
		{
			ID:          KindRewardRedeemed,
			Variables:   withUser("userInput"),
			Definitions: types.Definitions{"rewardId": ""},
			Check:       c.rewardRedeemed,
		},
		{
			ID:        KindCommandSendXTimes,
			Variables: withUser("command", "count", "source"),
			Definitions: types.Definitions{
				"fadeOutXCommands": float64(0), "fadeOutInterval": float64(0),
				"runEveryXCommands": float64(10), "commandToWatch": "", "runInterval": float64(0),
			},
			Check: c.commandSendXTimes,
		},
		{ID: "chatter-first-message", Variables: withUser("source")},
		{
			ID:        KindKeywordSendXTimes,
			Variables: withUser("command", "count", "source"),
			Definitions: types.Definitions{
				"fadeOutXKeywords": float64(0), "fadeOutInterval": float64(0),
				"runEveryXKeywords": float64(10), "keywordToWatch": "", "runInterval": float64(0),
				"resetCountEachMessage": false,
			},
			Check: c.keywordSendXTimes,
		},
		{ID: "action", Variables: withUser()},
		{ID: "ban", Variables: withUser("reason")},
		{ID: "cheer", Variables: withUser("bits", "message")},
		{ID: "clearchat"},
		{ID: "game-changed", Variables: []string{"oldGame", "game"}},
		{ID: "stream-started"},
		{ID: "stream-stopped"},
		{ID: "follow", Variables: withUser()},
		{ID: "subscription", Variables: withUser("method", "subCumulativeMonths", "tier")},
		{ID: "subgift", Variables: withUser(
			"recipient", "recipientis.moderator", "recipientis.subscriber", "recipientis.vip",
			"recipientis.broadcaster", "recipientis.bot", "recipientis.owner", "tier",
		)},
		{ID: "subcommunitygift", Variables: []string{"username", "count", "tier"}},
		{ID: "resub", Variables: withUser(
			"subStreakShareEnabled", "subStreak", "subStreakName",
			"subCumulativeMonths", "subCumulativeMonthsName", "tier", "message",
		)},
		{ID: "tip", Variables: []string{"username", "amount", "currency", "message", "amountInBotCurrency", "currencyInBot"}},
		{
			ID:          KindRaid,
			Variables:   withUser("hostViewers"),
			Definitions: types.Definitions{"viewersAtLeast": float64(1)},
			Check:       c.raid,
		},
		{
			ID:          KindEveryXMinutesOfStream,
			Definitions: types.Definitions{"runEveryXMinutes": float64(100)},
			Check:       c.everyXMinutesOfStream,
		},
	}

	cat := &Catalog{kinds: kinds, byID: make(map[string]int, len(kinds))}
	for i, k := range kinds {
		cat.byID[k.ID] = i
	}
	return cat
}

// Get returns the event kind registered under id.
func (c *Catalog) Get(id string) (EventKind, bool) {
	i, ok := c.byID[id]
	if !ok {
		return EventKind{}, false
	}
	return c.kinds[i], true
}

// List returns event kinds in declaration order. Slices and maps are copies.
func (c *Catalog) List() []EventKind {
	out := make([]EventKind, len(c.kinds))
	for i, k := range c.kinds {
		out[i] = EventKind{
			ID:          k.ID,
			Variables:   append([]string(nil), k.Variables...),
			Definitions: k.Definitions.Clone(),
		}
	}
	return out
}
