package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnotherFoxGuy/sogeBot/internal/bus"
	"github.com/AnotherFoxGuy/sogeBot/internal/operations"
	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

type harness struct {
	engine  *Engine
	rules   *memRules
	users   *memUsers
	lookup  *countingLookup
	stream  *fakeStream
	rec     *bus.Recorder
	exec    *Executor
	clock   *fakeClock
	metrics *Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		rules: newMemRules(),
		users: newMemUsers(
			types.Identity{UserID: "1", UserName: "alice"},
			types.Identity{UserID: "2", UserName: "bob", IsModerator: true},
		),
		lookup:  newCountingLookup(map[string]string{"carol": "3"}),
		stream:  &fakeStream{},
		rec:     &bus.Recorder{},
		clock:   newFakeClock(),
		metrics: NewMetrics(nil),
	}
	ops := operations.NewCatalog(operations.Deps{Publisher: h.rec, Users: h.users, Owner: "owner", Logger: discardLogger()})
	h.exec = NewExecutor(2, 64, WithExecutorMetrics(h.metrics), WithExecutorLogger(discardLogger()))
	require.NoError(t, h.exec.Start(context.Background()))
	t.Cleanup(func() { _ = h.exec.Stop(time.Second) })

	h.engine = New(Deps{
		Rules:      h.rules,
		Users:      h.users,
		Lookup:     h.lookup,
		Stream:     h.stream,
		Operations: ops,
		Executor:   h.exec,
		Identity:   BotIdentity{BotName: "sogebot", Broadcaster: "streamer", Owners: []string{"alice"}},
		Metrics:    h.metrics,
		Logger:     discardLogger(),
		Now:        h.clock.Now,
	})
	return h
}

func (h *harness) fire(t *testing.T, eventID string, attrs types.Attributes) {
	t.Helper()
	require.NoError(t, h.engine.Fire(context.Background(), eventID, attrs))
}

func (h *harness) dispatched(op string) float64 {
	return testutil.ToFloat64(h.metrics.dispatched.WithLabelValues(op))
}

// drain waits for queued operations and returns everything they published.
func (h *harness) drain(t *testing.T) []bus.Message {
	t.Helper()
	require.NoError(t, h.exec.Stop(5*time.Second))
	return h.rec.Messages()
}

func chatRule(event, filterExpr string, defs types.Definitions) *types.Rule {
	return &types.Rule{
		EventName:   event,
		IsEnabled:   true,
		Filter:      filterExpr,
		Definitions: defs,
		Operations: []types.OperationSpec{
			{Name: operations.SendChatMessage, Definitions: types.Definitions{"messageToSend": "hello $username"}},
		},
	}
}

func TestFire_NoMatchingRulesDispatchesNothing(t *testing.T) {
	h := newHarness(t)
	h.rules.add(chatRule("cheer", "", nil))
	disabled := chatRule("follow", "", nil)
	disabled.IsEnabled = false
	h.rules.add(disabled)

	h.fire(t, "follow", types.Attributes{"userName": "alice"})

	assert.Empty(t, h.drain(t))
}

func TestFire_EmptyFilterDispatches(t *testing.T) {
	h := newHarness(t)
	rule := h.rules.add(chatRule("follow", "   ", nil))

	attrs := types.Attributes{"userName": "alice"}
	h.fire(t, "follow", attrs)

	msgs := h.drain(t)
	require.Len(t, msgs, 1)
	msg := msgs[0].Event.(bus.ChatMessage)
	assert.Equal(t, "hello alice", msg.Message)
	assert.Equal(t, "1", msg.UserID)
	assert.Equal(t, string(rule.ID), msg.EventID, "operations see the rule id as eventId")
	assert.NotContains(t, attrs, "is", "caller attributes are never mutated")
}

func TestFire_FilterGatesOnCapabilities(t *testing.T) {
	h := newHarness(t)
	h.rules.add(chatRule("follow", "$is.moderator && !$is.owner", nil))

	h.fire(t, "follow", types.Attributes{"userName": "alice"})
	h.fire(t, "follow", types.Attributes{"userName": "bob"})

	msgs := h.drain(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello bob", msgs[0].Event.(bus.ChatMessage).Message)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.evaluations.WithLabelValues(OutcomeFiltered)))
}

func TestFire_BrokenFilterFailsClosed(t *testing.T) {
	h := newHarness(t)
	h.rules.add(chatRule("follow", "$nope.deeper ==", nil))

	h.fire(t, "follow", types.Attributes{"userName": "alice"})

	assert.Empty(t, h.drain(t))
}

func TestFire_CommandThresholdTriggersOnTenth(t *testing.T) {
	h := newHarness(t)
	rule := h.rules.add(chatRule(KindCommandSendXTimes, "", types.Definitions{
		"commandToWatch": "!hype", "runEveryXCommands": 10,
	}))

	for i := 0; i < 9; i++ {
		h.fire(t, KindCommandSendXTimes, types.Attributes{"userName": "alice", "message": "!hype"})
	}
	assert.Equal(t, float64(0), h.dispatched(operations.SendChatMessage))
	assert.Equal(t, float64(9), h.rules.triggered(rule.ID).Get(types.TriggeredRunEveryXCommands))

	h.fire(t, KindCommandSendXTimes, types.Attributes{"userName": "alice", "message": "!HYPE train"})
	assert.Equal(t, float64(1), h.dispatched(operations.SendChatMessage))

	state := h.rules.triggered(rule.ID)
	assert.Equal(t, float64(0), state.Get(types.TriggeredRunEveryXCommands))
	assert.Equal(t, float64(h.clock.Now().UnixMilli()), state.Get(types.TriggeredRunInterval))

	h.fire(t, KindCommandSendXTimes, types.Attributes{"userName": "alice", "message": "!hypetrain"})
	assert.Equal(t, float64(0), h.rules.triggered(rule.ID).Get(types.TriggeredRunEveryXCommands), "prefix without whitespace does not match")
}

func TestFire_KeywordResetCountEachMessage(t *testing.T) {
	h := newHarness(t)
	rule := h.rules.add(chatRule(KindKeywordSendXTimes, "", types.Definitions{
		"keywordToWatch": "pog", "runEveryXKeywords": 10, "resetCountEachMessage": true,
	}))

	h.fire(t, KindKeywordSendXTimes, types.Attributes{"userName": "alice", "message": "pog pog"})
	assert.Equal(t, float64(2), h.rules.triggered(rule.ID).Get(types.TriggeredRunEveryXKeywords))

	h.fire(t, KindKeywordSendXTimes, types.Attributes{"userName": "alice", "message": "POG then pOg and pog"})
	assert.Equal(t, float64(3), h.rules.triggered(rule.ID).Get(types.TriggeredRunEveryXKeywords))
	assert.Empty(t, h.drain(t))
}

func TestFire_KeywordAccumulates(t *testing.T) {
	h := newHarness(t)
	rule := h.rules.add(chatRule(KindKeywordSendXTimes, "", types.Definitions{
		"keywordToWatch": "a.b", "runEveryXKeywords": 4,
	}))

	h.fire(t, KindKeywordSendXTimes, types.Attributes{"userName": "alice", "message": "a.b axb a.b"})
	assert.Equal(t, float64(2), h.rules.triggered(rule.ID).Get(types.TriggeredRunEveryXKeywords), "keyword is matched literally")

	h.fire(t, KindKeywordSendXTimes, types.Attributes{"userName": "alice", "message": "A.B a.b"})
	assert.Equal(t, float64(1), h.dispatched(operations.SendChatMessage))
	assert.Equal(t, float64(0), h.rules.triggered(rule.ID).Get(types.TriggeredRunEveryXKeywords))
}

func TestFire_ViewersAtLeastTriggersOnceUntilReset(t *testing.T) {
	h := newHarness(t)
	h.rules.add(chatRule(KindNumberOfViewersIsAtLeastX, "", types.Definitions{"viewersAtLeast": 100, "runInterval": 0}))

	h.stream.setViewers(99)
	h.fire(t, KindNumberOfViewersIsAtLeastX, nil)
	assert.Equal(t, float64(0), h.dispatched(operations.SendChatMessage))

	h.stream.setViewers(100)
	h.fire(t, KindNumberOfViewersIsAtLeastX, nil)
	h.stream.setViewers(500)
	h.clock.Advance(time.Hour)
	h.fire(t, KindNumberOfViewersIsAtLeastX, nil)
	assert.Equal(t, float64(1), h.dispatched(operations.SendChatMessage))

	n, err := h.engine.Reset(context.Background(), KindNumberOfViewersIsAtLeastX)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	h.fire(t, KindNumberOfViewersIsAtLeastX, nil)
	assert.Equal(t, float64(2), h.dispatched(operations.SendChatMessage))
}

func TestFire_ViewersAtLeastWithInterval(t *testing.T) {
	h := newHarness(t)
	h.rules.add(chatRule(KindNumberOfViewersIsAtLeastX, "", types.Definitions{"viewersAtLeast": 10, "runInterval": 60}))
	h.stream.setViewers(20)

	h.fire(t, KindNumberOfViewersIsAtLeastX, nil)
	h.clock.Advance(59 * time.Second)
	h.fire(t, KindNumberOfViewersIsAtLeastX, nil)
	assert.Equal(t, float64(1), h.dispatched(operations.SendChatMessage))

	h.clock.Advance(time.Second)
	h.fire(t, KindNumberOfViewersIsAtLeastX, nil)
	assert.Equal(t, float64(2), h.dispatched(operations.SendChatMessage))
}

func TestFire_RaidThreshold(t *testing.T) {
	h := newHarness(t)
	h.rules.add(chatRule(KindRaid, "", types.Definitions{"viewersAtLeast": 100}))

	h.fire(t, KindRaid, types.Attributes{"userName": "alice", "hostViewers": 50})
	assert.Equal(t, float64(0), h.dispatched(operations.SendChatMessage))

	h.fire(t, KindRaid, types.Attributes{"userName": "alice", "hostViewers": 150})
	assert.Equal(t, float64(1), h.dispatched(operations.SendChatMessage))
}

func TestFire_ResetAttributeShortCircuits(t *testing.T) {
	h := newHarness(t)
	rule := h.rules.add(chatRule(KindCommandSendXTimes, "", types.Definitions{"commandToWatch": "!a", "runEveryXCommands": 5}))
	require.NoError(t, h.rules.SaveTriggered(context.Background(), rule.ID, types.TriggeredState{types.TriggeredRunEveryXCommands: 4}))

	h.fire(t, KindCommandSendXTimes, types.Attributes{"reset": true, "message": "!a"})

	assert.Empty(t, h.rules.triggered(rule.ID))
	assert.Empty(t, h.drain(t))
}

func TestFire_ByRuleID(t *testing.T) {
	h := newHarness(t)
	target := h.rules.add(chatRule("follow", "", nil))
	h.rules.add(chatRule("follow", "", nil))

	h.fire(t, string(target.ID), types.Attributes{"userName": "alice"})

	msgs := h.drain(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, string(target.ID), msgs[0].Event.(bus.ChatMessage).EventID)
}

func TestFire_RunCommandReentrancyGuard(t *testing.T) {
	h := newHarness(t)
	h.rules.add(&types.Rule{
		EventName: "follow",
		IsEnabled: true,
		Filter:    "false",
		Operations: []types.OperationSpec{
			{Name: operations.RunCommand, Definitions: types.Definitions{"commandToRun": "!hype again"}},
			{Name: operations.RunCommand, Definitions: types.Definitions{"commandToRun": "!other"}},
			{Name: "does-not-exist"},
			{Name: operations.SendChatMessage, Definitions: types.Definitions{"messageToSend": "forced"}},
		},
	})

	h.fire(t, "follow", types.Attributes{"userName": "alice", "isTriggeredByCommand": "!hype"})

	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.reentrant))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.evaluations.WithLabelValues(OutcomeForced)))
	msgs := h.drain(t)
	require.Len(t, msgs, 2)

	commands := h.rec.Topic(bus.TopicChatCommand)
	require.Len(t, commands, 1)
	assert.Equal(t, "!other", commands[0].Event.(bus.ChatCommand).Command)
}

func TestFire_UnknownUserResolvedOnce(t *testing.T) {
	h := newHarness(t)
	h.rules.add(chatRule("follow", "", nil))

	h.fire(t, "follow", types.Attributes{"userName": "carol"})
	h.fire(t, "follow", types.Attributes{"userName": "carol"})

	assert.Equal(t, 1, h.lookup.count("carol"), "second firing resolves locally")
	msgs := h.drain(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "3", msgs[0].Event.(bus.ChatMessage).UserID)
}

func TestFire_FailedLookupExcludesName(t *testing.T) {
	h := newHarness(t)
	h.rules.add(chatRule("follow", "", nil))

	h.fire(t, "follow", types.Attributes{"userName": "ghost"})
	h.fire(t, "follow", types.Attributes{"userName": "ghost"})
	assert.Equal(t, 1, h.lookup.count("ghost"))
	assert.True(t, h.engine.Exclusions().Contains("GHOST"))

	h.engine.OnStreamEnd(context.Background())
	h.fire(t, "follow", types.Attributes{"userName": "ghost"})
	assert.Equal(t, 2, h.lookup.count("ghost"))

	assert.Empty(t, h.drain(t))
}

func TestFire_RecipientUsesExclusionCache(t *testing.T) {
	h := newHarness(t)
	h.rules.add(chatRule("subgift", "", nil))

	attrs := types.Attributes{"userName": "alice", "recipient": "nobody"}
	h.fire(t, "subgift", attrs)
	h.fire(t, "subgift", attrs)

	assert.Equal(t, 1, h.lookup.count("nobody"))
	assert.Empty(t, h.drain(t))
}

func TestFire_RecipientCapabilities(t *testing.T) {
	h := newHarness(t)
	h.rules.add(chatRule("subgift", "$is.owner", nil))

	h.fire(t, "subgift", types.Attributes{"userName": "alice", "recipient": "bob"})

	assert.Equal(t, float64(1), h.dispatched(operations.SendChatMessage))
}

func TestFire_AnonymousSkipsResolution(t *testing.T) {
	h := newHarness(t)
	h.rules.add(chatRule("cheer", "", nil))

	h.fire(t, "cheer", types.Attributes{"userName": "ghost", "isAnonymous": true, "userId": "0"})

	assert.Equal(t, 0, h.lookup.count("ghost"))
	assert.Equal(t, float64(1), h.dispatched(operations.SendChatMessage))
}

func TestTestFire(t *testing.T) {
	h := newHarness(t)
	rule := h.rules.add(&types.Rule{
		EventName: "tip",
		Filter:    "false",
		Operations: []types.OperationSpec{
			{Name: operations.SendChatMessage, Definitions: types.Definitions{"messageToSend": "$username tipped $amount $currency"}},
			{Name: "unknown-op"},
		},
	})

	require.NoError(t, h.engine.TestFire(context.Background(), TestFireRequest{
		RuleID:    rule.ID,
		Variables: []string{"username", "amount"},
		Values:    []any{"dave", 5},
	}))
	require.NoError(t, h.engine.TestFire(context.Background(), TestFireRequest{RuleID: types.NewRuleID()}))

	msgs := h.drain(t)
	require.Len(t, msgs, 1)
	msg := msgs[0].Event.(bus.ChatMessage)
	assert.Regexp(t, `^dave tipped 5\.00 (CZK|USD|EUR)$`, msg.Message)
	assert.Equal(t, "0", msg.UserID)
}

func TestEngine_Catalogs(t *testing.T) {
	h := newHarness(t)

	kinds := h.engine.EventKinds()
	ids := make([]string, len(kinds))
	for i, k := range kinds {
		ids[i] = k.ID
	}
	assert.Contains(t, ids, KindCommandSendXTimes)
	assert.Contains(t, ids, "hypetrain-level-reached")
	assert.Len(t, h.engine.Operations(), 12)
}
