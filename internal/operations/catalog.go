// internal/operations/catalog.go
package operations

/*
 * Operation catalog.
 *
 * Every operation a rule can invoke is declared here with its default
 * parameters and a dispatch function. Dispatch receives the rule's
 * definitions merged over the declared defaults (unknown keys dropped) and a
 * private copy of the firing's attributes.
 *
 * Side effects leave the process through collaborators: the bus publisher
 * for chat and overlay work, the platform client for commercials and clips,
 * and the stores for custom variables and user presence.
 */

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AnotherFoxGuy/sogeBot/internal/bus"
	"github.com/AnotherFoxGuy/sogeBot/internal/platform"
	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// Operation names.
const (
	SendChatMessage         = "send-chat-message"
	SendWhisper             = "send-whisper"
	RunCommand              = "run-command"
	EmoteExplosion          = "emote-explosion"
	EmoteFirework           = "emote-firework"
	StartCommercial         = "start-commercial"
	BotWillJoinChannel      = "bot-will-join-channel"
	BotWillLeaveChannel     = "bot-will-leave-channel"
	CreateAClip             = "create-a-clip"
	IncrementCustomVariable = "increment-custom-variable"
	SetCustomVariable       = "set-custom-variable"
	DecrementCustomVariable = "decrement-custom-variable"
)

// DispatchFunc performs one operation.
type DispatchFunc func(ctx context.Context, defs types.Definitions, attrs types.Attributes) error

// Descriptor declares an operation.
type Descriptor struct {
	ID          string            `json:"id"`
	Definitions types.Definitions `json:"definitions"`
	Dispatch    DispatchFunc      `json:"-"`
}

// Platform is the subset of the platform client used by operations.
type Platform interface {
	LookupIDByName(ctx context.Context, name string) (string, error)
	StartCommercial(ctx context.Context, broadcasterID string, seconds int) (*platform.Commercial, error)
	CreateClip(ctx context.Context, broadcasterID string, hasDelay bool) (*platform.Clip, error)
}

// Stream is the read-only stream state used by operations.
type Stream interface {
	HasScope(scope string) bool
	BroadcasterID() string
	Title() string
}

// Variables reads and writes custom variables.
type Variables interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string) error
}

// Users is the user store surface used by operations.
type Users interface {
	FindByID(ctx context.Context, userID string) (*types.Identity, error)
	FindByName(ctx context.Context, userName string) (*types.Identity, error)
	Upsert(userID, userName string)
	Flush(ctx context.Context) error
	SetAllOffline(ctx context.Context) error
}

// Deps are the collaborators operations act through.
type Deps struct {
	Publisher bus.Publisher
	Platform  Platform
	Stream    Stream
	Variables Variables
	Users     Users
	// Owner replies on behalf of firings without a user.
	Owner  string
	Logger *slog.Logger
}

// Catalog is the immutable operation registry.
type Catalog struct {
	ops  []Descriptor
	byID map[string]int
}

// NewCatalog builds the catalog bound to deps.
func NewCatalog(deps Deps) *Catalog {
	if deps.Publisher == nil {
		deps.Publisher = &bus.NoopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &handlers{Deps: deps}

	ops := []Descriptor{
		{ID: SendChatMessage, Definitions: types.Definitions{"messageToSend": ""}, Dispatch: h.sendChatMessage},
		{ID: SendWhisper, Definitions: types.Definitions{"messageToSend": ""}, Dispatch: h.sendWhisper},
		{ID: RunCommand, Definitions: types.Definitions{
			"commandToRun": "", "isCommandQuiet": false, "timeout": float64(0),
			"timeoutType": []any{"normal", "add", "reset"},
		}, Dispatch: h.runCommand},
		{ID: EmoteExplosion, Definitions: types.Definitions{"emotesToExplode": ""}, Dispatch: h.emoteExplosion},
		{ID: EmoteFirework, Definitions: types.Definitions{"emotesToFirework": ""}, Dispatch: h.emoteFirework},
		{ID: StartCommercial, Definitions: types.Definitions{
			"durationOfCommercial": []any{float64(30), float64(60), float64(90), float64(120), float64(150), float64(180)},
		}, Dispatch: h.startCommercial},
		{ID: BotWillJoinChannel, Definitions: types.Definitions{}, Dispatch: h.botWillJoinChannel},
		{ID: BotWillLeaveChannel, Definitions: types.Definitions{}, Dispatch: h.botWillLeaveChannel},
		{ID: CreateAClip, Definitions: types.Definitions{"announce": false, "hasDelay": true, "replay": false}, Dispatch: h.createAClip},
		{ID: IncrementCustomVariable, Definitions: types.Definitions{"customVariable": "", "numberToIncrement": float64(1)}, Dispatch: h.incrementCustomVariable},
		{ID: SetCustomVariable, Definitions: types.Definitions{"customVariable": "", "value": ""}, Dispatch: h.setCustomVariable},
		{ID: DecrementCustomVariable, Definitions: types.Definitions{"customVariable": "", "numberToDecrement": float64(1)}, Dispatch: h.decrementCustomVariable},
	}

	c := &Catalog{ops: ops, byID: make(map[string]int, len(ops))}
	for i, op := range ops {
		c.byID[op.ID] = i
	}
	return c
}

// Lookup returns the descriptor registered under name.
func (c *Catalog) Lookup(name string) (Descriptor, bool) {
	i, ok := c.byID[name]
	if !ok {
		return Descriptor{}, false
	}
	return c.ops[i], true
}

// List returns descriptors in declaration order. Definitions are copies.
func (c *Catalog) List() []Descriptor {
	out := make([]Descriptor, len(c.ops))
	for i, op := range c.ops {
		out[i] = Descriptor{ID: op.ID, Definitions: op.Definitions.Clone()}
	}
	return out
}

// Dispatch runs the named operation with defs merged over its defaults.
func (c *Catalog) Dispatch(ctx context.Context, name string, defs types.Definitions, attrs types.Attributes) error {
	op, ok := c.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown operation %q", name)
	}
	return op.Dispatch(ctx, defs.WithDefaults(op.Definitions), attrs.Clone())
}

type handlers struct {
	Deps
}
