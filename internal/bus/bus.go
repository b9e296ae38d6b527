// Package bus carries side effects of operations (chat messages, overlay
// animations, channel changes) to the subsystems that perform them, and
// carries fired platform events into the engine.
package bus

import (
	"context"
)

// Topic constants
const (
	TopicChatMessage         = "sogebot.chat.message"
	TopicChatWhisper         = "sogebot.chat.whisper"
	TopicChatCommand         = "sogebot.chat.command"
	TopicChatJoin            = "sogebot.chat.join"
	TopicChatPart            = "sogebot.chat.part"
	TopicOverlayEmotes       = "sogebot.overlay.emotes"
	TopicChannelTitleRefresh = "sogebot.channel.title.refresh"
	TopicClipCreated         = "sogebot.clips.created"

	// TopicEventFire is consumed by the engine; producers publish FireRequest.
	TopicEventFire = "sogebot.events.fire"
	// TopicStreamState carries full stream status snapshots from the platform integration.
	TopicStreamState = "sogebot.stream.state"
)

// Payload types

type ChatMessage struct {
	Message  string `json:"message"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Whisper  bool   `json:"whisper,omitempty"`
	EventID  string `json:"eventId,omitempty"`
}

type ChatCommand struct {
	Command  string `json:"command"`
	Quiet    bool   `json:"quiet"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	// TriggeredBy is the command that caused this one, for reentrancy checks downstream.
	TriggeredBy string `json:"triggeredBy,omitempty"`
	Timeout     int    `json:"timeout,omitempty"`
	TimeoutType string `json:"timeoutType,omitempty"`
}

type ChannelAction struct {
	Action string `json:"action"`
	Target string `json:"target"`
}

type EmoteAnimation struct {
	Animation string   `json:"animation"`
	Emotes    []string `json:"emotes"`
}

type TitleRefresh struct {
	Variable string `json:"variable"`
}

type ClipCreated struct {
	ClipID   string `json:"clipId"`
	URL      string `json:"url"`
	Announce bool   `json:"announce"`
	Replay   bool   `json:"replay"`
}

// FireRequest asks the engine to fire an event.
type FireRequest struct {
	EventID    string         `json:"eventId"`
	Attributes map[string]any `json:"attributes"`
}

// Publisher is the interface for emitting side effects.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Subscriber receives raw payloads from the bus.
type Subscriber interface {
	// Subscribe delivers raw payloads on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}
