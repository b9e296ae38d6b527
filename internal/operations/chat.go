package operations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AnotherFoxGuy/sogeBot/internal/bus"
	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

func (h *handlers) sendChatMessage(ctx context.Context, defs types.Definitions, attrs types.Attributes) error {
	return h.sendMessage(ctx, defs, attrs, false)
}

func (h *handlers) sendWhisper(ctx context.Context, defs types.Definitions, attrs types.Attributes) error {
	return h.sendMessage(ctx, defs, attrs, true)
}

// sendMessage replies as the firing user, or the owner when the firing has
// none. Non-test firings need a known user id; unknown names are looked up
// on the platform and queued into the user store.
func (h *handlers) sendMessage(ctx context.Context, defs types.Definitions, attrs types.Attributes, whisper bool) error {
	userName := attrs.String(types.AttrUserName)
	if userName == "" {
		userName = h.Owner
	}
	userID := attrs.String(types.AttrUserID)

	if !attrs.Bool(types.AttrTest) && userID == "" {
		id, err := h.resolveUserID(ctx, userName)
		if err != nil {
			return fmt.Errorf("%s: %w", SendChatMessage, err)
		}
		userID = id
	}

	topic := bus.TopicChatMessage
	if whisper {
		topic = bus.TopicChatWhisper
	}
	return h.Publisher.Publish(ctx, topic, bus.ChatMessage{
		Message:  attributesReplace(attrs, defs.String("messageToSend")),
		UserID:   userID,
		UserName: userName,
		Whisper:  whisper,
		EventID:  attrs.String(types.AttrEventID),
	})
}

func (h *handlers) resolveUserID(ctx context.Context, userName string) (string, error) {
	if h.Users != nil {
		if err := h.Users.Flush(ctx); err != nil {
			return "", err
		}
		u, err := h.Users.FindByName(ctx, userName)
		if err == nil {
			return u.UserID, nil
		}
		if !errors.Is(err, types.ErrUserNotFound) {
			return "", err
		}
	}
	if h.Platform == nil {
		return "", fmt.Errorf("%w: %s", types.ErrUserNotFound, userName)
	}
	id, err := h.Platform.LookupIDByName(ctx, userName)
	if err != nil {
		return "", err
	}
	if h.Users != nil {
		h.Users.Upsert(id, userName)
	}
	return id, nil
}

func (h *handlers) runCommand(ctx context.Context, defs types.Definitions, attrs types.Attributes) error {
	command := strings.TrimSpace(attributesReplace(attrs, defs.String("commandToRun")))
	if command == "" {
		return nil
	}
	userName := attrs.String(types.AttrUserName)
	if userName == "" {
		userName = h.Owner
	}
	return h.Publisher.Publish(ctx, bus.TopicChatCommand, bus.ChatCommand{
		Command:     command,
		Quiet:       defs.Bool("isCommandQuiet"),
		UserID:      attrs.String(types.AttrUserID),
		UserName:    userName,
		TriggeredBy: attrs.String(types.AttrIsTriggeredByCommand),
		Timeout:     int(defs.Number("timeout")),
		TimeoutType: defs.String("timeoutType"),
	})
}

func (h *handlers) botWillJoinChannel(ctx context.Context, _ types.Definitions, _ types.Attributes) error {
	return h.Publisher.Publish(ctx, bus.TopicChatJoin, bus.ChannelAction{Action: "join", Target: "bot"})
}

// botWillLeaveChannel parts the bot and marks every user offline.
func (h *handlers) botWillLeaveChannel(ctx context.Context, _ types.Definitions, _ types.Attributes) error {
	if err := h.Publisher.Publish(ctx, bus.TopicChatPart, bus.ChannelAction{Action: "part", Target: "bot"}); err != nil {
		return err
	}
	if h.Users == nil {
		return nil
	}
	return h.Users.SetAllOffline(ctx)
}
