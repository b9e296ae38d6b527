package operations

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/AnotherFoxGuy/sogeBot/internal/bus"
	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// ScopeCommercial is the broadcaster scope required to run ads.
const ScopeCommercial = "channel:edit:commercial"

// CommercialDurations are the ad lengths the platform accepts, in seconds.
var CommercialDurations = []int{30, 60, 90, 120, 150, 180}

func (h *handlers) emoteExplosion(ctx context.Context, defs types.Definitions, _ types.Attributes) error {
	return h.Publisher.Publish(ctx, bus.TopicOverlayEmotes, bus.EmoteAnimation{
		Animation: "explode",
		Emotes:    strings.Fields(defs.String("emotesToExplode")),
	})
}

func (h *handlers) emoteFirework(ctx context.Context, defs types.Definitions, _ types.Attributes) error {
	return h.Publisher.Publish(ctx, bus.TopicOverlayEmotes, bus.EmoteAnimation{
		Animation: "firework",
		Emotes:    strings.Fields(defs.String("emotesToFirework")),
	})
}

func (h *handlers) startCommercial(ctx context.Context, defs types.Definitions, _ types.Attributes) error {
	duration := int(defs.Number("durationOfCommercial"))
	if duration == 0 {
		duration = 30
	}
	if !slices.Contains(CommercialDurations, duration) {
		return fmt.Errorf("%w: %d", types.ErrInvalidCommercialDuration, duration)
	}
	if h.Stream == nil || !h.Stream.HasScope(ScopeCommercial) {
		return fmt.Errorf("%w: %s", types.ErrMissingScope, ScopeCommercial)
	}
	if h.Platform == nil {
		return fmt.Errorf("%s: no platform client", StartCommercial)
	}
	res, err := h.Platform.StartCommercial(ctx, h.Stream.BroadcasterID(), duration)
	if err != nil {
		return fmt.Errorf("%s: %w", StartCommercial, err)
	}
	h.Logger.Info("commercial started", "length", res.Length, "retry_after", res.RetryAfter)
	return nil
}

func (h *handlers) createAClip(ctx context.Context, defs types.Definitions, _ types.Attributes) error {
	if h.Platform == nil || h.Stream == nil {
		return fmt.Errorf("%s: no platform client", CreateAClip)
	}
	clip, err := h.Platform.CreateClip(ctx, h.Stream.BroadcasterID(), defs.Bool("hasDelay"))
	if err != nil {
		h.Logger.Warn("clip was not created", "error", err)
		return fmt.Errorf("%s: %w", CreateAClip, err)
	}
	h.Logger.Info("clip created", "clip_id", clip.ID)

	announce := defs.Bool("announce")
	if err := h.Publisher.Publish(ctx, bus.TopicClipCreated, bus.ClipCreated{
		ClipID:   clip.ID,
		URL:      clip.URL(),
		Announce: announce,
		Replay:   defs.Bool("replay"),
	}); err != nil {
		return err
	}
	if announce {
		return h.Publisher.Publish(ctx, bus.TopicChatMessage, bus.ChatMessage{
			Message:  clip.URL(),
			UserName: h.Owner,
		})
	}
	return nil
}
