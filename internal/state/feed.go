package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/AnotherFoxGuy/sogeBot/internal/bus"
)

// Apply replaces the stream state with status and performs the online or
// offline transition it implies. An empty main currency keeps the current one.
func (s *Stream) Apply(status Snapshot) {
	s.Update(func(snap *Snapshot) {
		currency := snap.MainCurrency
		*snap = status
		if snap.MainCurrency == "" {
			snap.MainCurrency = currency
		}
	})

	online, _ := s.Online()
	switch {
	case status.IsOnline && !online:
		started := status.StartedAt
		if started.IsZero() {
			started = time.Now()
		}
		s.SetOnline(started)
	case !status.IsOnline && online:
		s.SetOffline()
	}
}

// Feed applies Snapshot payloads from topic until ctx is cancelled or the
// subscription closes. Malformed payloads are logged and skipped.
func Feed(ctx context.Context, sub bus.Subscriber, topic string, s *Stream, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	ch, cancel, err := sub.Subscribe(topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			var status Snapshot
			if err := json.Unmarshal(payload, &status); err != nil {
				logger.Warn("dropping malformed stream status", "topic", topic, "error", err)
				continue
			}
			s.Apply(status)
		}
	}
}
