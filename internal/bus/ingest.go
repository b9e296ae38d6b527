package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// Firer is the engine entry point fed by Ingest.
type Firer interface {
	Fire(ctx context.Context, eventID string, attrs types.Attributes) error
}

// Ingest feeds FireRequest payloads from topic into f until ctx is cancelled
// or the subscription closes. Malformed payloads and fire errors are logged
// and skipped.
func Ingest(ctx context.Context, sub Subscriber, topic string, f Firer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	ch, cancel, err := sub.Subscribe(topic)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	defer cancel()

	logger.Info("event ingest started", "topic", topic)
	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			var req FireRequest
			if err := json.Unmarshal(data, &req); err != nil || req.EventID == "" {
				logger.Warn("dropping malformed fire request", "topic", topic, "error", err)
				continue
			}
			if err := f.Fire(ctx, req.EventID, types.Attributes(req.Attributes)); err != nil {
				logger.Error("fire failed", "event", req.EventID, "error", err)
			}
		}
	}
}
