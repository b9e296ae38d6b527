package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

func TestNoopPublisher(t *testing.T) {
	pub := &NoopPublisher{}
	if err := pub.Publish(context.Background(), TopicChatMessage, ChatMessage{}); err != nil {
		t.Fatalf("NoopPublisher.Publish returned unexpected error: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("NoopPublisher.Close returned unexpected error: %v", err)
	}
}

func TestRecorder(t *testing.T) {
	rec := &Recorder{}
	ctx := context.Background()

	_ = rec.Publish(ctx, TopicChatMessage, ChatMessage{Message: "a"})
	_ = rec.Publish(ctx, TopicChatJoin, ChannelAction{Action: "join"})
	_ = rec.Publish(ctx, TopicChatMessage, ChatMessage{Message: "b"})

	if got := len(rec.Messages()); got != 3 {
		t.Fatalf("len(Messages()) = %d, want 3", got)
	}
	msgs := rec.Topic(TopicChatMessage)
	if len(msgs) != 2 {
		t.Fatalf("len(Topic()) = %d, want 2", len(msgs))
	}
	if msgs[1].Event.(ChatMessage).Message != "b" {
		t.Errorf("second message = %v, want b", msgs[1].Event)
	}
}

type chanSubscriber struct {
	ch chan []byte
}

func (s *chanSubscriber) Subscribe(topic string) (<-chan []byte, func(), error) {
	return s.ch, func() {}, nil
}

func (s *chanSubscriber) Close() error { return nil }

type recordingFirer struct {
	mu    sync.Mutex
	fired []string
	attrs []types.Attributes
}

func (f *recordingFirer) Fire(ctx context.Context, eventID string, attrs types.Attributes) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired = append(f.fired, eventID)
	f.attrs = append(f.attrs, attrs)
	return nil
}

func TestIngest(t *testing.T) {
	sub := &chanSubscriber{ch: make(chan []byte, 4)}
	firer := &recordingFirer{}

	good, _ := json.Marshal(FireRequest{EventID: "follow", Attributes: map[string]any{"userName": "alice"}})
	sub.ch <- []byte("{not json")
	sub.ch <- []byte(`{"attributes":{}}`)
	sub.ch <- good
	close(sub.ch)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := Ingest(ctx, sub, TopicEventFire, firer, nil); err != nil {
		t.Fatalf("Ingest() error = %v, want nil", err)
	}

	if len(firer.fired) != 1 || firer.fired[0] != "follow" {
		t.Fatalf("fired = %v, want [follow]", firer.fired)
	}
	if firer.attrs[0].String("userName") != "alice" {
		t.Errorf("userName = %q, want alice", firer.attrs[0].String("userName"))
	}
}
