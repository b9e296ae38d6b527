package state

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

type chanSubscriber struct{ ch chan []byte }

func (s *chanSubscriber) Subscribe(string) (<-chan []byte, func(), error) {
	return s.ch, func() {}, nil
}

func (s *chanSubscriber) Close() error { return nil }

func TestStream_Apply(t *testing.T) {
	s := New("CZK")
	ended := 0
	s.OnStreamEnd(func() { ended++ })

	started := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	s.Apply(Snapshot{IsOnline: true, StartedAt: started, Viewers: 42, Title: "hello"})

	online, at := s.Online()
	if !online || !at.Equal(started) {
		t.Fatalf("Online() = %v, %v, want true, %v", online, at, started)
	}
	if s.MainCurrency() != "CZK" {
		t.Errorf("MainCurrency() = %q, want configured CZK kept", s.MainCurrency())
	}

	s.Apply(Snapshot{IsOnline: true, StartedAt: started.Add(time.Hour), Viewers: 50})
	if _, at := s.Online(); !at.Equal(started) {
		t.Errorf("staying online must keep the start time, got %v", at)
	}
	if s.Viewers() != 50 {
		t.Errorf("Viewers() = %d, want 50", s.Viewers())
	}

	s.Apply(Snapshot{IsOnline: false})
	if ended != 1 {
		t.Errorf("stream end hooks ran %d times, want 1", ended)
	}
	s.Apply(Snapshot{IsOnline: false})
	if ended != 1 {
		t.Errorf("offline to offline must not run hooks, ran %d times", ended)
	}
}

func TestFeed(t *testing.T) {
	sub := &chanSubscriber{ch: make(chan []byte, 3)}
	good, _ := json.Marshal(Snapshot{Viewers: 7, Game: "Star Citizen"})
	sub.ch <- []byte("nope")
	sub.ch <- good
	close(sub.ch)

	s := New("")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Feed(ctx, sub, "sogebot.stream.state", s, nil); err != nil {
		t.Fatalf("Feed() error = %v, want nil", err)
	}
	if snap := s.Snapshot(); snap.Viewers != 7 || snap.Game != "Star Citizen" {
		t.Errorf("Snapshot() = %+v", snap)
	}
}
