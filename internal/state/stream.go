// Package state holds the shared, read-mostly view of the live stream that
// the engine, filters and condition checkers observe.
//
// Platform integrations write through Update, SetOnline and SetOffline; the
// engine only reads snapshots. Hooks registered with OnStreamEnd run when the
// stream transitions from online to offline, outside the lock.
package state

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/AnotherFoxGuy/sogeBot/internal/filter"
)

// Snapshot is a copy of the stream state at one instant.
type Snapshot struct {
	Viewers         int       `json:"viewers"`
	Followers       int       `json:"followers"`
	Subscribers     int       `json:"subscribers"`
	Game            string    `json:"game"`
	Title           string    `json:"title"`
	IsOnline        bool      `json:"isOnline"`
	StartedAt       time.Time `json:"startedAt"`
	IsBotSubscriber bool      `json:"isBotSubscriber"`
	MainCurrency    string    `json:"mainCurrency"`
	BroadcasterID   string    `json:"broadcasterId"`
	Scopes          []string  `json:"scopes"`
}

// Stream is safe for concurrent use.
type Stream struct {
	mu    sync.RWMutex
	snap  Snapshot
	hooks []func()
}

// New creates an offline stream with the given main currency.
func New(mainCurrency string) *Stream {
	if mainCurrency == "" {
		mainCurrency = "USD"
	}
	return &Stream{snap: Snapshot{MainCurrency: mainCurrency}}
}

// Snapshot returns a copy of the current state.
func (s *Stream) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.Scopes = slices.Clone(s.snap.Scopes)
	return out
}

// Update applies fn to the state under the write lock. Online transitions
// must go through SetOnline/SetOffline so hooks fire.
func (s *Stream) Update(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	online, started := s.snap.IsOnline, s.snap.StartedAt
	fn(&s.snap)
	s.snap.IsOnline, s.snap.StartedAt = online, started
}

// SetOnline marks the stream live since startedAt.
func (s *Stream) SetOnline(startedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.IsOnline = true
	s.snap.StartedAt = startedAt
}

// SetOffline marks the stream offline and runs stream-end hooks when it was online.
func (s *Stream) SetOffline() {
	s.mu.Lock()
	wasOnline := s.snap.IsOnline
	s.snap.IsOnline = false
	s.snap.StartedAt = time.Time{}
	hooks := slices.Clone(s.hooks)
	s.mu.Unlock()

	if !wasOnline {
		return
	}
	slog.Info("stream ended", "hooks", len(hooks))
	for _, h := range hooks {
		h()
	}
}

// OnStreamEnd registers fn to run after each online to offline transition.
func (s *Stream) OnStreamEnd(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Viewers returns the current viewer count.
func (s *Stream) Viewers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Viewers
}

// Online reports whether the stream is live and since when.
func (s *Stream) Online() (bool, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.IsOnline, s.snap.StartedAt
}

// Title returns the current channel title.
func (s *Stream) Title() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Title
}

// MainCurrency returns the bot's main currency code.
func (s *Stream) MainCurrency() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.MainCurrency
}

// HasScope reports whether the broadcaster token carries scope (case-insensitive).
func (s *Stream) HasScope(scope string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sc := range s.snap.Scopes {
		if strings.EqualFold(sc, scope) {
			return true
		}
	}
	return false
}

// BroadcasterID returns the channel owner's platform id.
func (s *Stream) BroadcasterID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.BroadcasterID
}

// Globals returns the stream-wide values exposed to filters.
func (s *Stream) Globals() filter.Globals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter.Globals{
		Viewers:         s.snap.Viewers,
		Followers:       s.snap.Followers,
		Subscribers:     s.snap.Subscribers,
		Game:            s.snap.Game,
		Title:           s.snap.Title,
		IsBotSubscriber: s.snap.IsBotSubscriber,
		IsStreamOnline:  s.snap.IsOnline,
	}
}
