package trigger

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/AnotherFoxGuy/sogeBot/internal/filter"
	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memRules is an in-memory rule store.
type memRules struct {
	mu      sync.Mutex
	rules   map[types.RuleID]*types.Rule
	order   []types.RuleID
	saves   int
	pingErr error
}

func newMemRules() *memRules {
	return &memRules{rules: make(map[types.RuleID]*types.Rule)}
}

func (m *memRules) add(r *types.Rule) *types.Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := r.Clone()
	if out.ID == "" {
		out.ID = types.NewRuleID()
	}
	out.EnsureState()
	m.rules[out.ID] = out
	m.order = append(m.order, out.ID)
	return out.Clone()
}

func (m *memRules) triggered(id types.RuleID) types.TriggeredState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rules[id].Clone().Triggered
}

func (m *memRules) Ping(ctx context.Context) error { return m.pingErr }

func (m *memRules) FindByEvent(ctx context.Context, eventNames ...string) ([]*types.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.Rule
	for _, id := range m.order {
		r := m.rules[id]
		for _, name := range eventNames {
			if r.EventName == name {
				out = append(out, r.Clone())
			}
		}
	}
	return out, nil
}

func (m *memRules) FindEnabled(ctx context.Context, q types.RuleQuery) ([]*types.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.Rule
	for _, id := range m.order {
		r := m.rules[id]
		if !r.IsEnabled {
			continue
		}
		if (q.ID != "" && r.ID == q.ID) || (q.ID == "" && r.EventName == q.EventName) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (m *memRules) Get(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, types.ErrRuleNotFound
	}
	return r.Clone(), nil
}

func (m *memRules) SaveTriggered(ctx context.Context, id types.RuleID, state types.TriggeredState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return types.ErrRuleNotFound
	}
	r.Triggered = types.TriggeredState{}
	for k, v := range state {
		r.Triggered[k] = v
	}
	m.saves++
	return nil
}

func (m *memRules) ResetTriggered(ctx context.Context, eventName string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rules {
		if r.EventName == eventName {
			r.Triggered = types.TriggeredState{}
			n++
		}
	}
	return n, nil
}

// memUsers is an in-memory user store with a pending changelog.
type memUsers struct {
	mu      sync.Mutex
	byID    map[string]types.Identity
	pending map[string]string
}

func newMemUsers(idents ...types.Identity) *memUsers {
	u := &memUsers{byID: make(map[string]types.Identity), pending: make(map[string]string)}
	for _, ident := range idents {
		u.byID[ident.UserID] = ident
	}
	return u
}

func (u *memUsers) FindByID(ctx context.Context, id string) (*types.Identity, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	ident, ok := u.byID[id]
	if !ok {
		return nil, types.ErrUserNotFound
	}
	return &ident, nil
}

func (u *memUsers) FindByName(ctx context.Context, name string) (*types.Identity, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, ident := range u.byID {
		if strings.EqualFold(ident.UserName, name) {
			ident := ident
			return &ident, nil
		}
	}
	return nil, types.ErrUserNotFound
}

func (u *memUsers) Upsert(id, name string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.pending[id] = name
}

func (u *memUsers) Flush(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	for id, name := range u.pending {
		ident := u.byID[id]
		ident.UserID, ident.UserName = id, name
		u.byID[id] = ident
	}
	u.pending = make(map[string]string)
	return nil
}

func (u *memUsers) SetAllOffline(ctx context.Context) error { return nil }

// countingLookup resolves names from a fixed table and counts calls.
type countingLookup struct {
	mu    sync.Mutex
	ids   map[string]string
	calls map[string]int
}

func newCountingLookup(ids map[string]string) *countingLookup {
	return &countingLookup{ids: ids, calls: make(map[string]int)}
}

func (l *countingLookup) LookupIDByName(ctx context.Context, name string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[name]++
	if id, ok := l.ids[name]; ok {
		return id, nil
	}
	return "", types.ErrPrincipalUnknown
}

func (l *countingLookup) count(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[name]
}

type fakeStream struct {
	mu        sync.Mutex
	viewers   int
	online    bool
	startedAt time.Time
}

func (s *fakeStream) setViewers(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewers = n
}

func (s *fakeStream) Viewers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewers
}

func (s *fakeStream) Online() (bool, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online, s.startedAt
}

func (s *fakeStream) Globals() filter.Globals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filter.Globals{Viewers: s.viewers, IsStreamOnline: s.online}
}

func (s *fakeStream) MainCurrency() string { return "CZK" }
