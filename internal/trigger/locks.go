package trigger

import (
	"sync"

	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// ruleLocks serialises read-modify-write cycles on one rule's triggered
// state between condition checkers and the decayer.
type ruleLocks struct {
	mu    sync.Mutex
	locks map[types.RuleID]*sync.Mutex
}

func newRuleLocks() *ruleLocks {
	return &ruleLocks{locks: make(map[types.RuleID]*sync.Mutex)}
}

// lock acquires the mutex for id and returns its release function.
func (l *ruleLocks) lock(id types.RuleID) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
