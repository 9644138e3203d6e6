package application

import "sync"

// sessionLocks serializes turn processing per session. Distinct sessions
// proceed concurrently; two turns on the same session run strictly one
// after the other.
type sessionLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{entries: make(map[string]*lockEntry)}
}

// Lock acquires the lock for the given session and returns its release
// function. Entries are reference counted so an idle session holds no
// memory.
func (l *sessionLocks) Lock(sessionID string) func() {
	l.mu.Lock()
	entry, ok := l.entries[sessionID]
	if !ok {
		entry = &lockEntry{}
		l.entries[sessionID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, sessionID)
		}
		l.mu.Unlock()
	}
}
