// Package presence tracks which authenticated users currently hold at least
// one live connection. State is ephemeral: it lives exactly as long as the
// process and is recomputed from connects and disconnects alone.
package presence

import (
	"sort"
	"sync"
)

// Tracker is mutated only by the connection gateway; everyone else reads.
type Tracker struct {
	mu     sync.Mutex
	online map[string]int
}

func NewTracker() *Tracker {
	return &Tracker{
		online: make(map[string]int),
	}
}

// Add records a connection for userID and returns true when the user came
// online with this connection (first socket).
func (t *Tracker) Add(userID string) bool {
	if userID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.online[userID]++
	return t.online[userID] == 1
}

// Remove drops one connection for userID and returns true when the user went
// offline (last socket closed).
func (t *Tracker) Remove(userID string) bool {
	if userID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	count, ok := t.online[userID]
	if !ok {
		return false
	}
	if count <= 1 {
		delete(t.online, userID)
		return true
	}
	t.online[userID] = count - 1
	return false
}

// List returns the full set of online user ids, sorted for stable payloads.
// The broadcast is always the whole list, not a delta.
func (t *Tracker) List() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.online))
	for id := range t.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
