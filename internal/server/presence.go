package server

import (
	"sync"

	"github.com/townsquare/townsquare/internal/room"
)

// Presence tracks the display nickname of every live client, scoped per room
// key. Nicks are upserted on join and on every chat message, since a client
// may change its nick mid-session. Entries do not expire on their own; the
// session loop removes them on disconnect.
type Presence struct {
	mu    sync.RWMutex
	nicks map[room.Key]map[string]string
}

// NewPresence creates an empty Presence tracker.
func NewPresence() *Presence {
	return &Presence{nicks: make(map[room.Key]map[string]string)}
}

// SetNick upserts the nickname for the client ID within key's scope.
func (p *Presence) SetNick(key room.Key, clientID, nick string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	scope, ok := p.nicks[key]
	if !ok {
		scope = make(map[string]string)
		p.nicks[key] = scope
	}
	scope[clientID] = nick
}

// Remove deletes the client's entry; a no-op when absent. The key's scope is
// dropped when it empties.
func (p *Presence) Remove(key room.Key, clientID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	scope, ok := p.nicks[key]
	if !ok {
		return
	}
	delete(scope, clientID)
	if len(scope) == 0 {
		delete(p.nicks, key)
	}
}

// Names returns the nicknames currently present in key's scope.
func (p *Presence) Names(key room.Key) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	scope := p.nicks[key]
	out := make([]string, 0, len(scope))
	for _, nick := range scope {
		out = append(out, nick)
	}
	return out
}

// Count returns the number of tracked clients in key's scope.
func (p *Presence) Count(key room.Key) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.nicks[key])
}
