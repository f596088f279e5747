package server

import (
	"sync"

	"github.com/townsquare/townsquare/internal/room"
)

// Registry maps each room key to its set of live clients, keyed by the
// client's generated ID. An entry exists exactly as long as its member set is
// non-empty; the last deregistration removes the key entirely.
type Registry struct {
	mu    sync.RWMutex
	rooms map[room.Key]map[string]*Client
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[room.Key]map[string]*Client)}
}

// Register adds the client to the member set of key, creating the entry on
// first use. Registering the same client twice is a no-op.
func (r *Registry) Register(key room.Key, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[key]
	if !ok {
		members = make(map[string]*Client)
		r.rooms[key] = members
	}
	members[c.id] = c
}

// Deregister removes the client from key's member set and drops the entry
// when the set empties. Unknown clients are ignored.
func (r *Registry) Deregister(key room.Key, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[key]
	if !ok {
		return
	}
	delete(members, c.id)
	if len(members) == 0 {
		delete(r.rooms, key)
	}
}

// Members returns a snapshot of the clients currently registered for key.
func (r *Registry) Members(key room.Key) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[key]
	out := make([]*Client, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// Count returns the number of clients registered for key.
func (r *Registry) Count(key room.Key) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[key])
}

// Contains reports whether key currently has any registered client.
func (r *Registry) Contains(key room.Key) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[key]
	return ok
}

// All returns a snapshot of every registered client across all rooms, used
// during shutdown.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Client
	for _, members := range r.rooms {
		for _, c := range members {
			out = append(out, c)
		}
	}
	return out
}
