package server

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/townsquare/townsquare/internal/history"
	"github.com/townsquare/townsquare/internal/room"
)

// Hub is the broadcast engine. It composes the room registry, the presence
// tracker, and the history store, and owns the lifecycle of every client's
// pump goroutines.
type Hub struct {
	registry *Registry
	presence *Presence
	store    history.Store

	wg sync.WaitGroup
}

// NewHub creates a Hub around the given history store. Pass history.Disabled
// when retention is off.
func NewHub(store history.Store) *Hub {
	return &Hub{
		registry: NewRegistry(),
		presence: NewPresence(),
		store:    store,
	}
}

// Registry exposes the room registry for handlers and tests.
func (h *Hub) Registry() *Registry { return h.registry }

// Presence exposes the presence tracker for handlers and tests.
func (h *Hub) Presence() *Presence { return h.presence }

// Join registers the client in its room and starts its read and write pumps.
func (h *Hub) Join(c *Client) {
	h.registry.Register(c.room, c)
	log.Info().Str("room", c.room.String()).Str("client", c.id).Str("addr", c.addr).
		Int("members", h.registry.Count(c.room)).Msg("client registered")

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// Broadcast delivers payload to every client currently registered for key.
// Delivery is attempted for all members first; clients whose send queue is
// unreachable are collected and evicted only after the pass completes, so one
// dead connection never blocks the rest. Each delivery lands in the client's
// buffered queue and is drained by its own write pump, keeping a stalled peer
// from holding up the room.
func (h *Hub) Broadcast(key room.Key, payload []byte) {
	members := h.registry.Members(key)

	var dead []*Client
	for _, c := range members {
		if !c.trySend(payload) {
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		log.Warn().Str("room", key.String()).Str("client", c.id).
			Msg("delivery failed, evicting client")
		h.drop(c)
	}
}

// BroadcastUsers composes the current member list for key and broadcasts it.
func (h *Hub) BroadcastUsers(key room.Key) {
	users := h.presence.Names(key)
	sort.Strings(users)
	payload, err := json.Marshal(usersFrame{Type: "users", Users: users, Count: len(users)})
	if err != nil {
		log.Error().Err(err).Msg("encode users frame")
		return
	}
	h.Broadcast(key, payload)
}

// RecordHistory persists a chat message when retention is enabled. Failures
// propagate to the caller; live delivery does not depend on them.
func (h *Hub) RecordHistory(key room.Key, msg room.Message) error {
	return h.store.Record(key, msg)
}

// drop runs the disconnect path for a client: deregister, clear presence,
// close the connection, and tell the remaining members. The client's closed
// flag guarantees this runs once even when the read pump and a concurrent
// broadcast race to evict the same connection.
func (h *Hub) drop(c *Client) {
	if !c.close() {
		return
	}

	key := c.room
	h.registry.Deregister(key, c)
	h.presence.Remove(key, c.id)

	remaining := h.registry.Count(key)
	log.Info().Str("room", key.String()).Str("client", c.id).
		Int("members", remaining).Msg("client disconnected")
	if remaining > 0 {
		h.BroadcastUsers(key)
	}
}

// Shutdown closes every client connection and waits for the pump goroutines
// to finish, or until the timeout elapses.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Info().Msg("shutting down hub")

	for _, c := range h.registry.All() {
		h.drop(c)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("hub shutdown complete")
		return nil
	case <-time.After(timeout):
		log.Warn().Msg("hub shutdown timed out")
		return context.DeadlineExceeded
	}
}
