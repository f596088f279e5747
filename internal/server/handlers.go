package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/townsquare/townsquare/internal/geo"
	"github.com/townsquare/townsquare/internal/history"
	"github.com/townsquare/townsquare/internal/room"
)

// historyPageSize is how many messages seed a freshly loaded room page.
const historyPageSize = 50

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// Handlers bundles the HTTP endpoints around the hub and the history store.
type Handlers struct {
	hub   *Hub
	store history.Store
}

// NewHandlers wires the HTTP surface to the relay core.
func NewHandlers(hub *Hub, store history.Store) *Handlers {
	return &Handlers{hub: hub, store: store}
}

// WebSocket upgrades the request and hands the connection to the hub. The
// room key comes from the sanitized, lower-cased URL parameters.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	city := Sanitize(chi.URLParam(r, "city"))
	circle := Sanitize(chi.URLParam(r, "circle"))
	key := room.NewKey(city, circle)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(conn, h.hub, key, r.RemoteAddr)
	h.hub.Join(client)
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// History returns the recent message window for a room, oldest first, used to
// seed the page before the live connection is established.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	city := Sanitize(chi.URLParam(r, "city"))
	circle := Sanitize(chi.URLParam(r, "circle"))
	key := room.NewKey(city, circle)

	limit := historyPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= historyPageSize {
			limit = parsed
		}
	}

	messages, err := h.store.Recent(key, limit)
	if err != nil {
		log.Error().Err(err).Str("room", key.String()).Msg("load history")
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"messages": messages})
}

// Nearby suggests the three closest known cities to the given coordinates.
func (h *Handlers) Nearby(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if errLat != nil || errLon != nil {
		http.Error(w, "lat and lon query parameters are required", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{"nearby": geo.Nearby(lat, lon, 3)})
}

// Cities lists the known city identifiers.
func (h *Handlers) Cities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"cities": geo.Cities()})
}

// Circles lists the circles configured for one city; empty when unknown.
func (h *Handlers) Circles(w http.ResponseWriter, r *http.Request) {
	city := Sanitize(chi.URLParam(r, "city"))
	writeJSON(w, map[string]any{"circles": geo.Circles(city)})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}
