package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes builds the chi router for the relay: the WebSocket endpoint, health
// check, and the JSON API consumed by the page layer.
func (h *Handlers) Routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(corsMiddleware)

	r.Get("/healthz", h.Health)
	r.Get("/ws/{city}/{circle}", h.WebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/history/{city}/{circle}", h.History)
		r.Get("/nearby", h.Nearby)
		r.Get("/cities", h.Cities)
		r.Get("/circles/{city}", h.Circles)
	})

	return r
}

// corsMiddleware reflects the request origin onto API responses when it is on
// the configured allow list. WebSocket upgrades run their own origin check.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && isOriginAllowed(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
