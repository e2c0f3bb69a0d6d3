// Package server wires the HTTP handlers into a gorilla/mux router.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures and returns the application router. Paths without a
// route are served from the public directory or answered with Not Found.
func SetupRoutes(h *Handlers) *mux.Router {
	router := mux.NewRouter()

	readOnly := []string{http.MethodGet, http.MethodHead}
	router.HandleFunc("/", h.ChatPage).Methods(readOnly...)
	router.HandleFunc("/text", h.Text).Methods(readOnly...)
	router.HandleFunc("/json", h.JSON).Methods(readOnly...)
	router.HandleFunc("/echo", h.Echo).Methods(readOnly...)

	// Streaming and publishing endpoints answer GET only.
	router.HandleFunc("/chat", h.Chat).Methods(http.MethodGet)
	router.HandleFunc("/sse", h.SSE).Methods(http.MethodGet)
	router.HandleFunc("/ws", h.WebSocket).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(h.Static)
	router.MethodNotAllowedHandler = http.HandlerFunc(h.NotFound)
	return router
}
