package server

import (
	"context"
	"net/http"
)

// WebSocket upgrades the request and joins the connection to the chat: every
// broadcast message is written to it and every message it sends is published.
// The handler returns once the connection is gone.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an error response.
		h.logger.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	client := NewClient(conn, h.broadcaster, h.cfg.WebSocket, r.RemoteAddr, h.logger)
	sub := h.broadcaster.Subscribe(client.Deliver)
	client.logger.Info().Str("subscription", sub.ID().String()).Msg("WebSocket client connected")

	// Server shutdown cancels the request context; unblock the read pump.
	stop := context.AfterFunc(r.Context(), client.closeConnection)
	defer stop()

	go client.writePump()
	client.readPump()

	h.broadcaster.Unsubscribe(sub)
	client.Close()
	client.logger.Info().Str("subscription", sub.ID().String()).Msg("WebSocket client disconnected")
}
