// Package server exposes the HTTP handlers: plain text, JSON, echo, the chat
// page, static assets and the chat publish endpoint.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/sse-chat/internal/broadcast"
	"github.com/Tyrowin/sse-chat/internal/config"
	"github.com/Tyrowin/sse-chat/web"
)

const (
	textBody     = "hi"
	notFoundBody = "Not Found"
)

// Handlers groups the HTTP handlers and the dependencies they share.
type Handlers struct {
	broadcaster *broadcast.Broadcaster
	cfg         *config.Config
	logger      zerolog.Logger
	origins     *originPolicy
	upgrader    websocket.Upgrader
	public      fs.FS
}

// NewHandlers creates the handler set around an owned broadcaster.
func NewHandlers(b *broadcast.Broadcaster, cfg *config.Config, logger zerolog.Logger) *Handlers {
	logger = logger.With().Str("component", "http").Logger()
	origins := newOriginPolicy(cfg.WebSocket.AllowedOrigins, logger)

	return &Handlers{
		broadcaster: b,
		cfg:         cfg,
		logger:      logger,
		origins:     origins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		public: web.Public(),
	}
}

// Text always responds with a fixed plain text body.
func (h *Handlers) Text(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, textBody)
}

// JSON always responds with the same small JSON document.
func (h *Handlers) JSON(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, Greeting{Text: textBody, Numbers: []int{1, 2, 3}})
}

// Echo responds with the input query parameter in several formats.
// A missing parameter behaves like an empty one.
func (h *Handlers) Echo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, Echo(r.URL.Query().Get("input")))
}

// Chat publishes the message query parameter to every listener and ends the
// response without a body.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	message := r.URL.Query().Get("message")
	delivered := h.broadcaster.Publish(message)

	h.logger.Debug().
		Str("remote_addr", r.RemoteAddr).
		Int("delivered", delivered).
		Msg("chat message published")

	w.WriteHeader(http.StatusOK)
}

// ChatPage serves the embedded chat page.
func (h *Handlers) ChatPage(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, web.Files, web.ChatPage)
}

// NotFound responds with 404 and a fixed plain text body.
func (h *Handlers) NotFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusNotFound)
	_, _ = fmt.Fprint(w, notFoundBody)
}

// Static serves files from the public directory and falls back to NotFound.
func (h *Handlers) Static(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.NotFound(w, r)
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		h.NotFound(w, r)
		return
	}

	info, err := fs.Stat(h.public, name)
	if err != nil || info.IsDir() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			h.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("static lookup failed")
		}
		h.NotFound(w, r)
		return
	}

	http.ServeFileFS(w, r, h.public, name)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode JSON response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		h.logger.Debug().Err(err).Msg("write JSON response")
	}
}
