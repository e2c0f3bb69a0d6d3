package server

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ErrStreamClosed is returned when a message is sent to a finished event stream.
var ErrStreamClosed = errors.New("event stream closed")

// eventStream is one open text/event-stream response. Publishers only enqueue
// through send; the handler goroutine is the sole writer to the connection.
type eventStream struct {
	w     http.ResponseWriter
	rc    *http.ResponseController
	queue chan string

	mu     sync.Mutex
	closed bool
}

func newEventStream(w http.ResponseWriter) *eventStream {
	return &eventStream{
		w:     w,
		rc:    http.NewResponseController(w),
		queue: make(chan string, sendBufferSize),
	}
}

// send queues message for the stream without blocking. It is the broadcast
// listener.
func (s *eventStream) send(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}

	select {
	case s.queue <- message:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// close makes every later send fail.
func (s *eventStream) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// open commits the status line and headers.
func (s *eventStream) open() error {
	if err := s.armDeadline(); err != nil {
		return err
	}
	s.w.WriteHeader(http.StatusOK)
	return s.rc.Flush()
}

// data writes message as a single data frame.
func (s *eventStream) data(message string) error {
	return s.write("data: %s\n\n", message)
}

// comment writes an SSE comment line, ignored by clients.
func (s *eventStream) comment(text string) error {
	return s.write(": %s\n\n", text)
}

func (s *eventStream) write(format, value string) error {
	if err := s.armDeadline(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, format, value); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("flush event: %w", err)
	}
	return nil
}

// armDeadline bounds the next write so a client that stops reading ends the
// stream instead of holding it open.
func (s *eventStream) armDeadline() error {
	err := s.rc.SetWriteDeadline(time.Now().Add(writeWait))
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return nil
}

// SSE streams every published chat message to the client as a server-sent
// event until the client disconnects or the server shuts down.
func (h *Handlers) SSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		h.logger.Error().Str("remote_addr", r.RemoteAddr).Msg("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	stream := newEventStream(w)

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	// Subscribe before the headers go out so a connected client never misses
	// a message published after it saw the response.
	sub := h.broadcaster.Subscribe(stream.send)
	defer func() {
		h.broadcaster.Unsubscribe(sub)
		stream.close()
	}()

	log := h.logger.With().
		Str("remote_addr", r.RemoteAddr).
		Str("subscription", sub.ID().String()).
		Logger()

	if err := stream.open(); err != nil {
		log.Debug().Err(err).Msg("event stream closed before it opened")
		return
	}
	log.Info().Msg("event stream opened")

	var keepAlive <-chan time.Time
	if interval := h.cfg.SSE.KeepAliveInterval; interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		keepAlive = ticker.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("reason", ctx.Err().Error()).Msg("event stream closed")
			return
		case message := <-stream.queue:
			if err := stream.data(message); err != nil {
				log.Warn().Err(err).Msg("event stream write failed")
				return
			}
		case <-keepAlive:
			if err := stream.comment("keepalive"); err != nil {
				log.Debug().Err(err).Msg("keep-alive failed")
				return
			}
		}
	}
}
