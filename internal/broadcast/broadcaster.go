// Package broadcast implements the in-process fan-out that delivers chat
// messages to every connected listener.
package broadcast

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TopicMessage is the only topic the broadcaster carries.
const TopicMessage = "message"

// ErrListenerPanic wraps the value recovered from a panicking listener.
var ErrListenerPanic = errors.New("listener panicked")

// Listener receives a published message. A returned error is logged by the
// broadcaster and does not stop delivery to the remaining listeners.
type Listener func(message string) error

// Subscription is the handle returned by Subscribe and accepted by Unsubscribe.
type Subscription struct {
	id uuid.UUID
}

// ID returns the unique identifier of the subscription.
func (s Subscription) ID() uuid.UUID {
	return s.id
}

// IsZero reports whether s is the zero Subscription, which never refers to a
// registered listener.
func (s Subscription) IsZero() bool {
	return s.id == uuid.Nil
}

type entry struct {
	id       uuid.UUID
	listener Listener
	active   atomic.Bool
}

// Broadcaster holds the ordered set of listeners for the message topic and
// delivers each published message to all of them synchronously.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners []*entry

	// publishMu serializes Publish so every listener sees messages in call order.
	publishMu sync.Mutex

	logger zerolog.Logger
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		logger: logger.With().Str("component", "broadcast").Str("topic", TopicMessage).Logger(),
	}
}

// Topic returns the name of the topic carried by the broadcaster.
func (b *Broadcaster) Topic() string {
	return TopicMessage
}

// Subscribe registers listener and returns a handle for Unsubscribe.
// A nil listener is ignored and the zero Subscription is returned.
func (b *Broadcaster) Subscribe(listener Listener) Subscription {
	if listener == nil {
		return Subscription{}
	}

	e := &entry{id: uuid.New(), listener: listener}
	e.active.Store(true)

	b.mu.Lock()
	b.listeners = append(b.listeners, e)
	count := len(b.listeners)
	b.mu.Unlock()

	b.logger.Debug().Str("subscription", e.id.String()).Int("listeners", count).Msg("listener subscribed")
	return Subscription{id: e.id}
}

// Unsubscribe removes the listener registered under sub. Removing a listener
// that is no longer registered is a no-op. It reports whether a listener was
// removed.
func (b *Broadcaster) Unsubscribe(sub Subscription) bool {
	if sub.IsZero() {
		return false
	}

	b.mu.Lock()
	removed := false
	for i, e := range b.listeners {
		if e.id != sub.id {
			continue
		}
		e.active.Store(false)
		// Copy so snapshots taken by an in-flight Publish stay intact.
		next := make([]*entry, 0, len(b.listeners)-1)
		next = append(next, b.listeners[:i]...)
		next = append(next, b.listeners[i+1:]...)
		b.listeners = next
		removed = true
		break
	}
	count := len(b.listeners)
	b.mu.Unlock()

	if removed {
		b.logger.Debug().Str("subscription", sub.id.String()).Int("listeners", count).Msg("listener unsubscribed")
	}
	return removed
}

// Len returns the number of registered listeners.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Publish delivers message to every registered listener in registration order
// and returns the number of listeners that accepted it. Listeners must not call
// Publish.
func (b *Broadcaster) Publish(message string) int {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.RLock()
	snapshot := b.listeners
	b.mu.RUnlock()

	delivered := 0
	for _, e := range snapshot {
		// Skip listeners removed after the snapshot was taken.
		if !e.active.Load() {
			continue
		}
		if err := b.deliver(e, message); err != nil {
			event := b.logger.Debug()
			if errors.Is(err, ErrListenerPanic) {
				event = b.logger.Warn()
			}
			event.Err(err).Str("subscription", e.id.String()).Msg("listener failed to receive message")
			continue
		}
		delivered++
	}
	return delivered
}

func (b *Broadcaster) deliver(e *entry, message string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrListenerPanic, r)
		}
	}()
	return e.listener(message)
}
