package chat

import (
	"sync"

	"github.com/google/uuid"
)

// Outbound queue depth per session. Matches the websocket send buffer the
// write pump drains; a full queue drops events (best-effort, reconciled by
// the next history fetch).
const sendQueueSize = 256

// Session pairs one identity with one live transport connection. It is
// ephemeral: created on connect, destroyed on disconnect or when a newer
// connection for the same identity supersedes it. All outbound traffic
// goes through its buffered queue so one slow session never blocks another.
type Session struct {
	ID       string
	Identity string

	// seq is the registry's connect sequence number, assigned on Register.
	seq uint64

	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewSession creates a session for the given identity. It carries no
// traffic until registered.
func NewSession(identity string) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Identity: identity,
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
	}
}

// Enqueue offers an event to the session's outbound queue. It never
// blocks: a closed session or a full queue drops the event and returns
// false.
func (s *Session) Enqueue(evt Event) bool {
	return s.enqueueRaw(evt.encode())
}

func (s *Session) enqueueRaw(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- data:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

// Outbound is the queue the write pump drains.
func (s *Session) Outbound() <-chan []byte { return s.send }

// Done is closed when the session is closed (disconnect or supersession).
func (s *Session) Done() <-chan struct{} { return s.done }

// Close marks the session dead. Idempotent; the send channel is left open
// so concurrent Enqueue calls can never panic.
func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}
