package chat

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// PresencePublisher receives the online set after every registry change.
// Calls are made while the registry lock is held, so implementations must
// not block; Broadcaster satisfies this by enqueueing to session queues.
type PresencePublisher interface {
	Publish(online []string, sessions []*Session)
}

// Registry is the authoritative in-memory map of who is online right now.
// At most one live session per identity: a new connection supersedes
// (closes) any prior one. All mutations are serialized per-registry under
// a single lock; reads take the shared lock and never block writers for
// long.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	seq      uint64
	presence PresencePublisher
	log      *logrus.Entry
}

// NewRegistry builds an empty registry that reports changes to presence.
func NewRegistry(presence PresencePublisher) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		presence: presence,
		log:      logrus.WithField("component", "registry"),
	}
}

// Register records s as the current session for its identity, closing any
// prior session first. The presence snapshot is published under the lock,
// so snapshots observed by clients follow mutation order.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, ok := r.sessions[s.Identity]; ok {
		prior.Close()
		r.log.WithFields(logrus.Fields{
			"identity":   s.Identity,
			"superseded": prior.ID,
		}).Info("session superseded")
	}
	r.seq++
	s.seq = r.seq
	r.sessions[s.Identity] = s

	r.log.WithFields(logrus.Fields{
		"identity": s.Identity,
		"session":  s.ID,
		"online":   len(r.sessions),
	}).Info("session registered")
	r.publishLocked()
}

// Unregister removes s if it is still the current session for its
// identity. Idempotent: a disconnect processed after a newer connection
// already superseded the identity is a no-op and publishes nothing.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.sessions[s.Identity]
	if !ok || cur != s {
		return
	}
	delete(r.sessions, s.Identity)
	s.Close()

	r.log.WithFields(logrus.Fields{
		"identity": s.Identity,
		"session":  s.ID,
		"online":   len(r.sessions),
	}).Info("session unregistered")
	r.publishLocked()
}

// Lookup returns the current live session for identity, if any.
func (r *Registry) Lookup(identity string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[identity]
	return s, ok
}

// OnlineSet is a sorted snapshot of every identity with a live session.
func (r *Registry) OnlineSet() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onlineLocked()
}

// LiveSessions snapshots every registered session.
func (r *Registry) LiveSessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.liveLocked()
}

func (r *Registry) onlineLocked() []string {
	online := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		online = append(online, id)
	}
	sort.Strings(online)
	return online
}

func (r *Registry) liveLocked() []*Session {
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	return live
}

func (r *Registry) publishLocked() {
	if r.presence == nil {
		return
	}
	r.presence.Publish(r.onlineLocked(), r.liveLocked())
}
