package chat

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// fakeIdentityStore serves relationship data from memory.
type fakeIdentityStore struct {
	mu      sync.Mutex
	blocked map[string][]string
	groups  map[string]*Group
}

func newFakeIdentityStore() *fakeIdentityStore {
	return &fakeIdentityStore{
		blocked: make(map[string][]string),
		groups:  make(map[string]*Group),
	}
}

func (f *fakeIdentityStore) GetBlocked(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.blocked[userID]...), nil
}

func (f *fakeIdentityStore) GetGroup(_ context.Context, groupID string) (*Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *g
	return &c, nil
}

func (f *fakeIdentityStore) block(userID, blockedID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked[userID] = append(f.blocked[userID], blockedID)
}

func (f *fakeIdentityStore) unblock(userID, blockedID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []string
	for _, id := range f.blocked[userID] {
		if id != blockedID {
			kept = append(kept, id)
		}
	}
	f.blocked[userID] = kept
}

// fakeMessageStore is an in-memory MessageStore.
type fakeMessageStore struct {
	mu       sync.Mutex
	messages map[string]*Message
	appends  int
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{messages: make(map[string]*Message)}
}

func (f *fakeMessageStore) Append(_ context.Context, msg *Message) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.messages[msg.ID]; ok {
		c := *existing
		return &c, nil
	}
	f.appends++
	c := *msg
	f.messages[msg.ID] = &c
	out := c
	return &out, nil
}

func (f *fakeMessageStore) Get(_ context.Context, id string) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *msg
	c.DeletedFor = append([]string(nil), msg.DeletedFor...)
	return &c, nil
}

func (f *fakeMessageStore) UpdateVisibility(_ context.Context, id string, patch VisibilityPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[id]
	if !ok {
		return ErrNotFound
	}
	if patch.Seen != nil {
		msg.Seen = *patch.Seen
	}
	if patch.DeletedForEveryone != nil {
		msg.DeletedForEveryone = *patch.DeletedForEveryone
	}
	if patch.AddDeletedFor != "" {
		for _, v := range msg.DeletedFor {
			if v == patch.AddDeletedFor {
				return nil
			}
		}
		msg.DeletedFor = append(msg.DeletedFor, patch.AddDeletedFor)
	}
	return nil
}

func (f *fakeMessageStore) FindDirect(_ context.Context, viewer, peer string, limit int) ([]*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Message
	for _, msg := range f.messages {
		direct := (msg.SenderID == viewer && msg.ReceiverID == peer) ||
			(msg.SenderID == peer && msg.ReceiverID == viewer)
		if !direct || contains(msg.DeletedFor, viewer) {
			continue
		}
		c := *msg
		out = append(out, &c)
	}
	sortByCreated(out)
	return clip(out, limit), nil
}

func (f *fakeMessageStore) FindGroup(_ context.Context, viewer, groupID string, limit int) ([]*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Message
	for _, msg := range f.messages {
		if msg.GroupID != groupID || contains(msg.DeletedFor, viewer) {
			continue
		}
		c := *msg
		out = append(out, &c)
	}
	sortByCreated(out)
	return clip(out, limit), nil
}

func (f *fakeMessageStore) CountUnseen(_ context.Context, receiver, sender string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, msg := range f.messages {
		if msg.SenderID == sender && msg.ReceiverID == receiver && !msg.Seen {
			n++
		}
	}
	return n, nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func sortByCreated(msgs []*Message) {
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
}

func clip(msgs []*Message, limit int) []*Message {
	if limit > 0 && len(msgs) > limit {
		return msgs[:limit]
	}
	return msgs
}

// recordingPresence captures every snapshot the registry publishes.
type recordingPresence struct {
	mu        sync.Mutex
	snapshots [][]string
}

func (p *recordingPresence) Publish(online []string, _ []*Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, append([]string(nil), online...))
}

func (p *recordingPresence) all() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]string(nil), p.snapshots...)
}

// core bundles a loopback-wired registry, router and tracker.
type core struct {
	identities *fakeIdentityStore
	messages   *fakeMessageStore
	registry   *Registry
	router     *Router
	tracker    *Tracker
}

func newCore() *core {
	identities := newFakeIdentityStore()
	messages := newFakeMessageStore()
	registry := NewRegistry(NewBroadcaster())
	bus := NewLoopbackBus(registry)
	return &core{
		identities: identities,
		messages:   messages,
		registry:   registry,
		router:     NewRouter(identities, messages, bus),
		tracker:    NewTracker(identities, messages, bus),
	}
}

func (c *core) connect(identity string) *Session {
	s := NewSession(identity)
	c.registry.Register(s)
	return s
}

// drainEvents empties a session's outbound queue.
func drainEvents(s *Session) []Event {
	var out []Event
	for {
		select {
		case data := <-s.Outbound():
			var e Event
			_ = json.Unmarshal(data, &e)
			out = append(out, e)
		default:
			return out
		}
	}
}

func eventsOfType(events []Event, typ string) []Event {
	var out []Event
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
