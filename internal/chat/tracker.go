package chat

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const trackerStripes = 64

// Tracker owns every message's visibility lifecycle: the monotonic
// Unseen→Seen transition (direct messages only), the append-only
// deleted-for set, and the terminal deleted-for-everyone flag. Transitions
// on the same message serialize on a striped lock; different messages
// almost never contend.
type Tracker struct {
	identities IdentityStore
	messages   MessageStore
	bus        Bus
	locks      [trackerStripes]sync.Mutex
	log        *logrus.Entry
}

// NewTracker wires the tracker to its collaborators.
func NewTracker(identities IdentityStore, messages MessageStore, bus Bus) *Tracker {
	return &Tracker{
		identities: identities,
		messages:   messages,
		bus:        bus,
		log:        logrus.WithField("component", "tracker"),
	}
}

func (t *Tracker) lockFor(messageID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(messageID))
	return &t.locks[h.Sum32()%trackerStripes]
}

// MarkSeen transitions a direct message Unseen→Seen. Idempotent and
// monotonic: already-seen messages, group messages, and callers other than
// the declared receiver are all no-ops.
func (t *Tracker) MarkSeen(ctx context.Context, messageID, viewer string) error {
	mu := t.lockFor(messageID)
	mu.Lock()
	defer mu.Unlock()

	msg, err := t.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.IsGroup() || msg.ReceiverID != viewer || msg.Seen {
		return nil
	}

	seen := true
	if err := t.messages.UpdateVisibility(ctx, messageID, VisibilityPatch{Seen: &seen}); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	t.log.WithFields(logrus.Fields{
		"message": messageID,
		"viewer":  viewer,
	}).Debug("message seen")
	return nil
}

// DeleteForSelf hides the message locally for viewer. Any legitimate party
// to the conversation may do this; repeat calls are no-ops.
func (t *Tracker) DeleteForSelf(ctx context.Context, messageID, viewer string) error {
	// Participant check reads the roster before the per-message lock is
	// taken; the lock is never held across store lookups other than the
	// message row itself.
	msg, err := t.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	ok, err := t.isParticipant(ctx, msg, viewer)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotParticipant
	}

	mu := t.lockFor(messageID)
	mu.Lock()
	defer mu.Unlock()

	if err := t.messages.UpdateVisibility(ctx, messageID, VisibilityPatch{AddDeletedFor: viewer}); err != nil {
		return fmt.Errorf("delete for self: %w", err)
	}
	return nil
}

// DeleteForEveryone tombstones the message for all viewers. Only the
// original sender may do this; anyone else gets ErrForbidden with no
// partial effect. On the false→true transition every identity in the
// original fan-out set with a live session receives a tombstone event.
func (t *Tracker) DeleteForEveryone(ctx context.Context, messageID, requester string) error {
	msg, err := t.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != requester {
		return ErrForbidden
	}

	fanout, err := t.fanoutSet(ctx, msg)
	if err != nil {
		return err
	}

	mu := t.lockFor(messageID)
	mu.Lock()
	cur, err := t.messages.Get(ctx, messageID)
	if err != nil {
		mu.Unlock()
		return err
	}
	if cur.DeletedForEveryone {
		mu.Unlock()
		return nil
	}
	deleted := true
	if err := t.messages.UpdateVisibility(ctx, messageID, VisibilityPatch{DeletedForEveryone: &deleted}); err != nil {
		mu.Unlock()
		return fmt.Errorf("delete for everyone: %w", err)
	}
	mu.Unlock()

	env := Envelope{Targets: fanout, Event: tombstonedEvent(messageID)}
	if err := t.bus.Publish(ctx, env); err != nil {
		t.log.WithError(err).WithField("message", messageID).Warn("tombstone dispatch failed")
	}
	t.log.WithFields(logrus.Fields{
		"message": messageID,
		"sender":  requester,
	}).Info("message tombstoned")
	return nil
}

func (t *Tracker) isParticipant(ctx context.Context, msg *Message, viewer string) (bool, error) {
	if !msg.IsGroup() {
		return viewer == msg.SenderID || viewer == msg.ReceiverID, nil
	}
	g, err := t.identities.GetGroup(ctx, msg.GroupID)
	if err != nil {
		return false, err
	}
	return lo.Contains(g.Members, viewer), nil
}

// fanoutSet recomputes the message's original delivery targets from the
// current roster.
func (t *Tracker) fanoutSet(ctx context.Context, msg *Message) ([]string, error) {
	if !msg.IsGroup() {
		return []string{msg.ReceiverID}, nil
	}
	g, err := t.identities.GetGroup(ctx, msg.GroupID)
	if err != nil {
		return nil, err
	}
	return lo.Filter(g.Members, func(m string, _ int) bool { return m != msg.SenderID }), nil
}
