package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func directMessage(c *core, sender, receiver, text string) *Message {
	msg, err := c.router.Send(context.Background(), SendRequest{
		Sender:  sender,
		Target:  DirectTarget(receiver),
		Payload: Payload{Text: text},
	})
	if err != nil {
		panic(err)
	}
	return msg
}

func TestMarkSeenIsMonotonicAndIdempotent(t *testing.T) {
	c := newCore()
	msg := directMessage(c, "alice", "bob", "hi")

	require.NoError(t, c.tracker.MarkSeen(context.Background(), msg.ID, "bob"))
	stored, err := c.messages.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Seen)

	// Second call changes nothing.
	require.NoError(t, c.tracker.MarkSeen(context.Background(), msg.ID, "bob"))
	stored, err = c.messages.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Seen)
}

func TestMarkSeenByNonReceiverIsANoOp(t *testing.T) {
	c := newCore()
	msg := directMessage(c, "alice", "bob", "hi")

	// Neither the sender nor a third party can flip the flag.
	require.NoError(t, c.tracker.MarkSeen(context.Background(), msg.ID, "alice"))
	require.NoError(t, c.tracker.MarkSeen(context.Background(), msg.ID, "mallory"))

	stored, err := c.messages.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.False(t, stored.Seen)
}

func TestMarkSeenIgnoresGroupMessages(t *testing.T) {
	c := newCore()
	c.identities.groups["g1"] = &Group{ID: "g1", AdminID: "admin", Members: []string{"admin", "m1"}}
	msg, err := c.router.Send(context.Background(), SendRequest{
		Sender:  "admin",
		Target:  GroupTarget("g1"),
		Payload: Payload{Text: "announcement"},
	})
	require.NoError(t, err)

	require.NoError(t, c.tracker.MarkSeen(context.Background(), msg.ID, "m1"))
	stored, err := c.messages.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.False(t, stored.Seen)
}

func TestMarkSeenMissingMessage(t *testing.T) {
	c := newCore()
	err := c.tracker.MarkSeen(context.Background(), "no-such-id", "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteForSelfIsIdempotentForParticipants(t *testing.T) {
	c := newCore()
	msg := directMessage(c, "alice", "bob", "hide me")

	for i := 0; i < 2; i++ {
		require.NoError(t, c.tracker.DeleteForSelf(context.Background(), msg.ID, "bob"))
	}
	stored, err := c.messages.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, stored.DeletedFor)

	// The sender may also hide their own copy.
	require.NoError(t, c.tracker.DeleteForSelf(context.Background(), msg.ID, "alice"))
	stored, err = c.messages.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, stored.DeletedFor)
}

func TestDeleteForSelfRejectsOutsiders(t *testing.T) {
	c := newCore()
	msg := directMessage(c, "alice", "bob", "private")

	err := c.tracker.DeleteForSelf(context.Background(), msg.ID, "mallory")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestDeleteForSelfHidesFromHistory(t *testing.T) {
	c := newCore()
	msg := directMessage(c, "alice", "bob", "gone for bob")

	require.NoError(t, c.tracker.DeleteForSelf(context.Background(), msg.ID, "bob"))

	bobView, err := c.messages.FindDirect(context.Background(), "bob", "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, bobView)

	aliceView, err := c.messages.FindDirect(context.Background(), "alice", "bob", 0)
	require.NoError(t, err)
	require.Len(t, aliceView, 1)
	assert.Equal(t, msg.ID, aliceView[0].ID)
}

func TestDeleteForEveryoneByNonSenderFails(t *testing.T) {
	c := newCore()
	msg := directMessage(c, "alice", "bob", "mine")

	err := c.tracker.DeleteForEveryone(context.Background(), msg.ID, "bob")
	assert.ErrorIs(t, err, ErrForbidden)

	stored, err := c.messages.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.False(t, stored.DeletedForEveryone, "failed delete must not mutate")
}

func TestDeleteForEveryoneTombstonesLiveReceiver(t *testing.T) {
	c := newCore()
	bob := c.connect("bob")
	msg := directMessage(c, "alice", "bob", "retract this")
	drainEvents(bob)

	require.NoError(t, c.tracker.DeleteForEveryone(context.Background(), msg.ID, "alice"))

	stored, err := c.messages.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.DeletedForEveryone)

	tombstones := eventsOfType(drainEvents(bob), EventMessageTombstoned)
	require.Len(t, tombstones, 1)
	assert.Equal(t, msg.ID, tombstones[0].MessageID)

	// Repeat call: terminal state, no second event.
	require.NoError(t, c.tracker.DeleteForEveryone(context.Background(), msg.ID, "alice"))
	assert.Empty(t, eventsOfType(drainEvents(bob), EventMessageTombstoned))
}

func TestDeleteForEveryoneInGroupReachesAllLiveMembers(t *testing.T) {
	c := newCore()
	c.identities.groups["g1"] = &Group{ID: "g1", AdminID: "admin", Members: []string{"admin", "m1", "m2"}}
	m1 := c.connect("m1")
	m2 := c.connect("m2")

	msg, err := c.router.Send(context.Background(), SendRequest{
		Sender:  "admin",
		Target:  GroupTarget("g1"),
		Payload: Payload{Text: "oops"},
	})
	require.NoError(t, err)
	drainEvents(m1)
	drainEvents(m2)

	require.NoError(t, c.tracker.DeleteForEveryone(context.Background(), msg.ID, "admin"))

	for _, s := range []*Session{m1, m2} {
		tombstones := eventsOfType(drainEvents(s), EventMessageTombstoned)
		require.Len(t, tombstones, 1, "member %s", s.Identity)
		assert.Equal(t, msg.ID, tombstones[0].MessageID)
	}
}

func TestTombstonedRenderingBlanksPayload(t *testing.T) {
	c := newCore()
	msg := directMessage(c, "alice", "bob", "secret")
	require.NoError(t, c.tracker.DeleteForEveryone(context.Background(), msg.ID, "alice"))

	stored, err := c.messages.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	rendered := renderHistory([]*Message{stored})
	require.Len(t, rendered, 1)
	assert.True(t, rendered[0].DeletedForEveryone)
	assert.True(t, rendered[0].Payload.Empty())
}
