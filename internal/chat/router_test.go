package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendDirectDeliversExactlyOnceWithNoEcho(t *testing.T) {
	c := newCore()
	alice := c.connect("alice")
	bob := c.connect("bob")
	drainEvents(alice)
	drainEvents(bob)

	msg, err := c.router.Send(context.Background(), SendRequest{
		Sender:  "alice",
		Target:  DirectTarget("bob"),
		Payload: Payload{Text: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", msg.SenderID)
	assert.Equal(t, "bob", msg.ReceiverID)

	delivered := eventsOfType(drainEvents(bob), EventMessageDelivered)
	require.Len(t, delivered, 1)
	assert.Equal(t, "hi", delivered[0].Message.Payload.Text)
	assert.Equal(t, msg.ID, delivered[0].Message.ID)

	assert.Empty(t, eventsOfType(drainEvents(alice), EventMessageDelivered), "sender must not receive an echo")
}

func TestSendDeniedLeavesNoTrace(t *testing.T) {
	c := newCore()
	c.identities.block("alice", "bob") // alice blocked bob
	bob := c.connect("bob")
	drainEvents(bob)

	// bob tries to message alice
	_, err := c.router.Send(context.Background(), SendRequest{
		Sender:  "bob",
		Target:  DirectTarget("alice"),
		Payload: Payload{Text: "hello?"},
	})
	d, ok := AsDenied(err)
	require.True(t, ok)
	assert.Equal(t, DenyBlockedByTarget, d.Reason)
	assert.Zero(t, c.messages.appends, "denied send must not persist")
	assert.Empty(t, eventsOfType(drainEvents(bob), EventMessageDelivered))
}

func TestSendSucceedsAfterUnblock(t *testing.T) {
	c := newCore()
	alice := c.connect("alice")
	c.identities.block("alice", "bob")

	req := SendRequest{Sender: "bob", Target: DirectTarget("alice"), Payload: Payload{Text: "hey"}}
	_, err := c.router.Send(context.Background(), req)
	require.Error(t, err)

	c.identities.unblock("alice", "bob")
	drainEvents(alice)

	msg, err := c.router.Send(context.Background(), req)
	require.NoError(t, err)
	delivered := eventsOfType(drainEvents(alice), EventMessageDelivered)
	require.Len(t, delivered, 1)
	assert.Equal(t, msg.ID, delivered[0].Message.ID)
}

func TestSenderCannotMessageSomeoneTheyBlocked(t *testing.T) {
	c := newCore()
	c.identities.block("alice", "bob")

	_, err := c.router.Send(context.Background(), SendRequest{
		Sender:  "alice",
		Target:  DirectTarget("bob"),
		Payload: Payload{Text: "hi"},
	})
	d, ok := AsDenied(err)
	require.True(t, ok)
	assert.Equal(t, DenySenderHasBlockedTarget, d.Reason)
}

func TestGroupSendFanOut(t *testing.T) {
	c := newCore()
	c.identities.groups["g1"] = &Group{
		ID:         "g1",
		AdminID:    "admin",
		Members:    []string{"admin", "m1", "m2"},
		Restricted: []string{"m1"},
	}
	admin := c.connect("admin")
	m1 := c.connect("m1")
	m2 := c.connect("m2")
	for _, s := range []*Session{admin, m1, m2} {
		drainEvents(s)
	}

	// Restricted m1 cannot author.
	_, err := c.router.Send(context.Background(), SendRequest{
		Sender:  "m1",
		Target:  GroupTarget("g1"),
		Payload: Payload{Text: "can I talk?"},
	})
	d, ok := AsDenied(err)
	require.True(t, ok)
	assert.Equal(t, DenyReadOnly, d.Reason)
	assert.Zero(t, c.messages.appends)

	// m2 posts: delivered to admin AND restricted m1, never back to m2.
	msg, err := c.router.Send(context.Background(), SendRequest{
		Sender:  "m2",
		Target:  GroupTarget("g1"),
		Payload: Payload{Text: "hello group"},
	})
	require.NoError(t, err)
	assert.Equal(t, "g1", msg.GroupID)

	for _, s := range []*Session{admin, m1} {
		delivered := eventsOfType(drainEvents(s), EventMessageDelivered)
		require.Len(t, delivered, 1, "member %s", s.Identity)
		assert.Equal(t, "hello group", delivered[0].Message.Payload.Text)
	}
	assert.Empty(t, eventsOfType(drainEvents(m2), EventMessageDelivered))
}

func TestGroupSendFromOutsiderDenied(t *testing.T) {
	c := newCore()
	c.identities.groups["g1"] = &Group{ID: "g1", AdminID: "admin", Members: []string{"admin"}}

	_, err := c.router.Send(context.Background(), SendRequest{
		Sender:  "stranger",
		Target:  GroupTarget("g1"),
		Payload: Payload{Text: "let me in"},
	})
	d, ok := AsDenied(err)
	require.True(t, ok)
	assert.Equal(t, DenyNotAMember, d.Reason)
}

func TestSendToMissingGroup(t *testing.T) {
	c := newCore()
	_, err := c.router.Send(context.Background(), SendRequest{
		Sender:  "alice",
		Target:  GroupTarget("nope"),
		Payload: Payload{Text: "hi"},
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSendToOfflineReceiverStillPersists(t *testing.T) {
	c := newCore()

	msg, err := c.router.Send(context.Background(), SendRequest{
		Sender:  "alice",
		Target:  DirectTarget("bob"),
		Payload: Payload{Text: "see you later"},
	})
	require.NoError(t, err)

	stored, err := c.messages.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "see you later", stored.Payload.Text)
}

func TestSendEmptyPayloadRejected(t *testing.T) {
	c := newCore()
	_, err := c.router.Send(context.Background(), SendRequest{
		Sender: "alice",
		Target: DirectTarget("bob"),
	})
	assert.ErrorIs(t, err, ErrEmptyPayload)
	assert.Zero(t, c.messages.appends)
}

func TestSendAttachmentWithoutTextAllowed(t *testing.T) {
	c := newCore()
	msg, err := c.router.Send(context.Background(), SendRequest{
		Sender:  "alice",
		Target:  DirectTarget("bob"),
		Payload: Payload{ImageURL: "https://cdn.example/pic.png"},
	})
	require.NoError(t, err)
	assert.Empty(t, msg.Payload.Text)
	assert.Equal(t, "https://cdn.example/pic.png", msg.Payload.ImageURL)
}

func TestSendRetryWithSameRequestIDIsIdempotent(t *testing.T) {
	c := newCore()
	req := SendRequest{
		RequestID: "req-42",
		Sender:    "alice",
		Target:    DirectTarget("bob"),
		Payload:   Payload{Text: "once"},
	}

	first, err := c.router.Send(context.Background(), req)
	require.NoError(t, err)
	second, err := c.router.Send(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, c.messages.appends)
}

func TestSendOrderPreservedPerRoute(t *testing.T) {
	c := newCore()
	bob := c.connect("bob")
	drainEvents(bob)

	texts := []string{"one", "two", "three", "four"}
	for _, text := range texts {
		_, err := c.router.Send(context.Background(), SendRequest{
			Sender:  "alice",
			Target:  DirectTarget("bob"),
			Payload: Payload{Text: text},
		})
		require.NoError(t, err)
	}

	delivered := eventsOfType(drainEvents(bob), EventMessageDelivered)
	require.Len(t, delivered, len(texts))
	for i, e := range delivered {
		assert.Equal(t, texts[i], e.Message.Payload.Text)
	}
}

func TestDeniedErrorUnwrapping(t *testing.T) {
	err := Denied(DenyReadOnly)
	var d *DeniedError
	require.True(t, errors.As(err, &d))
	assert.Equal(t, DenyReadOnly, d.Reason)
}
