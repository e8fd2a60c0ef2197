package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterSupersedesPriorSession(t *testing.T) {
	reg := NewRegistry(NewBroadcaster())

	s1 := NewSession("alice")
	s2 := NewSession("alice")
	reg.Register(s1)
	reg.Register(s2)

	select {
	case <-s1.Done():
	default:
		t.Fatal("superseded session was not closed")
	}

	cur, ok := reg.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, s2, cur)
	assert.Equal(t, []string{"alice"}, reg.OnlineSet())
}

func TestUnregisterIsIdempotent(t *testing.T) {
	reg := NewRegistry(NewBroadcaster())

	s := NewSession("bob")
	reg.Register(s)
	reg.Unregister(s)
	reg.Unregister(s) // second call is a no-op

	_, ok := reg.Lookup("bob")
	assert.False(t, ok)
	assert.Empty(t, reg.OnlineSet())
}

func TestUnregisterIgnoresSupersededSession(t *testing.T) {
	presence := &recordingPresence{}
	reg := NewRegistry(presence)

	stale := NewSession("carol")
	fresh := NewSession("carol")
	reg.Register(stale)
	reg.Register(fresh)
	published := len(presence.all())

	// The disconnect of the superseded connection arrives late.
	reg.Unregister(stale)

	cur, ok := reg.Lookup("carol")
	require.True(t, ok)
	assert.Same(t, fresh, cur)
	assert.Equal(t, []string{"carol"}, reg.OnlineSet())
	assert.Len(t, presence.all(), published, "stale unregister must not publish presence")
}

func TestPresenceSnapshotsFollowMutationOrder(t *testing.T) {
	presence := &recordingPresence{}
	reg := NewRegistry(presence)

	a := NewSession("a")
	b := NewSession("b")
	reg.Register(a)
	reg.Register(b)
	reg.Unregister(a)

	snaps := presence.all()
	require.Len(t, snaps, 3)
	assert.Equal(t, []string{"a"}, snaps[0])
	assert.Equal(t, []string{"a", "b"}, snaps[1])
	assert.Equal(t, []string{"b"}, snaps[2])
}

func TestOnlineSetMatchesRegistrationsUnderConcurrency(t *testing.T) {
	reg := NewRegistry(NewBroadcaster())

	const identities = 20
	var wg sync.WaitGroup
	for i := 0; i < identities; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("user-%d", n)
			// Reconnect storms: each identity churns through sessions.
			for j := 0; j < 25; j++ {
				reg.Register(NewSession(id))
			}
			if n%2 == 0 {
				s, ok := reg.Lookup(id)
				if ok {
					reg.Unregister(s)
				}
			}
		}(i)
	}
	wg.Wait()

	online := reg.OnlineSet()
	assert.Len(t, online, identities/2)
	for _, id := range online {
		s, ok := reg.Lookup(id)
		require.True(t, ok)
		assert.Equal(t, id, s.Identity)
	}
}

func TestBroadcasterDeliversSnapshotToEverySession(t *testing.T) {
	reg := NewRegistry(NewBroadcaster())

	a := NewSession("a")
	reg.Register(a)
	drainEvents(a)

	b := NewSession("b")
	reg.Register(b)

	// Both sessions observe the change, not just the affected one.
	for _, s := range []*Session{a, b} {
		events := eventsOfType(drainEvents(s), EventPresenceSnapshot)
		require.NotEmpty(t, events)
		assert.Equal(t, []string{"a", "b"}, events[len(events)-1].Online)
	}
}

func TestSessionEnqueueNeverBlocksWhenQueueFull(t *testing.T) {
	s := NewSession("slow")
	evt := presenceEvent([]string{"slow"})
	for i := 0; i < sendQueueSize; i++ {
		require.True(t, s.Enqueue(evt))
	}
	assert.False(t, s.Enqueue(evt), "full queue must drop, not block")

	s.Close()
	assert.False(t, s.Enqueue(evt), "closed session must drop")
}
