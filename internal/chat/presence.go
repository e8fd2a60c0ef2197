package chat

import "github.com/sirupsen/logrus"

// Broadcaster pushes full online-set snapshots to every live session on
// every registry change. Snapshots, not diffs: cardinality is small and a
// snapshot is self-healing for clients that missed one.
type Broadcaster struct {
	log *logrus.Entry
}

// NewBroadcaster builds the presence broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{log: logrus.WithField("component", "presence")}
}

// Publish encodes the snapshot once and offers it to every session queue.
// Never blocks; a session with a full queue misses this snapshot and
// recovers on the next change.
func (b *Broadcaster) Publish(online []string, sessions []*Session) {
	data := presenceEvent(online).encode()
	dropped := 0
	for _, s := range sessions {
		if !s.enqueueRaw(data) {
			dropped++
		}
	}
	if dropped > 0 {
		b.log.WithFields(logrus.Fields{
			"online":  len(online),
			"dropped": dropped,
		}).Warn("presence snapshot dropped for slow sessions")
	}
}
