package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Envelope is a delivery instruction published on the bus: push Event to
// every listed identity that has a live session on the receiving instance.
type Envelope struct {
	Targets []string `json:"targets"`
	Event   Event    `json:"event"`
}

// Bus fans delivery events out to sessions, possibly on other instances.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
}

// deliver pushes the envelope's event to every targeted identity with a
// live local session. Best-effort: dead or slow sessions drop the event
// and are reconciled by the next unregister / history fetch.
func deliver(reg *Registry, env Envelope) {
	data := env.Event.encode()
	for _, identity := range env.Targets {
		if s, ok := reg.Lookup(identity); ok {
			s.enqueueRaw(data)
		}
	}
}

// RedisBus routes envelopes through a redis pub/sub channel so every
// server instance delivers to its own registered sessions.
type RedisBus struct {
	rdb     *redis.Client
	channel string
	log     *logrus.Entry
}

// NewRedisBus builds a bus over the given channel.
func NewRedisBus(rdb *redis.Client, channel string) *RedisBus {
	return &RedisBus{
		rdb:     rdb,
		channel: channel,
		log:     logrus.WithField("component", "bus"),
	}
}

func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish envelope: %w", err)
	}
	return nil
}

// Run subscribes to the channel and delivers incoming envelopes to the
// local registry until ctx is cancelled. Runs in its own goroutine.
func (b *RedisBus) Run(ctx context.Context, reg *Registry) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.WithError(err).Warn("malformed envelope on bus")
				continue
			}
			deliver(reg, env)
		}
	}
}

// LoopbackBus delivers synchronously to the local registry. Single-instance
// deployments and tests.
type LoopbackBus struct {
	reg *Registry
}

func NewLoopbackBus(reg *Registry) *LoopbackBus {
	return &LoopbackBus{reg: reg}
}

func (b *LoopbackBus) Publish(_ context.Context, env Envelope) error {
	deliver(b.reg, env)
	return nil
}
