package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Namespace for deriving message ids from client request ids, so a retried
// send maps to the same id and the append stays idempotent.
var messageIDNamespace = uuid.MustParse("7a5f2e9c-31d4-4b8a-9c6e-02d1f4a8b395")

// SendRequest is one outbound message attempt. RequestID is optional; when
// present, retries of the same request produce the same message.
type SendRequest struct {
	RequestID   string
	Sender      string
	Target      Target
	Payload     Payload
	IsForwarded bool
}

// Router accepts send attempts: it resolves the fan-out set, consults the
// moderation gate, persists the message (the durability point) and
// dispatches delivery events to live sessions. It never queues for offline
// identities; they catch up via history.
type Router struct {
	identities IdentityStore
	messages   MessageStore
	bus        Bus
	log        *logrus.Entry
}

// NewRouter wires the router to its collaborators.
func NewRouter(identities IdentityStore, messages MessageStore, bus Bus) *Router {
	return &Router{
		identities: identities,
		messages:   messages,
		bus:        bus,
		log:        logrus.WithField("component", "router"),
	}
}

// Send handles one message. On a gate Deny it returns a DeniedError and
// leaves persistence and fan-out untouched. The registry lookup for
// dispatch happens after the store write, never across it.
func (r *Router) Send(ctx context.Context, req SendRequest) (*Message, error) {
	if req.Payload.Empty() {
		return nil, ErrEmptyPayload
	}

	msg := &Message{
		ID:          messageID(req.RequestID),
		SenderID:    req.Sender,
		Payload:     req.Payload,
		IsForwarded: req.IsForwarded,
		CreatedAt:   time.Now().UTC(),
	}

	var fanout []string
	if req.Target.IsGroup() {
		g, err := r.identities.GetGroup(ctx, req.Target.Group())
		if err != nil {
			return nil, fmt.Errorf("resolve group: %w", err)
		}
		if err := AuthorizeGroup(req.Sender, g); err != nil {
			r.logDeny(req, err)
			return nil, err
		}
		msg.GroupID = g.ID
		// Restricted members still receive: restriction gates authorship,
		// not receipt. Only the sender is excluded.
		fanout = lo.Filter(g.Members, func(m string, _ int) bool { return m != req.Sender })
	} else {
		senderBlocked, err := r.identities.GetBlocked(ctx, req.Sender)
		if err != nil {
			return nil, fmt.Errorf("load sender blocks: %w", err)
		}
		targetBlocked, err := r.identities.GetBlocked(ctx, req.Target.Peer())
		if err != nil {
			return nil, fmt.Errorf("load target blocks: %w", err)
		}
		if err := AuthorizeDirect(req.Sender, req.Target.Peer(), senderBlocked, targetBlocked); err != nil {
			r.logDeny(req, err)
			return nil, err
		}
		msg.ReceiverID = req.Target.Peer()
		fanout = []string{req.Target.Peer()}
	}

	// Durability point. A retry with the same request id returns the
	// already-appended record instead of duplicating it.
	stored, err := r.messages.Append(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	env := Envelope{Targets: fanout, Event: deliveredEvent(stored)}
	if err := r.bus.Publish(ctx, env); err != nil {
		// The message is durable; live delivery is best-effort and the
		// receivers observe it via history.
		r.log.WithError(err).WithField("message", stored.ID).Warn("dispatch failed")
	}

	r.log.WithFields(logrus.Fields{
		"message": stored.ID,
		"sender":  req.Sender,
		"group":   msg.GroupID != "",
		"fanout":  len(fanout),
	}).Debug("message routed")
	return stored, nil
}

func (r *Router) logDeny(req SendRequest, err error) {
	if d, ok := AsDenied(err); ok {
		r.log.WithFields(logrus.Fields{
			"sender": req.Sender,
			"reason": d.Reason,
		}).Info("send denied")
	}
}

func messageID(requestID string) string {
	if requestID == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(messageIDNamespace, []byte(requestID)).String()
}
