package chat

import "encoding/json"

// Event types pushed to client sessions over the websocket.
const (
	EventPresenceSnapshot  = "presence.snapshot"
	EventMessageDelivered  = "message.delivered"
	EventMessageTombstoned = "message.tombstoned"
)

// Event is the JSON envelope written to a session's outbound queue.
// Exactly one of the optional fields is populated, keyed by Type.
type Event struct {
	Type      string   `json:"type"`
	Online    []string `json:"online,omitempty"`
	Message   *Message `json:"message,omitempty"`
	MessageID string   `json:"message_id,omitempty"`
}

func presenceEvent(online []string) Event {
	return Event{Type: EventPresenceSnapshot, Online: online}
}

func deliveredEvent(msg *Message) Event {
	return Event{Type: EventMessageDelivered, Message: msg}
}

func tombstonedEvent(messageID string) Event {
	return Event{Type: EventMessageTombstoned, MessageID: messageID}
}

func (e Event) encode() []byte {
	data, _ := json.Marshal(e)
	return data
}
