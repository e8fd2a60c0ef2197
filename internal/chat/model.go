package chat

import "time"

// ---------------------------------------------
// 🗄️ Database & API Models
// ---------------------------------------------

// Location is a shared map coordinate attached to a message.
type Location struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// Payload is the message body. Text may be empty when an attachment
// (image, file or location) is present; a message with none of the four
// is rejected before it reaches the router.
type Payload struct {
	Text     string    `json:"text,omitempty"`
	ImageURL string    `json:"image_url,omitempty"`
	FileURL  string    `json:"file_url,omitempty"`
	Location *Location `json:"location,omitempty"`
}

// Empty reports whether the payload carries neither text nor an attachment.
func (p Payload) Empty() bool {
	return p.Text == "" && p.ImageURL == "" && p.FileURL == "" && p.Location == nil
}

// Message is the durable chat record. Exactly one of ReceiverID / GroupID
// is set. Sender, target, payload and CreatedAt are immutable after
// creation; only the visibility fields (Seen, DeletedFor,
// DeletedForEveryone) change, and only through the Tracker.
type Message struct {
	ID                 string    `json:"id"`
	SenderID           string    `json:"sender_id"`
	ReceiverID         string    `json:"receiver_id,omitempty"`
	GroupID            string    `json:"group_id,omitempty"`
	Payload            Payload   `json:"payload"`
	Seen               bool      `json:"seen"` // direct messages only
	DeletedFor         []string  `json:"-"`
	DeletedForEveryone bool      `json:"deleted_for_everyone"`
	IsForwarded        bool      `json:"is_forwarded,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// IsGroup reports whether the message was addressed to a group.
func (m *Message) IsGroup() bool { return m.GroupID != "" }

// Tombstoned returns a copy with the payload blanked out, for rendering
// messages deleted for everyone.
func (m *Message) Tombstoned() *Message {
	c := *m
	c.Payload = Payload{}
	c.DeletedFor = nil
	return &c
}

// Group is the roster snapshot the core consults. Members always contains
// AdminID; Restricted members may read but not author messages.
type Group struct {
	ID         string
	AdminID    string
	Members    []string
	Restricted []string
}

// Target is the explicit address of an outbound message: exactly one of
// a peer identity or a group id. Routing never guesses which kind an id is.
type Target struct {
	peer  string
	group string
}

// DirectTarget addresses a single peer.
func DirectTarget(peer string) Target { return Target{peer: peer} }

// GroupTarget addresses all members of a group.
func GroupTarget(groupID string) Target { return Target{group: groupID} }

func (t Target) IsGroup() bool { return t.group != "" }
func (t Target) Peer() string  { return t.peer }
func (t Target) Group() string { return t.group }
