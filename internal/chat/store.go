package chat

import "context"

// IdentityStore is the durable relationship data the core consults before
// accepting a send. It is owned elsewhere (user/group CRUD); the core only
// takes snapshot reads, never caches.
type IdentityStore interface {
	// GetBlocked returns the identities the given user has blocked.
	GetBlocked(ctx context.Context, userID string) ([]string, error)
	// GetGroup returns the group roster, or ErrNotFound.
	GetGroup(ctx context.Context, groupID string) (*Group, error)
}

// VisibilityPatch is a partial update of a message's mutable visibility
// fields. Nil/empty fields are left untouched.
type VisibilityPatch struct {
	Seen               *bool
	AddDeletedFor      string
	DeletedForEveryone *bool
}

// MessageStore is the durable append-only message log. Messages are never
// physically removed; visibility transitions go through UpdateVisibility.
type MessageStore interface {
	// Append persists a new message. If a message with the same id already
	// exists (a retried send) the existing record is returned unchanged.
	Append(ctx context.Context, msg *Message) (*Message, error)
	// Get loads a message by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Message, error)
	// UpdateVisibility applies a visibility patch to the message.
	UpdateVisibility(ctx context.Context, id string, patch VisibilityPatch) error
	// FindDirect returns the direct conversation between viewer and peer,
	// oldest first, omitting messages the viewer deleted for themselves.
	FindDirect(ctx context.Context, viewer, peer string, limit int) ([]*Message, error)
	// FindGroup returns the group conversation, oldest first, omitting
	// messages the viewer deleted for themselves.
	FindGroup(ctx context.Context, viewer, groupID string, limit int) ([]*Message, error)
	// CountUnseen counts direct messages from sender to receiver that the
	// receiver has not marked seen.
	CountUnseen(ctx context.Context, receiver, sender string) (int, error)
}
