package chat

import (
	"errors"
	"fmt"
)

// DenyReason identifies why the moderation gate rejected a send attempt.
// Reasons are surfaced verbatim to the requester.
type DenyReason string

const (
	DenyBlockedByTarget        DenyReason = "blocked_by_target"
	DenySenderHasBlockedTarget DenyReason = "sender_has_blocked_target"
	DenyNotAMember             DenyReason = "not_a_member"
	DenyReadOnly               DenyReason = "read_only"
)

// DeniedError is a moderation/permission rejection. User-correctable,
// never retried.
type DeniedError struct {
	Reason DenyReason
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("denied: %s", e.Reason)
}

// Denied builds a DeniedError for the given reason.
func Denied(reason DenyReason) error {
	return &DeniedError{Reason: reason}
}

// AsDenied unwraps a DeniedError from err, if there is one.
func AsDenied(err error) (*DeniedError, bool) {
	var d *DeniedError
	ok := errors.As(err, &d)
	return d, ok
}

var (
	// ErrNotFound means the referenced message, group or identity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the requester is not authorized for a delivery-state mutation.
	ErrForbidden = errors.New("forbidden")
	// ErrNotParticipant means the viewer is not a party to the conversation.
	ErrNotParticipant = errors.New("not a participant")
	// ErrEmptyPayload means the message body carries no text and no attachment.
	ErrEmptyPayload = errors.New("empty payload")
)
