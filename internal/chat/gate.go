package chat

import "github.com/samber/lo"

// Moderation gate: pure decisions over relationship data fetched at call
// time. A Deny short-circuits the send before anything is persisted.

// AuthorizeDirect applies the direct-message rules, in order: the target's
// block list wins over the sender's.
func AuthorizeDirect(sender, target string, senderBlocked, targetBlocked []string) error {
	if lo.Contains(targetBlocked, sender) {
		return Denied(DenyBlockedByTarget)
	}
	if lo.Contains(senderBlocked, target) {
		return Denied(DenySenderHasBlockedTarget)
	}
	return nil
}

// AuthorizeGroup applies the group-message rules: members only, and
// restricted members are read-only unless they are the admin.
func AuthorizeGroup(sender string, g *Group) error {
	if !lo.Contains(g.Members, sender) {
		return Denied(DenyNotAMember)
	}
	if sender != g.AdminID && lo.Contains(g.Restricted, sender) {
		return Denied(DenyReadOnly)
	}
	return nil
}
