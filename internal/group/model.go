package group

import "time"

type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	AdminID     string    `json:"admin_id"`
	Members     []string  `json:"members"`
	Restricted  []string  `json:"restricted,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsMember reports whether id is on the roster.
func (g *Group) IsMember(id string) bool {
	for _, m := range g.Members {
		if m == id {
			return true
		}
	}
	return false
}

type CreateRequest struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	Members     []string `json:"members" validate:"required,min=1"`
}

type MemberRequest struct {
	GroupID string `json:"group_id" validate:"required"`
	UserID  string `json:"user_id" validate:"required"`
}

type PermissionRequest struct {
	GroupID string `json:"group_id" validate:"required"`
	Action  string `json:"action" validate:"required,oneof=restrict unrestrict"`
}
