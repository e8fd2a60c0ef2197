package group

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	myMiddleware "quickchat/internal/middleware"
)

type Handler struct {
	repo     *Repository
	validate *validator.Validate
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo, validate: validator.New()}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	admin, _ := r.Context().Value(myMiddleware.UserKey).(string)

	var req CreateRequest
	if !h.decode(w, r, &req) {
		return
	}

	g, err := h.repo.Create(r.Context(), &Group{
		Name:        req.Name,
		Description: req.Description,
		AdminID:     admin,
		Members:     req.Members,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "group": g})
}

func (h *Handler) MyGroups(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value(myMiddleware.UserKey).(string)
	groups, err := h.repo.GetForUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "groups": groups})
}

func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value(myMiddleware.UserKey).(string)
	g, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	if !g.IsMember(userID) {
		writeError(w, http.StatusForbidden, "not a member")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "group": g})
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	h.memberOp(w, r, func(ctx context.Context, g *Group, userID string) error {
		return h.repo.AddMember(ctx, g.ID, userID)
	})
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	h.memberOp(w, r, func(ctx context.Context, g *Group, userID string) error {
		if userID == g.AdminID {
			return errors.New("cannot remove the admin")
		}
		return h.repo.RemoveMember(ctx, g.ID, userID)
	})
}

// TogglePermission flips one member's read-only restriction. Admin only;
// the admin can never be restricted.
func (h *Handler) TogglePermission(w http.ResponseWriter, r *http.Request) {
	h.memberOp(w, r, func(ctx context.Context, g *Group, userID string) error {
		if userID == g.AdminID {
			return errors.New("cannot restrict the admin")
		}
		restricted := false
		for _, id := range g.Restricted {
			if id == userID {
				restricted = true
				break
			}
		}
		return h.repo.SetRestricted(ctx, g.ID, userID, !restricted)
	})
}

// ToggleAllPermissions restricts or unrestricts the whole roster at once.
func (h *Handler) ToggleAllPermissions(w http.ResponseWriter, r *http.Request) {
	admin, _ := r.Context().Value(myMiddleware.UserKey).(string)

	var req PermissionRequest
	if !h.decode(w, r, &req) {
		return
	}

	g, err := h.repo.Get(r.Context(), req.GroupID)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	if g.AdminID != admin {
		writeError(w, http.StatusForbidden, "only admin can change permissions")
		return
	}

	if req.Action == "restrict" {
		err = h.repo.RestrictAll(r.Context(), g.ID)
	} else {
		err = h.repo.UnrestrictAll(r.Context(), g.ID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// memberOp handles the shared shape of the admin-only roster mutations.
func (h *Handler) memberOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, g *Group, userID string) error) {
	admin, _ := r.Context().Value(myMiddleware.UserKey).(string)

	var req MemberRequest
	if !h.decode(w, r, &req) {
		return
	}

	g, err := h.repo.Get(r.Context(), req.GroupID)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	if g.AdminID != admin {
		writeError(w, http.StatusForbidden, "only admin can manage members")
		return
	}

	if err := op(r.Context(), g, req.UserID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.repo.Get(r.Context(), g.ID)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "group": updated})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) writeRepoError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "group not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}
