package user

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	myMiddleware "quickchat/internal/middleware"
)

type Handler struct {
	Service  *Service
	validate *validator.Validate
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s, validate: validator.New()}
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.Service.Signup(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "access_token": res.AccessToken, "user": res.User})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.Service.Login(r.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "access_token": res.AccessToken, "user": res.User})
}

// Check returns the authenticated user's own record.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value(myMiddleware.UserKey).(string)
	u, err := h.Service.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": u})
}

func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "users": users})
}

type relationRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func (h *Handler) AddFriend(w http.ResponseWriter, r *http.Request) {
	h.relation(w, r, h.Service.AddFriend)
}

func (h *Handler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	h.relation(w, r, h.Service.RemoveFriend)
}

func (h *Handler) Block(w http.ResponseWriter, r *http.Request) {
	h.relation(w, r, h.Service.Block)
}

func (h *Handler) Unblock(w http.ResponseWriter, r *http.Request) {
	h.relation(w, r, h.Service.Unblock)
}

// relation handles the shared shape of add/remove friend and block/unblock.
func (h *Handler) relation(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID, otherID string) error) {
	userID, _ := r.Context().Value(myMiddleware.UserKey).(string)

	var req relationRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UserID == userID {
		writeError(w, http.StatusBadRequest, "cannot target yourself")
		return
	}

	if err := op(r.Context(), userID, req.UserID); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
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

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}
