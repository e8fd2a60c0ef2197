package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	myMiddleware "quickchat/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

const defaultHistoryLimit = 100

// FriendIDLister is the slice of the user service the sidebar needs.
type FriendIDLister interface {
	GetFriendIDs(ctx context.Context, userID string) ([]string, error)
}

// Handler exposes the core over HTTP: a websocket endpoint for server
// pushed events and REST endpoints for every mutation.
type Handler struct {
	registry *Registry
	router   *Router
	tracker  *Tracker
	messages MessageStore
	friends  FriendIDLister
	validate *validator.Validate
	log      *logrus.Entry
}

func NewHandler(registry *Registry, router *Router, tracker *Tracker, messages MessageStore, friends FriendIDLister) *Handler {
	return &Handler{
		registry: registry,
		router:   router,
		tracker:  tracker,
		messages: messages,
		friends:  friends,
		validate: validator.New(),
		log:      logrus.WithField("component", "handler"),
	}
}

// ServeWs upgrades the connection and registers a session for the
// authenticated identity. Malformed identities are refused before they
// reach the registry.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	identity, ok := r.Context().Value(myMiddleware.UserKey).(string)
	if !ok || identity == "" || identity == "undefined" || identity == "null" {
		h.log.WithField("identity", identity).Warn("websocket refused: bad identity")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("upgrade failed")
		return
	}

	session := NewSession(identity)
	h.registry.Register(session)

	client := NewClient(h.registry, session, conn)
	go client.WritePump()
	go client.ReadPump()
}

type sendRequest struct {
	RequestID   string    `json:"request_id"`
	Text        string    `json:"text"`
	ImageURL    string    `json:"image_url" validate:"omitempty,url"`
	FileURL     string    `json:"file_url" validate:"omitempty,url"`
	Location    *Location `json:"location"`
	IsForwarded bool      `json:"is_forwarded"`
}

// SendToUser handles POST /api/messages/send/user/{id}.
func (h *Handler) SendToUser(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, DirectTarget(chi.URLParam(r, "id")))
}

// SendToGroup handles POST /api/messages/send/group/{id}.
func (h *Handler) SendToGroup(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, GroupTarget(chi.URLParam(r, "id")))
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request, target Target) {
	sender := identityFrom(r)

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.router.Send(r.Context(), SendRequest{
		RequestID:   req.RequestID,
		Sender:      sender,
		Target:      target,
		Payload:     Payload{Text: req.Text, ImageURL: req.ImageURL, FileURL: req.FileURL, Location: req.Location},
		IsForwarded: req.IsForwarded,
	})
	if err != nil {
		h.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg})
}

// MarkSeen handles PUT /api/messages/mark/{id}.
func (h *Handler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	viewer := identityFrom(r)
	if err := h.tracker.MarkSeen(r.Context(), chi.URLParam(r, "id"), viewer); err != nil {
		h.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type deleteRequest struct {
	DeleteType string `json:"delete_type" validate:"required,oneof=me everyone"`
}

// DeleteMessage handles DELETE /api/messages/{id}.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	viewer := identityFrom(r)
	id := chi.URLParam(r, "id")

	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	if req.DeleteType == "everyone" {
		err = h.tracker.DeleteForEveryone(r.Context(), id, viewer)
	} else {
		err = h.tracker.DeleteForSelf(r.Context(), id, viewer)
	}
	if err != nil {
		h.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// UserHistory handles GET /api/messages/user/{id}.
func (h *Handler) UserHistory(w http.ResponseWriter, r *http.Request) {
	viewer := identityFrom(r)
	msgs, err := h.messages.FindDirect(r.Context(), viewer, chi.URLParam(r, "id"), historyLimit(r))
	if err != nil {
		h.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": renderHistory(msgs)})
}

// GroupHistory handles GET /api/messages/group/{id}.
func (h *Handler) GroupHistory(w http.ResponseWriter, r *http.Request) {
	viewer := identityFrom(r)
	msgs, err := h.messages.FindGroup(r.Context(), viewer, chi.URLParam(r, "id"), historyLimit(r))
	if err != nil {
		h.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": renderHistory(msgs)})
}

// Sidebar handles GET /api/messages/users: the viewer's friends plus
// per-peer unseen counts for direct chats.
func (h *Handler) Sidebar(w http.ResponseWriter, r *http.Request) {
	viewer := identityFrom(r)
	friends, err := h.friends.GetFriendIDs(r.Context(), viewer)
	if err != nil {
		h.writeCoreError(w, err)
		return
	}

	unseen := make(map[string]int)
	for _, friend := range friends {
		n, err := h.messages.CountUnseen(r.Context(), viewer, friend)
		if err != nil {
			h.writeCoreError(w, err)
			return
		}
		if n > 0 {
			unseen[friend] = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"friends":       friends,
		"unseen_counts": unseen,
		"online":        h.registry.OnlineSet(),
	})
}

// renderHistory applies the rendering rule: tombstoned messages keep their
// place but lose their payload.
func renderHistory(msgs []*Message) []*Message {
	out := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		if m.DeletedForEveryone {
			out = append(out, m.Tombstoned())
			continue
		}
		out = append(out, m)
	}
	return out
}

func (h *Handler) writeCoreError(w http.ResponseWriter, err error) {
	if d, ok := AsDenied(err); ok {
		writeError(w, http.StatusForbidden, string(d.Reason))
		return
	}
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotParticipant):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, ErrEmptyPayload):
		writeError(w, http.StatusBadRequest, "empty payload")
	default:
		h.log.WithError(err).Error("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func identityFrom(r *http.Request) string {
	identity, _ := r.Context().Value(myMiddleware.UserKey).(string)
	return identity
}

func historyLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return defaultHistoryLimit
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}
