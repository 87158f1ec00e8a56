package rooms

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// actionRequest is the wire form of every lifecycle operation. Which fields
// are required depends on the action.
type actionRequest struct {
	Action     string `json:"action"`
	RoomID     string `json:"roomId"`
	Name       string `json:"name"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Ready      *bool  `json:"ready"`
}

// Handler exposes the lifecycle manager over HTTP.
type Handler struct {
	manager *Manager
	log     *logrus.Logger
}

// NewHandler creates an HTTP handler for room actions.
func NewHandler(manager *Manager, log *logrus.Logger) *Handler {
	return &Handler{manager: manager, log: log}
}

// Register attaches the lifecycle routes to the relay's router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/rooms", h.handleAction)
	r.Get("/rooms", h.handleList)
	r.Get("/rooms/{roomID}", h.handleGet)
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	var room *Room
	var err error

	switch req.Action {
	case "create":
		if req.Name == "" || req.PlayerID == "" {
			writeError(w, http.StatusBadRequest, "create requires name and playerId")
			return
		}
		room, err = h.manager.Create(ctx, req.Name, req.PlayerID, req.PlayerName)
	case "join":
		if req.RoomID == "" || req.PlayerID == "" {
			writeError(w, http.StatusBadRequest, "join requires roomId and playerId")
			return
		}
		room, err = h.manager.Join(ctx, req.RoomID, req.PlayerID, req.PlayerName)
	case "leave":
		if req.RoomID == "" || req.PlayerID == "" {
			writeError(w, http.StatusBadRequest, "leave requires roomId and playerId")
			return
		}
		room, err = h.manager.Leave(ctx, req.RoomID, req.PlayerID)
	case "ready":
		if req.RoomID == "" || req.PlayerID == "" || req.Ready == nil {
			writeError(w, http.StatusBadRequest, "ready requires roomId, playerId and ready")
			return
		}
		room, err = h.manager.SetReady(ctx, req.RoomID, req.PlayerID, *req.Ready)
	case "addBots":
		if req.RoomID == "" {
			writeError(w, http.StatusBadRequest, "addBots requires roomId")
			return
		}
		room, err = h.manager.AddBots(ctx, req.RoomID)
	case "start":
		if req.RoomID == "" {
			writeError(w, http.StatusBadRequest, "start requires roomId")
			return
		}
		room, err = h.manager.Start(ctx, req.RoomID)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}

	if err != nil {
		h.writeActionError(w, req.Action, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.manager.List(r.Context())
	if err != nil {
		h.log.WithField("error", err).Error("Error listing rooms")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	room, err := h.manager.Get(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		h.writeActionError(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// writeActionError maps lifecycle errors onto the three statuses clients
// handle: 404 for unknown rooms, 400 for rule violations, 500 otherwise.
func (h *Handler) writeActionError(w http.ResponseWriter, action string, err error) {
	switch errors.Cause(err) {
	case ErrRoomNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case ErrRoomFull, ErrPlayerNotFound, ErrNotEnoughPlayers, ErrAlreadyStarted:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.WithFields(logrus.Fields{
			"action": action,
			"error":  err,
		}).Error("Room action failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
