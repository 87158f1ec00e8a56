package relay

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// TriggerRequest is the body of POST /trigger. Data is opaque to the relay
// and forwarded verbatim to subscribers.
type TriggerRequest struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// handleTrigger accepts an event from a stateless backend handler and fans
// it out to the channel's current subscribers. The 200 response means
// accepted for delivery, not delivered: delivery is fire-and-forget, and a
// channel with no subscribers is normal during races.
func (srv *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Channel == "" || req.Event == "" {
		writeError(w, "channel and event are required", http.StatusBadRequest)
		return
	}

	srv.Registry.Emit(req.Channel, req.Event, req.Data)

	srv.Log.WithFields(logrus.Fields{
		"channel": req.Channel,
		"event":   req.Event,
	}).Debug("Event accepted")

	writeJSON(w, map[string]interface{}{"success": true}, http.StatusOK)
}

func (srv *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":      "ok",
		"connections": srv.Registry.NumConns(),
	}, http.StatusOK)
}

func (srv *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if srv.StatsPassword == "" {
		writeError(w, "stats are not enabled", http.StatusNotFound)
		return
	}
	if r.Header.Get("X-Stats-Password") != srv.StatsPassword {
		writeError(w, "wrong password", http.StatusUnauthorized)
		return
	}

	writeJSON(w, srv.Registry.Stats(), http.StatusOK)
}

func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
