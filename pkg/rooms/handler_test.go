package rooms

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHandler(t *testing.T) (*Handler, *Manager) {
	t.Helper()
	m, _, _ := testManager(t)
	log := logrus.New()
	log.Level = logrus.PanicLevel
	return NewHandler(m, log), m
}

func doAction(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	h.Register(r)
	req := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlerCreateAndJoin(t *testing.T) {
	h, _ := testHandler(t)

	w := doAction(t, h, `{"action":"create","name":"Tisch","playerId":"p1","playerName":"Sepp"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var room Room
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &room))
	assert.Equal(t, "Tisch", room.Name)
	assert.Equal(t, StatusOpen, room.Status)

	w = doAction(t, h, fmt.Sprintf(`{"action":"join","roomId":"%s","playerId":"p2","playerName":"Mia"}`, room.ID))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &room))
	assert.Len(t, room.Members, 2)
}

func TestHandlerValidation(t *testing.T) {
	h, _ := testHandler(t)

	for name, body := range map[string]string{
		"invalid json":         `{`,
		"unknown action":       `{"action":"dance"}`,
		"create without name":  `{"action":"create","playerId":"p1"}`,
		"join without player":  `{"action":"join","roomId":"r1"}`,
		"ready without flag":   `{"action":"ready","roomId":"r1","playerId":"p1"}`,
		"start without room":   `{"action":"start"}`,
		"leave without room":   `{"action":"leave","playerId":"p1"}`,
		"addBots without room": `{"action":"addBots"}`,
	} {
		w := doAction(t, h, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}
}

func TestHandlerErrorMapping(t *testing.T) {
	h, m := testHandler(t)

	// Unknown rooms are 404.
	w := doAction(t, h, `{"action":"join","roomId":"nope","playerId":"p1"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Rule violations are 400.
	room, err := m.Create(httptest.NewRequest("GET", "/", nil).Context(), "Tisch", "p1", "Sepp")
	require.NoError(t, err)

	w = doAction(t, h, fmt.Sprintf(`{"action":"start","roomId":"%s"}`, room.ID))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doAction(t, h, fmt.Sprintf(`{"action":"leave","roomId":"%s","playerId":"stranger"}`, room.ID))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerListAndGet(t *testing.T) {
	h, m := testHandler(t)
	ctx := httptest.NewRequest("GET", "/", nil).Context()

	room, err := m.Create(ctx, "Tisch", "p1", "Sepp")
	require.NoError(t, err)

	r := chi.NewRouter()
	h.Register(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var rooms []Room
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, room.ID, rooms[0].ID)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms/"+room.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
