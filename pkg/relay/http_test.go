package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer() *Server {
	log := logrus.New()
	log.Level = logrus.PanicLevel
	return NewServer(NewRegistry(log), log)
}

func TestTriggerForwardsEvent(t *testing.T) {
	srv := testServer()
	c1 := testConn("c1")
	srv.Registry.AddConn(c1)
	srv.Registry.Subscribe(c1, "lobby", nil)

	req := httptest.NewRequest(http.MethodPost, "/trigger", strings.NewReader(
		`{"channel":"lobby","event":"room-created","data":{"id":"r1"}}`))
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())

	event := recv(t, c1).(EventMessage)
	assert.Equal(t, "room-created", event.Type)
}

func TestTriggerRejectsBadRequests(t *testing.T) {
	srv := testServer()
	for name, body := range map[string]string{
		"invalid json":    `{`,
		"missing channel": `{"event":"x"}`,
		"missing event":   `{"channel":"lobby"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/trigger", strings.NewReader(body))
		w := httptest.NewRecorder()
		srv.Routes().ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}
}

func TestTriggerAcceptsUnknownChannel(t *testing.T) {
	srv := testServer()
	req := httptest.NewRequest(http.MethodPost, "/trigger", strings.NewReader(
		`{"channel":"presence-room-ghost","event":"bot-turn"}`))
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)

	// No subscribers is normal during races; still accepted.
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealth(t *testing.T) {
	srv := testServer()
	srv.Registry.AddConn(testConn("c1"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","connections":1}`, w.Body.String())
}

func TestStatsRequiresPassword(t *testing.T) {
	srv := testServer()

	// Stats are disabled without a configured password.
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	srv.StatsPassword = "hunter2"

	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("X-Stats-Password", "wrong")
	w = httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("X-Stats-Password", "hunter2")
	w = httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "num_connections")
}
