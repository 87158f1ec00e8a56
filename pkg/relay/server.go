// Copyright © 2025 Tischnet contributors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package relay implements the tischd connection gateway: a websocket
// presence registry plus the HTTP trigger endpoint used by stateless
// backend handlers to publish events into channels.
package relay

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
)

// Server contains state for a tischd relay server.
type Server struct {
	// TimeBetweenPings specifies the amount of time that will elapse before clients will be sent a ping.
	// If 0, no pings will be sent.
	TimeBetweenPings time.Duration

	// PingsUntilTimeout specifies the number of pings to be sent before unresponsive clients will be dropped.
	// If TimeBetweenPings is 0, this field has no effect.
	PingsUntilTimeout int

	// TLSConfig optionally provides a TLS configuration for use by ListenAndServeTLS.
	TLSConfig *tls.Config

	// StatsPassword sets the password for retrieving stats.
	StatsPassword string

	Log *logrus.Logger

	// Registry stores which connections are subscribed to which channels.
	Registry *Registry

	upgrader websocket.Upgrader
}

// NewServer creates a relay server around a registry.
func NewServer(reg *Registry, log *logrus.Logger) *Server {
	return &Server{
		Log:      log,
		Registry: reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from the game's origin, which is
			// deployed separately from the relay.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes builds the HTTP surface of the relay: the websocket upgrade, the
// trigger endpoint, health, and stats. Additional routes (the room
// lifecycle API) may be attached to the returned router.
func (srv *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/ws", srv.handleWS)
	r.Post("/trigger", srv.handleTrigger)
	r.Get("/health", srv.handleHealth)
	r.Get("/stats", srv.handleStats)
	return r
}

// ListenAndServe listens for HTTP connections and serves the relay.
func (srv *Server) ListenAndServe(addr string, handler http.Handler) error {
	srv.Log.WithFields(logrus.Fields{
		"addr":        addr,
		"tls_enabled": false,
	}).Info("Listening for incoming connections")

	httpServer := &http.Server{Addr: addr, Handler: handler}
	return errors.Wrap(httpServer.ListenAndServe(), "Listen")
}

// ListenAndServeTLS behaves just like ListenAndServe, but wraps the connection with TLS.
func (srv *Server) ListenAndServeTLS(addr string, handler http.Handler, certFile, keyFile string) error {
	if certFile == "" || keyFile == "" {
		if srv.TLSConfig == nil {
			return errors.New("No TLSConfig set in server, and no certFile/keyFile given")
		}
	}

	srv.Log.WithFields(logrus.Fields{
		"addr":        addr,
		"tls_enabled": true,
	}).Info("Listening for incoming connections")

	httpServer := &http.Server{Addr: addr, Handler: handler, TLSConfig: srv.TLSConfig}
	return errors.Wrap(httpServer.ListenAndServeTLS(certFile, keyFile), "Listen TLS")
}

// handleWS upgrades the request to a websocket connection and registers it
// with the registry.
func (srv *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.Log.WithFields(logrus.Fields{
			"remote_addr": r.RemoteAddr,
			"error":       err,
		}).Error("Error upgrading connection")
		return
	}

	c := newConn(ws, uuid.NewString(), srv.Log)
	srv.Registry.AddConn(c)

	srv.Log.WithFields(logrus.Fields{
		"conn":        c.id,
		"remote_addr": r.RemoteAddr,
	}).Info("Connected")

	var pongWait time.Duration
	if srv.TimeBetweenPings > 0 && srv.PingsUntilTimeout > 0 {
		pongWait = srv.TimeBetweenPings * time.Duration(srv.PingsUntilTimeout)
	}

	go c.writePump(srv.TimeBetweenPings)
	go c.readPump(srv.Registry, pongWait)
}
