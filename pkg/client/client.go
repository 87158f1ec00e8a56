// Copyright © 2025 Tischnet contributors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package client is the Go client for the relay: it maintains a websocket
// to the gateway, tracks connection state through drops and retries, and
// re-establishes subscriptions after a reconnect so consumers only ever
// re-derive state, never re-subscribe by hand.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultBackoffMin = 500 * time.Millisecond
	defaultBackoffMax = 30 * time.Second
)

// Identity names a subscriber on presence channels. Zero value means the
// subscription is anonymous: the member list excludes it.
type Identity struct {
	PlayerID   string
	PlayerName string
}

// Handler receives events delivered on a subscribed channel.
type Handler func(event string, data json.RawMessage)

// clientMessage is the wire form of subscribe/unsubscribe requests.
type clientMessage struct {
	Type       string `json:"type"`
	Channel    string `json:"channel"`
	PlayerID   string `json:"playerId,omitempty"`
	PlayerName string `json:"playerName,omitempty"`
}

// serverMessage is the envelope of everything the relay sends.
type serverMessage struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// Manager owns one websocket to the relay. It is safe for concurrent use.
type Manager struct {
	url        string
	log        *logrus.Logger
	fsm        *StateMachine
	dialer     *websocket.Dialer
	backoffMin time.Duration
	backoffMax time.Duration

	mu          sync.Mutex
	ws          *websocket.Conn
	subs        map[string]Identity
	handlers    map[string][]Handler
	onReconnect func()
	closed      bool
}

// New creates a client for the relay at url, e.g. "ws://127.0.0.1:8737/ws".
func New(url string, log *logrus.Logger) *Manager {
	return &Manager{
		url:        url,
		log:        log,
		fsm:        NewStateMachine(),
		dialer:     websocket.DefaultDialer,
		backoffMin: defaultBackoffMin,
		backoffMax: defaultBackoffMax,
		subs:       make(map[string]Identity),
		handlers:   make(map[string][]Handler),
	}
}

// States returns the connection state machine, for observing transitions.
func (m *Manager) States() *StateMachine {
	return m.fsm
}

// OnReconnect registers a hook invoked after each successful reconnect,
// once subscriptions have been re-established. Consumers use it to re-derive
// any state they may have missed while disconnected.
func (m *Manager) OnReconnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnect = fn
}

// Connect dials the relay. The first dial is not retried: a relay that's
// down at startup is an error the caller should see. Once connected, drops
// are retried with capped exponential backoff until Close.
func (m *Manager) Connect(ctx context.Context) error {
	ws, _, err := m.dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return errors.Wrap(err, "Dial relay")
	}

	m.mu.Lock()
	m.ws = ws
	subs := make(map[string]Identity, len(m.subs))
	for ch, id := range m.subs {
		subs[ch] = id
	}
	m.mu.Unlock()

	m.fsm.Apply(EventHandshakeOK)
	m.sendSubscriptions(subs)
	go m.readLoop(ws)
	return nil
}

func (m *Manager) sendSubscriptions(subs map[string]Identity) {
	for ch, id := range subs {
		if err := m.send(clientMessage{
			Type:       "subscribe",
			Channel:    ch,
			PlayerID:   id.PlayerID,
			PlayerName: id.PlayerName,
		}); err != nil {
			m.log.WithFields(logrus.Fields{
				"channel": ch,
				"error":   err,
			}).Warn("Error subscribing")
		}
	}
}

// Subscribe joins a channel. On presence channels a non-zero identity adds
// the client to the member list; a zero identity observes silently.
// Subscriptions survive reconnects.
func (m *Manager) Subscribe(channel string, identity Identity) error {
	m.mu.Lock()
	m.subs[channel] = identity
	ws := m.ws
	m.mu.Unlock()

	if ws == nil {
		return nil
	}
	return m.send(clientMessage{
		Type:       "subscribe",
		Channel:    channel,
		PlayerID:   identity.PlayerID,
		PlayerName: identity.PlayerName,
	})
}

// Unsubscribe leaves a channel and stops resubscribing to it.
func (m *Manager) Unsubscribe(channel string) error {
	m.mu.Lock()
	delete(m.subs, channel)
	ws := m.ws
	m.mu.Unlock()

	if ws == nil {
		return nil
	}
	return m.send(clientMessage{Type: "unsubscribe", Channel: channel})
}

// OnEvent registers a handler for events on a channel. Handlers receive
// relay-forwarded events and membership notifications alike, and run on the
// read loop goroutine.
func (m *Manager) OnEvent(channel string, fn Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[channel] = append(m.handlers[channel], fn)
}

// Close shuts the connection down for good. No reconnect is attempted.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	ws := m.ws
	m.ws = nil
	m.mu.Unlock()

	if ws != nil {
		return ws.Close()
	}
	return nil
}

// send writes a message under the connection lock. Gorilla permits a single
// concurrent writer, and both Subscribe and the reconnect loop write.
func (m *Manager) send(msg clientMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ws == nil {
		return errors.New("not connected")
	}
	return errors.Wrap(m.ws.WriteJSON(msg), "Write message")
}

func (m *Manager) readLoop(ws *websocket.Conn) {
	for {
		var msg serverMessage
		if err := ws.ReadJSON(&msg); err != nil {
			m.mu.Lock()
			closed := m.closed
			m.mu.Unlock()
			if closed {
				m.fsm.Apply(EventTransportDown)
				return
			}

			m.log.WithField("error", err).Warn("Relay connection lost")
			m.fsm.Apply(EventTransportDown)
			m.reconnectLoop()
			return
		}
		m.dispatch(msg)
	}
}

func (m *Manager) dispatch(msg serverMessage) {
	if msg.Channel == "" {
		return
	}
	m.mu.Lock()
	handlers := make([]Handler, len(m.handlers[msg.Channel]))
	copy(handlers, m.handlers[msg.Channel])
	m.mu.Unlock()

	for _, fn := range handlers {
		fn(msg.Type, msg.Data)
	}
}

// reconnectLoop redials with capped exponential backoff until it succeeds
// or the client is closed, then re-establishes every subscription and runs
// the reconnect hook.
func (m *Manager) reconnectLoop() {
	backoff := m.backoffMin
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		m.fsm.Apply(EventRetrying)
		time.Sleep(backoff)
		backoff *= 2
		if backoff > m.backoffMax {
			backoff = m.backoffMax
		}

		ws, _, err := m.dialer.Dial(m.url, nil)
		if err != nil {
			m.log.WithField("error", err).Debug("Reconnect attempt failed")
			continue
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			ws.Close()
			return
		}
		m.ws = ws
		subs := make(map[string]Identity, len(m.subs))
		for ch, id := range m.subs {
			subs[ch] = id
		}
		onReconnect := m.onReconnect
		m.mu.Unlock()

		m.fsm.Apply(EventHandshakeOK)
		m.sendSubscriptions(subs)
		if onReconnect != nil {
			onReconnect()
		}

		m.log.Info("Reconnected to relay")
		go m.readLoop(ws)
		return
	}
}
