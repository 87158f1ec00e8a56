// Copyright © 2025 Tischnet contributors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package client

import "sync"

// State is the connection state surfaced to consumers.
type State string

// Connection states. A client starts disconnected, becomes connected when
// the handshake completes, and cycles disconnected -> reconnecting ->
// connected across transport drops.
const (
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateReconnecting State = "reconnecting"
)

// Event is a transport-level occurrence driving the state machine.
type Event string

// Events accepted by the state machine.
const (
	EventHandshakeOK   Event = "handshake_ok"
	EventTransportDown Event = "transport_down"
	EventRetrying      Event = "retrying"
)

type transitionKey struct {
	from State
	ev   Event
}

// transitions is the full table. Events missing a row are ignored in that
// state, so duplicate transport_down notifications can't double-fire
// observers.
var transitions = map[transitionKey]State{
	{StateDisconnected, EventHandshakeOK}: StateConnected,
	{StateDisconnected, EventRetrying}:    StateReconnecting,
	{StateConnected, EventTransportDown}:  StateDisconnected,
	{StateReconnecting, EventHandshakeOK}: StateConnected,
}

// StateMachine tracks connection state and notifies observers of changes.
// Observers registered after transitions have occurred are immediately told
// the current state, so late subscribers don't miss it.
type StateMachine struct {
	mu        sync.Mutex
	state     State
	observers []func(State)
}

// NewStateMachine creates a state machine in the disconnected state.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateDisconnected}
}

// State returns the current state.
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnChange registers an observer and replays the current state to it.
func (m *StateMachine) OnChange(fn func(State)) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	current := m.state
	m.mu.Unlock()

	fn(current)
}

// Apply feeds an event into the machine. Events with no transition from the
// current state are ignored. Observers are notified outside the lock, in
// registration order, once per actual state change.
func (m *StateMachine) Apply(ev Event) State {
	m.mu.Lock()
	next, ok := transitions[transitionKey{m.state, ev}]
	if !ok || next == m.state {
		current := m.state
		m.mu.Unlock()
		return current
	}
	m.state = next
	observers := make([]func(State), len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(next)
	}
	return next
}
