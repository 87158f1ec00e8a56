// Copyright © 2025 Tischnet contributors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tischnet/tischd/pkg/models"
)

// Registry tracks which connections are subscribed to which channels, and
// which of them carry a member identity. It is owned by the gateway process;
// its lifetime is the process lifetime.
//
// The registry mutex only guards channel and connection existence. Each
// channel guards its own subscriber table, so traffic on one channel never
// contends with another. Lock order is always registry before channel.
type Registry struct {
	log                 *logrus.Logger
	startedAt           time.Time
	channelsMTX         sync.RWMutex // Protects channels
	channels            map[string]*channel
	maxChannels         int
	maxChannelsTime     time.Time
	numPresenceChannels int
	connsMTX            sync.RWMutex // Protects conns
	conns               map[string]*Conn
	maxConns            int
	maxConnsTime        time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logrus.Logger) *Registry {
	return &Registry{
		log:             log,
		startedAt:       time.Now(),
		channels:        make(map[string]*channel),
		maxChannelsTime: time.Now(),
		conns:           make(map[string]*Conn),
		maxConnsTime:    time.Now(),
	}
}

// AddConn registers a connection with the registry.
func (reg *Registry) AddConn(c *Conn) {
	reg.connsMTX.Lock()
	reg.conns[c.id] = c
	if len(reg.conns) > reg.maxConns {
		reg.maxConns = len(reg.conns)
		reg.maxConnsTime = time.Now()
	}
	reg.connsMTX.Unlock()
}

// NumConns returns the number of open connections.
func (reg *Registry) NumConns() int {
	reg.connsMTX.RLock()
	defer reg.connsMTX.RUnlock()
	return len(reg.conns)
}

// Subscribe adds a connection to the named channel, creating the channel if
// it doesn't already exist. If the channel is a presence channel and an
// identity is supplied, the identity is registered as a Member: existing
// subscribers are sent member_added, and the subscriber is sent
// subscription_succeeded with the full member list including itself.
//
// Subscribing twice to the same channel is idempotent.
func (reg *Registry) Subscribe(c *Conn, name string, identity *models.Member) {
	reg.channelsMTX.Lock()
	ch, existing := reg.channels[name]
	if !existing {
		ch = newChannel(name)
		reg.channels[name] = ch
		if ch.presence() {
			reg.numPresenceChannels++
		}
		if len(reg.channels) > reg.maxChannels {
			reg.maxChannels = len(reg.channels)
			reg.maxChannelsTime = time.Now()
		}
	}
	// Take the channel lock before releasing the registry lock, so the
	// channel can't be torn down between the lookup and the mutation.
	ch.subsMTX.Lock()
	reg.channelsMTX.Unlock()
	defer ch.subsMTX.Unlock()

	if _, ok := ch.subs[c.id]; ok {
		// Already subscribed. Re-send the membership snapshot so a client
		// that repeated the request still converges.
		if ch.presence() && identity != nil {
			c.trySend(newSubscriptionSucceeded(name, ch.members(), *identity))
		}
		return
	}

	if !ch.presence() || identity == nil {
		ch.subs[c.id] = &subscriber{conn: c}
		c.addChannel(name)
		return
	}

	ch.broadcast(newMemberAdded(name, *identity))
	ch.subs[c.id] = &subscriber{conn: c, member: identity}
	c.addChannel(name)
	c.trySend(newSubscriptionSucceeded(name, ch.members(), *identity))
}

// Unsubscribe removes a connection from the named channel. If the
// connection carried a member identity, remaining members are sent
// member_removed. Empty channels are removed immediately.
// Unsubscribing from a channel the connection isn't on is a no-op.
func (reg *Registry) Unsubscribe(c *Conn, name string) {
	reg.channelsMTX.RLock()
	ch, ok := reg.channels[name]
	reg.channelsMTX.RUnlock()
	if !ok {
		return
	}

	ch.subsMTX.Lock()
	sub, ok := ch.subs[c.id]
	if !ok {
		ch.subsMTX.Unlock()
		return
	}
	delete(ch.subs, c.id)
	c.removeChannel(name)
	if sub.member != nil {
		ch.broadcast(newMemberRemoved(name, *sub.member))
	}
	empty := ch.empty()
	ch.subsMTX.Unlock()

	if empty {
		reg.removeIfEmpty(ch)
	}
}

// Disconnect removes a connection from the registry and from every channel
// it subscribed to, announcing each removal individually.
func (reg *Registry) Disconnect(c *Conn) {
	for _, name := range c.takeChannels() {
		reg.Unsubscribe(c, name)
	}

	reg.connsMTX.Lock()
	delete(reg.conns, c.id)
	reg.connsMTX.Unlock()
}

// Emit delivers an event to every connection subscribed to the channel.
// Emitting to a channel with no subscribers is a silent no-op.
func (reg *Registry) Emit(name, event string, data json.RawMessage) {
	reg.channelsMTX.RLock()
	ch, ok := reg.channels[name]
	reg.channelsMTX.RUnlock()
	if !ok {
		reg.log.WithFields(logrus.Fields{
			"channel": name,
			"event":   event,
		}).Debug("Emit to channel with no subscribers")
		return
	}

	ch.Broadcast(EventMessage{Type: event, Channel: name, Data: data})
}

// removeIfEmpty deletes a channel from the registry if it still has no
// subscribers. The emptiness is re-checked under both locks, because a new
// subscriber may have raced in since the caller last looked.
func (reg *Registry) removeIfEmpty(ch *channel) {
	reg.channelsMTX.Lock()
	defer reg.channelsMTX.Unlock()
	if current, ok := reg.channels[ch.name]; !ok || current != ch {
		return
	}

	ch.subsMTX.RLock()
	empty := ch.empty()
	ch.subsMTX.RUnlock()
	if !empty {
		return
	}

	delete(reg.channels, ch.name)
	if ch.presence() {
		reg.numPresenceChannels--
	}
}

// Stats contains statistics about a running relay.
type Stats struct {
	Uptime              time.Duration `json:"uptime"`
	NumChannels         int           `json:"num_channels"`
	NumPresenceChannels int           `json:"num_presence_channels"`
	MaxChannels         int           `json:"max_channels"`
	MaxChannelsAt       time.Time     `json:"max_channels_at"`
	NumConnections      int           `json:"num_connections"`
	MaxConnections      int           `json:"max_connections"`
	MaxConnectionsAt    time.Time     `json:"max_connections_at"`
}

// Stats gets stats about the running relay.
func (reg *Registry) Stats() Stats {
	reg.connsMTX.RLock()
	reg.channelsMTX.RLock()
	defer reg.connsMTX.RUnlock()
	defer reg.channelsMTX.RUnlock()

	return Stats{
		Uptime:              time.Since(reg.startedAt),
		NumChannels:         len(reg.channels),
		NumPresenceChannels: reg.numPresenceChannels,
		MaxChannels:         reg.maxChannels,
		MaxChannelsAt:       reg.maxChannelsTime,
		NumConnections:      len(reg.conns),
		MaxConnections:      reg.maxConns,
		MaxConnectionsAt:    reg.maxConnsTime,
	}
}
