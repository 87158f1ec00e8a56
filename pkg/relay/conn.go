package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/tischnet/tischd/pkg/models"
)

const sendBuffSize = 32 // Buffer size of channel for sending messages to clients

// Conn represents one client connection on the gateway. It owns the set of
// channel names the connection subscribed to; the set lives only as long as
// the transport session.
type Conn struct {
	id        string
	ws        *websocket.Conn
	send      chan models.Message
	done      chan struct{} // Closed when the connection is finished
	closeOnce sync.Once
	log       logrus.FieldLogger

	channelsMTX sync.Mutex // Protects channels
	channels    map[string]struct{}
}

func newConn(ws *websocket.Conn, id string, log logrus.FieldLogger) *Conn {
	return &Conn{
		id:       id,
		ws:       ws,
		send:     make(chan models.Message, sendBuffSize),
		done:     make(chan struct{}),
		log:      log,
		channels: make(map[string]struct{}),
	}
}

// ID returns the connection's identifier.
func (c *Conn) ID() string {
	return c.id
}

// trySend queues a message for delivery to the client. If the client's send
// buffer is full the message is dropped, so a slow consumer can never block
// the registry.
func (c *Conn) trySend(msg models.Message) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.log.WithFields(logrus.Fields{
			"conn": c.id,
			"type": msg.Message(),
		}).Warn("Send buffer full, dropping message")
	}
}

func (c *Conn) addChannel(name string) {
	c.channelsMTX.Lock()
	c.channels[name] = struct{}{}
	c.channelsMTX.Unlock()
}

func (c *Conn) removeChannel(name string) {
	c.channelsMTX.Lock()
	delete(c.channels, name)
	c.channelsMTX.Unlock()
}

// takeChannels returns and clears the connection's subscription set.
func (c *Conn) takeChannels() []string {
	c.channelsMTX.Lock()
	defer c.channelsMTX.Unlock()
	names := make([]string, 0, len(c.channels))
	for name := range c.channels {
		names = append(names, name)
	}
	c.channels = make(map[string]struct{})
	return names
}

// stop closes the connection. stop is idempotent.
func (c *Conn) stop() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// readPump reads client requests and routes them to the registry. Malformed
// requests are answered with an error message; they never terminate the
// connection. The pump exits when the transport drops, unsubscribing the
// connection from every channel it held.
func (c *Conn) readPump(reg *Registry, pongWait time.Duration) {
	defer func() {
		reg.Disconnect(c)
		c.stop()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	if pongWait > 0 {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithFields(logrus.Fields{
					"conn":  c.id,
					"error": err,
				}).Debug("Read error")
			}
			return
		}
		c.handle(reg, msg)
	}
}

func (c *Conn) handle(reg *Registry, msg ClientMessage) {
	switch msg.Type {
	case "subscribe":
		if msg.Channel == "" {
			c.trySend(models.NewErrorMessage("no channel specified"))
			return
		}
		var identity *models.Member
		if msg.PlayerID != "" {
			identity = &models.Member{
				ID:           msg.PlayerID,
				Name:         msg.PlayerName,
				ConnectionID: c.id,
			}
		}
		reg.Subscribe(c, msg.Channel, identity)

	case "unsubscribe":
		if msg.Channel == "" {
			c.trySend(models.NewErrorMessage("no channel specified"))
			return
		}
		reg.Unsubscribe(c, msg.Channel)

	default:
		c.trySend(models.NewErrorMessage("type unknown"))
	}
}

// writePump serializes queued messages to the client and keeps the
// connection alive with pings. If pingPeriod is 0, no pings are sent.
func (c *Conn) writePump(pingPeriod time.Duration) {
	var pings <-chan time.Time
	if pingPeriod > 0 {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		pings = ticker.C
	}
	defer c.stop()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.log.WithFields(logrus.Fields{
					"conn":  c.id,
					"error": err,
				}).Debug("Write error")
				return
			}

		case <-pings:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
