// Copyright © 2025 Tischnet contributors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package rooms implements the table lifecycle: create, join, leave, ready,
// addBots, and start. The persisted room record is authoritative; lifecycle
// transitions are announced through the trigger relay on a best-effort
// basis and are never rolled back when the announcement fails.
package rooms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tischnet/tischd/pkg/game"
	"github.com/tischnet/tischd/pkg/models"
	"github.com/tischnet/tischd/pkg/store"
)

// Lifecycle event names, published to the lobby or room channel.
const (
	EventRoomCreated  = "room-created"
	EventRoomUpdated  = "room-updated"
	EventRoomDeleted  = "room-deleted"
	EventPlayerJoined = "player-joined"
	EventPlayerLeft   = "player-left"
	EventPlayerReady  = "player-ready"
	EventGameStarting = "game-starting"
)

// Publisher pushes events to the trigger relay.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, data interface{}) error
}

// Scheduler arms a delayed bot kickoff for a room.
type Scheduler interface {
	Schedule(ctx context.Context, roomID string, delay time.Duration) error
}

// Manager validates and mutates persisted room state. Operations on the
// same room are serialized by a per-room lock on top of the store's
// compare-and-swap, so two joins racing for the last seat can never both
// win; operations on different rooms never contend.
type Manager struct {
	store    store.Store
	pub      Publisher
	games    *game.Service
	sched    Scheduler
	botDelay time.Duration
	log      *logrus.Logger

	locksMTX sync.Mutex // Protects locks
	locks    map[string]*sync.Mutex
}

// NewManager creates a room lifecycle manager.
func NewManager(st store.Store, pub Publisher, games *game.Service, sched Scheduler, botDelay time.Duration, log *logrus.Logger) *Manager {
	return &Manager{
		store:    st,
		pub:      pub,
		games:    games,
		sched:    sched,
		botDelay: botDelay,
		log:      log,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockRoom acquires the room's critical section and returns its release.
func (m *Manager) lockRoom(roomID string) func() {
	m.locksMTX.Lock()
	lock, ok := m.locks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[roomID] = lock
	}
	m.locksMTX.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (m *Manager) load(ctx context.Context, roomID string) (*Room, error) {
	data, version, err := m.store.GetRoom(ctx, roomID)
	if errors.Cause(err) == store.ErrNotFound {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "Load room")
	}
	return unmarshalRoom(data, version)
}

func (m *Manager) save(ctx context.Context, room *Room) error {
	data, err := room.marshal()
	if err != nil {
		return err
	}
	version, err := m.store.PutRoom(ctx, room.ID, data, room.version)
	if err != nil {
		return err
	}
	room.version = version
	return nil
}

// publish announces a transition. Failures are logged and swallowed: the
// persisted state is authoritative, and clients re-derive on reconnect.
func (m *Manager) publish(ctx context.Context, channel, event string, data interface{}) {
	if err := m.pub.Publish(ctx, channel, event, data); err != nil {
		m.log.WithFields(logrus.Fields{
			"channel": channel,
			"event":   event,
			"error":   err,
		}).Warn("Error publishing lifecycle event")
	}
}

// Create allocates a room with the creator as sole member.
func (m *Manager) Create(ctx context.Context, name, creatorID, creatorName string) (*Room, error) {
	room := &Room{
		ID:      uuid.NewString(),
		Name:    name,
		Members: []Player{{ID: creatorID, Name: creatorName}},
		Status:  StatusOpen,
	}
	if err := m.save(ctx, room); err != nil {
		return nil, err
	}

	m.publish(ctx, models.LobbyChannel, EventRoomCreated, room)
	m.log.WithFields(logrus.Fields{
		"room":    room.ID,
		"name":    name,
		"creator": creatorID,
	}).Info("Room created")
	return room, nil
}

// Get returns the current room state.
func (m *Manager) Get(ctx context.Context, roomID string) (*Room, error) {
	return m.load(ctx, roomID)
}

// List returns all rooms, for the lobby directory.
func (m *Manager) List(ctx context.Context) ([]*Room, error) {
	blobs, err := m.store.ListRooms(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "List rooms")
	}
	rooms := make([]*Room, 0, len(blobs))
	for _, data := range blobs {
		room, err := unmarshalRoom(data, 0)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// Join seats a player at the table. Joining a room the player is already in
// is idempotent and never creates a duplicate seat. Joining a full room
// fails; of two joins racing for the last seat, exactly one succeeds.
func (m *Manager) Join(ctx context.Context, roomID, playerID, playerName string) (*Room, error) {
	defer m.lockRoom(roomID)()

	room, err := m.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.hasPlayer(playerID) {
		return room, nil
	}
	if len(room.Members) >= MaxPlayers {
		return nil, ErrRoomFull
	}

	room.Members = append(room.Members, Player{ID: playerID, Name: playerName})
	if len(room.Members) == MaxPlayers {
		room.Status = StatusFull
	}
	if err := m.save(ctx, room); err != nil {
		return nil, err
	}

	m.publish(ctx, models.LobbyChannel, EventRoomUpdated, room)
	m.publish(ctx, models.RoomChannel(roomID), EventPlayerJoined, map[string]interface{}{
		"room":   room,
		"player": room.Members[len(room.Members)-1],
	})
	return room, nil
}

// Leave removes a player from the table. When the last member leaves, the
// room is deleted and the lobby is told room-deleted, never room-updated.
func (m *Manager) Leave(ctx context.Context, roomID, playerID string) (*Room, error) {
	defer m.lockRoom(roomID)()

	room, err := m.load(ctx, roomID)
	if err != nil {
		return nil, err
	}

	found := false
	for i, p := range room.Members {
		if p.ID == playerID {
			room.Members = append(room.Members[:i], room.Members[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return nil, ErrPlayerNotFound
	}

	if len(room.Members) == 0 {
		if err := m.store.DeleteRoom(ctx, roomID); err != nil {
			return nil, errors.Wrap(err, "Delete room")
		}
		room.Status = StatusDeleted
		m.publish(ctx, models.LobbyChannel, EventRoomDeleted, map[string]interface{}{"id": roomID})
		m.log.WithFields(logrus.Fields{
			"room": roomID,
		}).Info("Room deleted")
		return room, nil
	}

	if room.Status == StatusFull {
		room.Status = StatusOpen
	}
	if err := m.save(ctx, room); err != nil {
		return nil, err
	}

	m.publish(ctx, models.LobbyChannel, EventRoomUpdated, room)
	m.publish(ctx, models.RoomChannel(roomID), EventPlayerLeft, map[string]interface{}{
		"room":     room,
		"playerId": playerID,
	})
	return room, nil
}

// SetReady toggles a member's ready flag.
func (m *Manager) SetReady(ctx context.Context, roomID, playerID string, ready bool) (*Room, error) {
	defer m.lockRoom(roomID)()

	room, err := m.load(ctx, roomID)
	if err != nil {
		return nil, err
	}

	found := false
	for i := range room.Members {
		if room.Members[i].ID == playerID {
			room.Members[i].Ready = ready
			found = true
			break
		}
	}
	if !found {
		return nil, ErrPlayerNotFound
	}

	if err := m.save(ctx, room); err != nil {
		return nil, err
	}

	m.publish(ctx, models.RoomChannel(roomID), EventPlayerReady, map[string]interface{}{
		"room":     room,
		"playerId": playerID,
		"ready":    ready,
	})
	return room, nil
}

// AddBots fills the remaining seats with autonomous players.
func (m *Manager) AddBots(ctx context.Context, roomID string) (*Room, error) {
	defer m.lockRoom(roomID)()

	room, err := m.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.started() {
		return nil, ErrAlreadyStarted
	}
	if len(room.Members) >= MaxPlayers {
		return room, nil
	}

	// Seat numbers restart at 1, skipping ids still seated from an earlier
	// fill, so bots added after a leave never collide with surviving bots.
	for seat := 1; len(room.Members) < MaxPlayers; seat++ {
		id := fmt.Sprintf("bot-%s-%d", roomID, seat)
		if room.hasPlayer(id) {
			continue
		}
		room.Members = append(room.Members, Player{
			ID:    id,
			Name:  fmt.Sprintf("Bot %d", seat),
			Ready: true,
			Bot:   true,
		})
	}
	room.Status = StatusFull
	if err := m.save(ctx, room); err != nil {
		return nil, err
	}

	m.publish(ctx, models.LobbyChannel, EventRoomUpdated, room)
	m.publish(ctx, models.RoomChannel(roomID), EventRoomUpdated, room)
	return room, nil
}

// Start transitions a full room into a game. It creates the external game
// session keyed by the room id and announces game-starting with the initial
// snapshot. When the table has autonomous players, a bot kickoff is
// scheduled after the configured pacing delay.
func (m *Manager) Start(ctx context.Context, roomID string) (*Room, error) {
	defer m.lockRoom(roomID)()

	room, err := m.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.started() {
		return nil, ErrAlreadyStarted
	}
	if len(room.Members) != MaxPlayers {
		return nil, ErrNotEnoughPlayers
	}

	players := make([]game.Player, len(room.Members))
	for i, p := range room.Members {
		players[i] = game.Player{ID: p.ID, Name: p.Name, Bot: p.Bot}
	}
	session, err := m.games.Create(ctx, roomID, players)
	if err != nil {
		return nil, errors.Wrap(err, "Create game session")
	}

	room.Status = StatusStarting
	if err := m.save(ctx, room); err != nil {
		return nil, err
	}

	m.publish(ctx, models.RoomChannel(roomID), EventGameStarting, session)

	if room.hasBots() {
		if err := m.sched.Schedule(ctx, roomID, m.botDelay); err != nil {
			// The kickoff can be re-triggered from a later state read, so a
			// scheduling failure doesn't fail the start.
			m.log.WithFields(logrus.Fields{
				"room":  roomID,
				"error": err,
			}).Warn("Error scheduling bot kickoff")
		}
	}

	m.log.WithFields(logrus.Fields{
		"room":    roomID,
		"session": session.ID,
	}).Info("Game starting")
	return room, nil
}
