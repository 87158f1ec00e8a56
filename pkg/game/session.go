// Package game owns the boundary to the card game engine: it creates game
// sessions when a table starts and kicks off autonomous players. The rules
// of the game itself live elsewhere.
package game

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tischnet/tischd/pkg/models"
	"github.com/tischnet/tischd/pkg/store"
)

// A Player occupies a seat in a session.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Bot  bool   `json:"bot"`
	Seat int    `json:"seat"`
}

// Session is the initial snapshot of a started game, keyed by the room that
// spawned it. Clients receiving game-starting render it before any play
// happens.
type Session struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Status    string    `json:"status"`
	Players   []Player  `json:"players"`
	StartedAt time.Time `json:"startedAt"`
}

// Publisher pushes events to the trigger relay.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, data interface{}) error
}

// Service creates sessions and drives bot kickoff.
type Service struct {
	store store.Store
	pub   Publisher
	log   *logrus.Logger
}

// NewService creates a game service.
func NewService(st store.Store, pub Publisher, log *logrus.Logger) *Service {
	return &Service{store: st, pub: pub, log: log}
}

// Create deals a new session for a started room and persists it keyed by
// the room id. Seats are assigned in join order.
func (s *Service) Create(ctx context.Context, roomID string, players []Player) (*Session, error) {
	session := &Session{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Status:    "dealing",
		Players:   make([]Player, len(players)),
		StartedAt: time.Now().UTC(),
	}
	for i, p := range players {
		p.Seat = i
		session.Players[i] = p
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, errors.Wrap(err, "Marshal session")
	}
	if err := s.store.PutSession(ctx, roomID, data); err != nil {
		return nil, errors.Wrap(err, "Persist session")
	}
	return session, nil
}

// Get loads the session for a room.
func (s *Service) Get(ctx context.Context, roomID string) (*Session, error) {
	data, err := s.store.GetSession(ctx, roomID)
	if err != nil {
		return nil, errors.Wrap(err, "Load session")
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, errors.Wrap(err, "Unmarshal session")
	}
	return &session, nil
}

// KickBots is the bot decision entry point. It announces to the room that
// its autonomous players may act, by publishing a bot-turn event with the
// current session snapshot. Duplicate invocations are harmless: clients
// treat the event as "re-derive state", so KickBots may be re-triggered
// from any later state read if the scheduled kickoff was lost.
func (s *Service) KickBots(ctx context.Context, roomID string) error {
	session, err := s.Get(ctx, roomID)
	if err != nil {
		return err
	}

	hasBots := false
	for _, p := range session.Players {
		if p.Bot {
			hasBots = true
			break
		}
	}
	if !hasBots {
		s.log.WithFields(logrus.Fields{
			"room": roomID,
		}).Debug("No bots in session, nothing to kick")
		return nil
	}

	if err := s.pub.Publish(ctx, models.RoomChannel(roomID), "bot-turn", session); err != nil {
		return errors.Wrap(err, "Publish bot-turn")
	}

	s.log.WithFields(logrus.Fields{
		"room":    roomID,
		"session": session.ID,
	}).Info("Bot kickoff published")
	return nil
}
