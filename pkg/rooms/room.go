package rooms

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// MaxPlayers is the number of seats at a table.
const MaxPlayers = 4

// Room statuses. A room is open while seats are free, full at four members,
// starting once the game session is being dealt, and deleted when the last
// member leaves. deleted is terminal and only ever observed in the response
// to the leave that emptied the room.
const (
	StatusOpen       = "open"
	StatusFull       = "full"
	StatusStarting   = "starting"
	StatusInProgress = "in_progress"
	StatusDeleted    = "deleted"
)

var (
	// ErrRoomNotFound is returned for operations on unknown room ids.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull rejects a join when all seats are taken.
	ErrRoomFull = errors.New("room is full")
	// ErrPlayerNotFound rejects leave/ready for players not at the table.
	ErrPlayerNotFound = errors.New("player not in room")
	// ErrNotEnoughPlayers rejects start before all seats are taken.
	ErrNotEnoughPlayers = errors.New("room does not have enough players")
	// ErrAlreadyStarted rejects start/join/addBots once the game is underway.
	ErrAlreadyStarted = errors.New("game already started")
)

// A Player occupies a seat in a room.
type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
	Bot   bool   `json:"bot,omitempty"`
}

// A Room is a table of up to four players prior to game start. The version
// is the store's compare-and-swap token and never leaves the server.
type Room struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []Player `json:"members"`
	Status  string   `json:"status"`

	version int64
}

func (r *Room) hasPlayer(playerID string) bool {
	for _, p := range r.Members {
		if p.ID == playerID {
			return true
		}
	}
	return false
}

func (r *Room) hasBots() bool {
	for _, p := range r.Members {
		if p.Bot {
			return true
		}
	}
	return false
}

func (r *Room) started() bool {
	return r.Status == StatusStarting || r.Status == StatusInProgress
}

func (r *Room) marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	return data, errors.Wrap(err, "Marshal room")
}

func unmarshalRoom(data []byte, version int64) (*Room, error) {
	var room Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, errors.Wrap(err, "Unmarshal room")
	}
	room.version = version
	return &room, nil
}
