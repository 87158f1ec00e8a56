// Package store persists room, game session, and bot task state. Rooms and
// sessions are opaque blobs keyed by id; the room record additionally
// carries a version used for compare-and-swap writes.
package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned by PutRoom when the record's version
	// no longer matches the expected one. The caller lost a write race and
	// must re-read before retrying.
	ErrVersionConflict = errors.New("version conflict")
)

// A BotTask is a pending delayed bot kickoff for a room. At most one task
// exists per room.
type BotTask struct {
	RoomID string
	DueAt  time.Time
}

// Store is the persistence boundary of the relay. Implementations must make
// PutRoom atomic with respect to the version check.
type Store interface {
	// GetRoom returns the room blob and its current version.
	GetRoom(ctx context.Context, id string) ([]byte, int64, error)
	// PutRoom writes the room blob if its stored version still equals
	// expectedVersion. An expectedVersion of 0 creates the record, failing
	// with ErrVersionConflict if it already exists. Returns the new version.
	PutRoom(ctx context.Context, id string, data []byte, expectedVersion int64) (int64, error)
	DeleteRoom(ctx context.Context, id string) error
	// ListRooms returns all room blobs keyed by id.
	ListRooms(ctx context.Context) (map[string][]byte, error)

	GetSession(ctx context.Context, roomID string) ([]byte, error)
	PutSession(ctx context.Context, roomID string, data []byte) error

	// PutBotTask schedules or replaces the room's pending bot task.
	PutBotTask(ctx context.Context, roomID string, dueAt time.Time) error
	DeleteBotTask(ctx context.Context, roomID string) error
	// BotTasks returns every pending bot task, due or not.
	BotTasks(ctx context.Context) ([]BotTask, error)

	Close() error
}
