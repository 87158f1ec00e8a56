// Copyright © 2025 Tischnet contributors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	_ "modernc.org/sqlite" // database/sql driver
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id      TEXT PRIMARY KEY,
	data    BLOB NOT NULL,
	version INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS game_sessions (
	room_id    TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS bot_tasks (
	room_id    TEXT PRIMARY KEY,
	due_at     INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
`

// SQLite persists relay state in a SQLite database file, so pending bot
// tasks and room records survive a process restart.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the store at path.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "Open store")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "Ping store")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "Create schema")
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) GetRoom(ctx context.Context, id string) ([]byte, int64, error) {
	var data []byte
	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT data, version FROM rooms WHERE id = ?`, id).Scan(&data, &version)
	if err == sql.ErrNoRows {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, errors.Wrap(err, "Get room")
	}
	return data, version, nil
}

func (s *SQLite) PutRoom(ctx context.Context, id string, data []byte, expectedVersion int64) (int64, error) {
	if expectedVersion == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO rooms (id, data, version) VALUES (?, ?, 1) ON CONFLICT (id) DO NOTHING`,
			id, data)
		if err != nil {
			return 0, errors.Wrap(err, "Create room")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, errors.Wrap(err, "Create room")
		}
		if n == 0 {
			return 0, ErrVersionConflict
		}
		return 1, nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE rooms SET data = ?, version = version + 1 WHERE id = ? AND version = ?`,
		data, id, expectedVersion)
	if err != nil {
		return 0, errors.Wrap(err, "Update room")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "Update room")
	}
	if n == 0 {
		// Either the room is gone or someone else got there first.
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM rooms WHERE id = ?`, id).Scan(&exists); err == sql.ErrNoRows {
			return 0, ErrNotFound
		} else if err != nil {
			return 0, errors.Wrap(err, "Update room")
		}
		return 0, ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

func (s *SQLite) DeleteRoom(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "Delete room")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "Delete room")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) ListRooms(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM rooms`)
	if err != nil {
		return nil, errors.Wrap(err, "List rooms")
	}
	defer rows.Close()

	rooms := make(map[string][]byte)
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, errors.Wrap(err, "List rooms")
		}
		rooms[id] = data
	}
	return rooms, errors.Wrap(rows.Err(), "List rooms")
}

func (s *SQLite) GetSession(ctx context.Context, roomID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM game_sessions WHERE room_id = ?`, roomID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "Get session")
	}
	return data, nil
}

func (s *SQLite) PutSession(ctx context.Context, roomID string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO game_sessions (room_id, data, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (room_id) DO UPDATE SET data = excluded.data`,
		roomID, data, time.Now().UTC().UnixMilli())
	return errors.Wrap(err, "Put session")
}

func (s *SQLite) PutBotTask(ctx context.Context, roomID string, dueAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_tasks (room_id, due_at, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (room_id) DO UPDATE SET due_at = excluded.due_at`,
		roomID, dueAt.UTC().UnixMilli(), time.Now().UTC().UnixMilli())
	return errors.Wrap(err, "Put bot task")
}

func (s *SQLite) DeleteBotTask(ctx context.Context, roomID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bot_tasks WHERE room_id = ?`, roomID)
	return errors.Wrap(err, "Delete bot task")
}

func (s *SQLite) BotTasks(ctx context.Context) ([]BotTask, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT room_id, due_at FROM bot_tasks`)
	if err != nil {
		return nil, errors.Wrap(err, "List bot tasks")
	}
	defer rows.Close()

	var tasks []BotTask
	for rows.Next() {
		var roomID string
		var dueAt int64
		if err := rows.Scan(&roomID, &dueAt); err != nil {
			return nil, errors.Wrap(err, "List bot tasks")
		}
		tasks = append(tasks, BotTask{RoomID: roomID, DueAt: time.UnixMilli(dueAt).UTC()})
	}
	return tasks, errors.Wrap(rows.Err(), "List bot tasks")
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
