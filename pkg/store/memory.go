package store

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store. It backs tests and store-less runs, where
// losing rooms on restart is acceptable.
type Memory struct {
	mu       sync.Mutex
	rooms    map[string]memoryRoom
	sessions map[string][]byte
	tasks    map[string]time.Time
}

type memoryRoom struct {
	data    []byte
	version int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		rooms:    make(map[string]memoryRoom),
		sessions: make(map[string][]byte),
		tasks:    make(map[string]time.Time),
	}
}

func (m *Memory) GetRoom(ctx context.Context, id string) ([]byte, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, 0, ErrNotFound
	}
	data := make([]byte, len(r.data))
	copy(data, r.data)
	return data, r.version, nil
}

func (m *Memory) PutRoom(ctx context.Context, id string, data []byte, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if expectedVersion == 0 {
		if ok {
			return 0, ErrVersionConflict
		}
	} else {
		if !ok {
			return 0, ErrNotFound
		}
		if r.version != expectedVersion {
			return 0, ErrVersionConflict
		}
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	next := expectedVersion + 1
	m.rooms[id] = memoryRoom{data: stored, version: next}
	return next, nil
}

func (m *Memory) DeleteRoom(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; !ok {
		return ErrNotFound
	}
	delete(m.rooms, id)
	return nil
}

func (m *Memory) ListRooms(ctx context.Context) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms := make(map[string][]byte, len(m.rooms))
	for id, r := range m.rooms {
		data := make([]byte, len(r.data))
		copy(data, r.data)
		rooms[id] = data
	}
	return rooms, nil
}

func (m *Memory) GetSession(ctx context.Context, roomID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.sessions[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) PutSession(ctx context.Context, roomID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.sessions[roomID] = stored
	return nil
}

func (m *Memory) PutBotTask(ctx context.Context, roomID string, dueAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[roomID] = dueAt
	return nil
}

func (m *Memory) DeleteBotTask(ctx context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, roomID)
	return nil
}

func (m *Memory) BotTasks(ctx context.Context) ([]BotTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks := make([]BotTask, 0, len(m.tasks))
	for roomID, dueAt := range m.tasks {
		tasks = append(tasks, BotTask{RoomID: roomID, DueAt: dueAt})
	}
	return tasks, nil
}

func (m *Memory) Close() error {
	return nil
}
