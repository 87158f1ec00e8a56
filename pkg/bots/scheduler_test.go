package bots

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tischnet/tischd/pkg/store"
)

type firedRecorder struct {
	mu    sync.Mutex
	rooms []string
	done  chan struct{}
}

func newFiredRecorder(expect int) *firedRecorder {
	return &firedRecorder{done: make(chan struct{}, expect)}
}

func (r *firedRecorder) callback(ctx context.Context, roomID string) error {
	r.mu.Lock()
	r.rooms = append(r.rooms, roomID)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *firedRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a task to fire")
	}
}

func (r *firedRecorder) fired() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.rooms...)
}

func testLog() *logrus.Logger {
	log := logrus.New()
	log.Level = logrus.PanicLevel
	return log
}

func TestScheduleFiresOnceAndClearsTask(t *testing.T) {
	st := store.NewMemory()
	rec := newFiredRecorder(1)
	s := NewScheduler(st, rec.callback, testLog())
	defer s.Stop()
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.Schedule(context.Background(), "r1", 10*time.Millisecond))
	rec.wait(t)

	assert.Equal(t, []string{"r1"}, rec.fired())

	tasks, err := st.BotTasks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestScheduleReplacesPendingTask(t *testing.T) {
	st := store.NewMemory()
	rec := newFiredRecorder(2)
	s := NewScheduler(st, rec.callback, testLog())
	defer s.Stop()
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.Schedule(context.Background(), "r1", time.Hour))
	require.NoError(t, s.Schedule(context.Background(), "r1", 10*time.Millisecond))
	rec.wait(t)

	// The hour-long timer was replaced, so exactly one fire.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"r1"}, rec.fired())
}

func TestStartReArmsPersistedTasks(t *testing.T) {
	st := store.NewMemory()

	// A previous run persisted a task that never fired.
	require.NoError(t, st.PutBotTask(context.Background(), "r1", time.Now().Add(-time.Minute)))
	require.NoError(t, st.PutBotTask(context.Background(), "r2", time.Now().Add(20*time.Millisecond)))

	rec := newFiredRecorder(2)
	s := NewScheduler(st, rec.callback, testLog())
	defer s.Stop()
	require.NoError(t, s.Start(context.Background()))

	rec.wait(t)
	rec.wait(t)
	assert.ElementsMatch(t, []string{"r1", "r2"}, rec.fired())
}

func TestStopCancelsTimersButKeepsTasks(t *testing.T) {
	st := store.NewMemory()
	rec := newFiredRecorder(1)
	s := NewScheduler(st, rec.callback, testLog())
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.Schedule(context.Background(), "r1", 20*time.Millisecond))
	s.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rec.fired())

	tasks, err := st.BotTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "r1", tasks[0].RoomID)
}
