// Package bots schedules the delayed bot kickoff that follows a game start.
// The delay is UX pacing, not correctness: it gives clients a moment to
// render dealt cards before autonomous players act. Tasks are persisted so
// a restart between scheduling and firing doesn't silently lose the kickoff.
package bots

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tischnet/tischd/pkg/store"
)

// Callback is invoked when a task fires, with the room the task belongs to.
type Callback func(ctx context.Context, roomID string) error

// Scheduler arms one delayed task per room, persisted through the store.
type Scheduler struct {
	store store.Store
	cb    Callback
	log   *logrus.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	ctx    context.Context
}

// NewScheduler creates a scheduler that invokes cb when tasks fire.
func NewScheduler(st store.Store, cb Callback, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		store:  st,
		cb:     cb,
		log:    log,
		timers: make(map[string]*time.Timer),
		ctx:    context.Background(),
	}
}

// Start re-arms every task persisted by a previous run. Past-due tasks fire
// immediately. ctx bounds the store calls made by firing tasks.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	tasks, err := s.store.BotTasks(ctx)
	if err != nil {
		return errors.Wrap(err, "Load bot tasks")
	}

	now := time.Now()
	for _, task := range tasks {
		s.arm(task.RoomID, task.DueAt.Sub(now))
		s.log.WithFields(logrus.Fields{
			"room":   task.RoomID,
			"due_at": task.DueAt,
		}).Info("Re-armed bot task")
	}
	return nil
}

// Schedule persists and arms a bot kickoff for the room. A second Schedule
// for the same room replaces the pending one.
func (s *Scheduler) Schedule(ctx context.Context, roomID string, delay time.Duration) error {
	if err := s.store.PutBotTask(ctx, roomID, time.Now().Add(delay)); err != nil {
		return errors.Wrap(err, "Persist bot task")
	}
	s.arm(roomID, delay)
	return nil
}

// Stop cancels all armed timers. Persisted tasks remain, to be re-armed by
// the next Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for roomID, timer := range s.timers {
		timer.Stop()
		delete(s.timers, roomID)
	}
}

func (s *Scheduler) arm(roomID string, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[roomID]; ok {
		timer.Stop()
	}
	s.timers[roomID] = time.AfterFunc(delay, func() {
		s.fire(roomID)
	})
}

func (s *Scheduler) fire(roomID string) {
	s.mu.Lock()
	delete(s.timers, roomID)
	ctx := s.ctx
	s.mu.Unlock()

	if err := s.store.DeleteBotTask(ctx, roomID); err != nil {
		s.log.WithFields(logrus.Fields{
			"room":  roomID,
			"error": err,
		}).Warn("Error deleting fired bot task")
	}

	if err := s.cb(ctx, roomID); err != nil {
		s.log.WithFields(logrus.Fields{
			"room":  roomID,
			"error": err,
		}).Warn("Bot kickoff failed")
	}
}
