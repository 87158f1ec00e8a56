package game

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tischnet/tischd/pkg/models"
	"github.com/tischnet/tischd/pkg/store"
)

type fakePublisher struct {
	mu       sync.Mutex
	channels []string
	events   []string
}

func (p *fakePublisher) Publish(ctx context.Context, channel, event string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	p.events = append(p.events, event)
	return nil
}

func testService() (*Service, *fakePublisher) {
	log := logrus.New()
	log.Level = logrus.PanicLevel
	pub := &fakePublisher{}
	return NewService(store.NewMemory(), pub, log), pub
}

func TestCreateAssignsSeatsInJoinOrder(t *testing.T) {
	svc, _ := testService()
	ctx := context.Background()

	session, err := svc.Create(ctx, "r1", []Player{
		{ID: "p1", Name: "Sepp"},
		{ID: "p2", Name: "Mia"},
		{ID: "bot-r1-3", Name: "Bot 3", Bot: true},
		{ID: "bot-r1-4", Name: "Bot 4", Bot: true},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "r1", session.RoomID)
	assert.Equal(t, "dealing", session.Status)
	require.Len(t, session.Players, 4)
	for i, p := range session.Players {
		assert.Equal(t, i, p.Seat)
	}

	loaded, err := svc.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, session.ID, loaded.ID)
	assert.Equal(t, session.Players, loaded.Players)
}

func TestKickBotsPublishesBotTurn(t *testing.T) {
	svc, pub := testService()
	ctx := context.Background()

	_, err := svc.Create(ctx, "r1", []Player{
		{ID: "p1", Name: "Sepp"},
		{ID: "bot-r1-2", Name: "Bot 2", Bot: true},
	})
	require.NoError(t, err)

	require.NoError(t, svc.KickBots(ctx, "r1"))
	require.Equal(t, []string{"bot-turn"}, pub.events)
	assert.Equal(t, []string{models.RoomChannel("r1")}, pub.channels)

	// Re-triggering is harmless.
	require.NoError(t, svc.KickBots(ctx, "r1"))
	assert.Len(t, pub.events, 2)
}

func TestKickBotsWithoutBotsIsNoOp(t *testing.T) {
	svc, pub := testService()
	ctx := context.Background()

	_, err := svc.Create(ctx, "r1", []Player{{ID: "p1", Name: "Sepp"}})
	require.NoError(t, err)

	require.NoError(t, svc.KickBots(ctx, "r1"))
	assert.Empty(t, pub.events)
}

func TestKickBotsUnknownRoom(t *testing.T) {
	svc, _ := testService()
	err := svc.KickBots(context.Background(), "nope")
	assert.Equal(t, store.ErrNotFound, errors.Cause(err))
}
