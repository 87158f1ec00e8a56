package relay

import (
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tischnet/tischd/pkg/models"
)

func testRegistry() *Registry {
	log := logrus.New()
	log.Level = logrus.PanicLevel
	return NewRegistry(log)
}

func testConn(id string) *Conn {
	log := logrus.New()
	log.Level = logrus.PanicLevel
	return newConn(nil, id, log)
}

// recv pops the next queued message, or fails the test if none is queued.
func recv(t *testing.T, c *Conn) models.Message {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	default:
		t.Fatalf("conn %s: no message queued", c.id)
		return nil
	}
}

func assertNoMessage(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("conn %s: unexpected message %q", c.id, msg.Message())
	default:
	}
}

func TestSubscribePresenceSendsMembershipSnapshot(t *testing.T) {
	reg := testRegistry()
	c1 := testConn("c1")
	reg.AddConn(c1)

	reg.Subscribe(c1, "presence-room-1", &models.Member{ID: "p1", Name: "Sepp", ConnectionID: "c1"})

	msg := recv(t, c1)
	snapshot, ok := msg.(SubscriptionSucceeded)
	require.True(t, ok, "expected subscription_succeeded, got %q", msg.Message())
	assert.Equal(t, "subscription_succeeded", snapshot.Message())
	assert.Equal(t, "presence-room-1", snapshot.Channel)
	assert.Equal(t, 1, snapshot.Count)
	require.Len(t, snapshot.Members, 1)
	assert.Equal(t, "p1", snapshot.Members[0].ID)
	assert.Equal(t, "Sepp", snapshot.Members[0].Name)
	assert.Equal(t, "p1", snapshot.Me.ID)
}

func TestSubscribeNotifiesExistingMembers(t *testing.T) {
	reg := testRegistry()
	c1 := testConn("c1")
	c2 := testConn("c2")
	reg.AddConn(c1)
	reg.AddConn(c2)

	reg.Subscribe(c1, "presence-room-1", &models.Member{ID: "p1", Name: "Sepp", ConnectionID: "c1"})
	recv(t, c1) // c1's own snapshot

	reg.Subscribe(c2, "presence-room-1", &models.Member{ID: "p2", Name: "Mia", ConnectionID: "c2"})

	msg := recv(t, c1)
	added, ok := msg.(MemberAdded)
	require.True(t, ok, "expected member_added, got %q", msg.Message())
	assert.Equal(t, "p2", added.Member.ID)

	// The joiner's snapshot includes both members.
	snapshot := recv(t, c2).(SubscriptionSucceeded)
	assert.Equal(t, 2, snapshot.Count)
}

func TestSubscribeWithoutIdentityObservesSilently(t *testing.T) {
	reg := testRegistry()
	c1 := testConn("c1")
	observer := testConn("obs")
	reg.AddConn(c1)
	reg.AddConn(observer)

	reg.Subscribe(observer, "presence-room-1", nil)
	assertNoMessage(t, observer)

	reg.Subscribe(c1, "presence-room-1", &models.Member{ID: "p1", Name: "Sepp", ConnectionID: "c1"})

	// The observer is not in the member list, but still receives traffic.
	snapshot := recv(t, c1).(SubscriptionSucceeded)
	assert.Equal(t, 1, snapshot.Count)
	added := recv(t, observer).(MemberAdded)
	assert.Equal(t, "p1", added.Member.ID)
}

func TestSubscribePlainChannelIsSilent(t *testing.T) {
	reg := testRegistry()
	c1 := testConn("c1")
	reg.AddConn(c1)

	reg.Subscribe(c1, "lobby", &models.Member{ID: "p1", ConnectionID: "c1"})
	assertNoMessage(t, c1)
}

func TestResubscribeIsIdempotent(t *testing.T) {
	reg := testRegistry()
	c1 := testConn("c1")
	c2 := testConn("c2")
	reg.AddConn(c1)
	reg.AddConn(c2)

	me := &models.Member{ID: "p1", Name: "Sepp", ConnectionID: "c1"}
	reg.Subscribe(c1, "presence-room-1", me)
	recv(t, c1)
	reg.Subscribe(c2, "presence-room-1", &models.Member{ID: "p2", ConnectionID: "c2"})
	recv(t, c1)
	recv(t, c2)

	reg.Subscribe(c1, "presence-room-1", me)

	// c1 converges on a fresh snapshot, c2 sees no duplicate member_added.
	snapshot := recv(t, c1).(SubscriptionSucceeded)
	assert.Equal(t, 2, snapshot.Count)
	assertNoMessage(t, c2)
}

func TestUnsubscribeBroadcastsMemberRemoved(t *testing.T) {
	reg := testRegistry()
	c1 := testConn("c1")
	c2 := testConn("c2")
	reg.AddConn(c1)
	reg.AddConn(c2)

	reg.Subscribe(c1, "presence-room-1", &models.Member{ID: "p1", ConnectionID: "c1"})
	reg.Subscribe(c2, "presence-room-1", &models.Member{ID: "p2", ConnectionID: "c2"})
	recv(t, c1)
	recv(t, c1)
	recv(t, c2)

	reg.Unsubscribe(c1, "presence-room-1")

	removed := recv(t, c2).(MemberRemoved)
	assert.Equal(t, "p1", removed.Member.ID)
	assertNoMessage(t, c1)
}

func TestEmptyChannelIsRemoved(t *testing.T) {
	reg := testRegistry()
	c1 := testConn("c1")
	reg.AddConn(c1)

	reg.Subscribe(c1, "presence-room-1", &models.Member{ID: "p1", ConnectionID: "c1"})
	assert.Equal(t, 1, reg.Stats().NumChannels)

	reg.Unsubscribe(c1, "presence-room-1")
	assert.Equal(t, 0, reg.Stats().NumChannels)
	assert.Equal(t, 0, reg.Stats().NumPresenceChannels)
}

func TestDisconnectLeavesEveryChannel(t *testing.T) {
	reg := testRegistry()
	c1 := testConn("c1")
	c2 := testConn("c2")
	reg.AddConn(c1)
	reg.AddConn(c2)

	reg.Subscribe(c1, "lobby", nil)
	reg.Subscribe(c1, "presence-room-1", &models.Member{ID: "p1", ConnectionID: "c1"})
	reg.Subscribe(c2, "presence-room-1", &models.Member{ID: "p2", ConnectionID: "c2"})
	recv(t, c1)
	recv(t, c1)
	recv(t, c2)

	reg.Disconnect(c1)

	removed := recv(t, c2).(MemberRemoved)
	assert.Equal(t, "p1", removed.Member.ID)
	assert.Equal(t, 1, reg.NumConns()) // only c2 remains
	assert.Equal(t, 1, reg.Stats().NumChannels)
}

func TestEmitForwardsEventToSubscribers(t *testing.T) {
	reg := testRegistry()
	c1 := testConn("c1")
	reg.AddConn(c1)
	reg.Subscribe(c1, "lobby", nil)

	reg.Emit("lobby", "room-created", json.RawMessage(`{"id":"r1"}`))

	msg := recv(t, c1)
	event, ok := msg.(EventMessage)
	require.True(t, ok)
	assert.Equal(t, "room-created", event.Type)
	assert.Equal(t, "lobby", event.Channel)
	assert.JSONEq(t, `{"id":"r1"}`, string(event.Data))
}

func TestEmitWithoutSubscribersIsNoOp(t *testing.T) {
	reg := testRegistry()
	// Must not create the channel or panic.
	reg.Emit("presence-room-ghost", "bot-turn", nil)
	assert.Equal(t, 0, reg.Stats().NumChannels)
}
