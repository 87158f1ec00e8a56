package relay

import (
	"sync"

	"github.com/tischnet/tischd/pkg/models"
)

// A channel relays events between subscribed connections. Channels whose
// name carries the presence prefix additionally track a member identity per
// subscriber and announce membership changes.
type channel struct {
	name    string
	subsMTX sync.RWMutex // Protects subs
	subs    map[string]*subscriber
}

// A subscriber holds a connection's state on a channel. member is nil for
// subscribers of plain channels, and for identity-less observers of
// presence channels.
type subscriber struct {
	conn   *Conn
	member *models.Member
}

// newChannel makes a new channel.
func newChannel(name string) *channel {
	return &channel{
		name: name,
		// Assume a new channel is being made because at least one connection wants to join it.
		subs: make(map[string]*subscriber, 1),
	}
}

// presence reports whether the channel tracks membership.
func (ch *channel) presence() bool {
	return models.IsPresence(ch.name)
}

// Broadcast sends a message to every subscribed connection.
// Connections whose ID is in excludeIDs will be skipped.
// Sends never block; a slow consumer drops the message instead.
func (ch *channel) Broadcast(msg models.Message, excludeIDs ...string) {
	ch.subsMTX.RLock()
	defer ch.subsMTX.RUnlock()
	ch.broadcast(msg, excludeIDs...)
}

func (ch *channel) broadcast(msg models.Message, excludeIDs ...string) {
	excludedIDSet := make(map[string]struct{})
	for _, id := range excludeIDs {
		excludedIDSet[id] = struct{}{}
	}

	for id, sub := range ch.subs {
		if _, idExcluded := excludedIDSet[id]; idExcluded {
			continue
		}
		sub.conn.trySend(msg)
	}
}

// members returns the identities currently registered on the channel.
// The caller must hold subsMTX.
func (ch *channel) members() []models.Member {
	members := make([]models.Member, 0, len(ch.subs))
	for _, sub := range ch.subs {
		if sub.member != nil {
			members = append(members, *sub.member)
		}
	}
	return members
}

// empty reports whether the channel has no subscribers left.
// The caller must hold subsMTX.
func (ch *channel) empty() bool {
	return len(ch.subs) == 0
}
