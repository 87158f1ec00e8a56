package relay

import (
	"encoding/json"

	"github.com/tischnet/tischd/pkg/models"
)

// ClientMessage holds a request received from a client socket.
type ClientMessage struct {
	Type       string `json:"type"`
	Channel    string `json:"channel"`
	PlayerID   string `json:"playerId,omitempty"`
	PlayerName string `json:"playerName,omitempty"`
}

// Message gets this ClientMessage's name.
func (msg ClientMessage) Message() string {
	return msg.Type
}

// SubscriptionSucceeded is sent to a subscriber after it joined a presence
// channel with an identity. Members includes the subscriber itself.
type SubscriptionSucceeded struct {
	models.DefaultMessage
	Channel string          `json:"channel"`
	Members []models.Member `json:"members"`
	Count   int             `json:"count"`
	Me      models.Member   `json:"me"`
}

// MemberAdded is sent to existing members of a presence channel when a new
// member joins.
type MemberAdded struct {
	models.DefaultMessage
	Channel string        `json:"channel"`
	Member  models.Member `json:"member"`
}

// MemberRemoved is sent to remaining members of a presence channel when a
// member unsubscribes or its connection drops.
type MemberRemoved struct {
	models.DefaultMessage
	Channel string        `json:"channel"`
	Member  models.Member `json:"member"`
}

// EventMessage forwards a trigger relay event to subscribers. The wire type
// is the event name itself (e.g. "room-created"), so clients dispatch on it
// directly.
type EventMessage struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Message gets this EventMessage's name.
func (msg EventMessage) Message() string {
	return msg.Type
}

func newSubscriptionSucceeded(channel string, members []models.Member, me models.Member) SubscriptionSucceeded {
	return SubscriptionSucceeded{
		DefaultMessage: models.DefaultMessage{Type: "subscription_succeeded"},
		Channel:        channel,
		Members:        members,
		Count:          len(members),
		Me:             me,
	}
}

func newMemberAdded(channel string, member models.Member) MemberAdded {
	return MemberAdded{
		DefaultMessage: models.DefaultMessage{Type: "member_added"},
		Channel:        channel,
		Member:         member,
	}
}

func newMemberRemoved(channel string, member models.Member) MemberRemoved {
	return MemberRemoved{
		DefaultMessage: models.DefaultMessage{Type: "member_removed"},
		Channel:        channel,
		Member:         member,
	}
}
