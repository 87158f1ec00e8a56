package models

import "strings"

// LobbyChannel is the broadcast channel carrying room directory updates.
const LobbyChannel = "lobby"

// PresencePrefix marks channels that track and publish membership changes.
// Channels without the prefix are plain broadcast groups.
const PresencePrefix = "presence-"

// RoomChannel returns the presence channel for a room.
func RoomChannel(roomID string) string {
	return PresencePrefix + "room-" + roomID
}

// IsPresence reports whether a channel name carries presence semantics.
func IsPresence(channel string) bool {
	return strings.HasPrefix(channel, PresencePrefix)
}
