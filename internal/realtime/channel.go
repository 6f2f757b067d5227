package realtime

import (
	"strings"

	"github.com/google/uuid"
)

// Channel naming is shared between the authorizer and the dispatcher;
// both sides must agree on these prefixes.
const (
	privateRoomPrefix    = "private-chat-room."
	presenceFamilyPrefix = "presence-family."
)

type ChannelKind int

const (
	ChannelUnrecognized ChannelKind = iota
	ChannelPrivateRoom
	ChannelPresenceFamily
)

type Channel struct {
	Kind ChannelKind
	ID   uuid.UUID
	Name string
}

// RoomChannel returns the canonical channel name for a chat room.
func RoomChannel(roomID uuid.UUID) string {
	return privateRoomPrefix + roomID.String()
}

// FamilyChannel returns the canonical presence channel for a family.
func FamilyChannel(familyID uuid.UUID) string {
	return presenceFamilyPrefix + familyID.String()
}

// ParseChannel tries each known channel shape in a fixed order and
// returns ChannelUnrecognized for anything else.
func ParseChannel(name string) Channel {
	if rest, ok := strings.CutPrefix(name, privateRoomPrefix); ok {
		if id, err := uuid.Parse(rest); err == nil {
			return Channel{Kind: ChannelPrivateRoom, ID: id, Name: name}
		}
	}
	if rest, ok := strings.CutPrefix(name, presenceFamilyPrefix); ok {
		if id, err := uuid.Parse(rest); err == nil {
			return Channel{Kind: ChannelPresenceFamily, ID: id, Name: name}
		}
	}
	return Channel{Kind: ChannelUnrecognized, Name: name}
}
