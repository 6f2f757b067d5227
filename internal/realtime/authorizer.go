package realtime

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type DenyCode string

const (
	DenyMalformed       DenyCode = "malformed_request"
	DenyUnauthenticated DenyCode = "unauthenticated"
	DenyForbidden       DenyCode = "forbidden"
)

// DeniedError is the only error Authorize returns. Internal failures
// are logged and mapped to a forbidden denial, never propagated.
type DeniedError struct {
	Code   DenyCode
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("channel authorization denied (%s): %s", e.Code, e.Reason)
}

// PresenceProfile is the subscriber identity attached to presence
// channels. Field order here fixes the serialized byte layout: the
// transport re-checks the signature against these exact bytes.
type PresenceProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// MembershipSource is the read-only view of membership state the
// authorizer consults. Satisfied by *database.Database.
type MembershipSource interface {
	IsActiveFamilyMember(userID, familyID uuid.UUID) (bool, error)
	IsActiveRoomMember(userID, roomID uuid.UUID) (bool, error)
	RoomFamily(roomID uuid.UUID) (uuid.UUID, error)
	FamilyRole(userID, familyID uuid.UUID) (*string, error)
	DisplayName(userID uuid.UUID) (string, error)
}

type AuthResult struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data,omitempty"`
}

type Authorizer struct {
	appKey    string
	appSecret string
	members   MembershipSource
	log       *logrus.Logger
}

func NewAuthorizer(appKey, appSecret string, members MembershipSource, log *logrus.Logger) *Authorizer {
	return &Authorizer{appKey: appKey, appSecret: appSecret, members: members, log: log}
}

// Authorize validates a subscription request and computes the signed
// token. It only reads membership state; no domain writes happen here.
func (a *Authorizer) Authorize(principal uuid.UUID, channelName, socketID string) (*AuthResult, error) {
	if principal == uuid.Nil {
		return nil, &DeniedError{Code: DenyUnauthenticated, Reason: "no authenticated principal"}
	}
	if channelName == "" || socketID == "" {
		return nil, &DeniedError{Code: DenyMalformed, Reason: "channel_name and socket_id are required"}
	}

	channel := ParseChannel(channelName)
	switch channel.Kind {
	case ChannelPrivateRoom:
		return a.authorizeRoom(principal, channel, socketID)
	case ChannelPresenceFamily:
		return a.authorizeFamily(principal, channel, socketID)
	default:
		return nil, &DeniedError{Code: DenyMalformed, Reason: "unrecognized channel name"}
	}
}

func (a *Authorizer) authorizeRoom(principal uuid.UUID, channel Channel, socketID string) (*AuthResult, error) {
	familyID, err := a.members.RoomFamily(channel.ID)
	if err != nil {
		return nil, a.failClosed(channel.Name, err)
	}

	// Family membership and room membership are independent checks;
	// belonging to the family alone does not open the room.
	inFamily, err := a.members.IsActiveFamilyMember(principal, familyID)
	if err != nil {
		return nil, a.failClosed(channel.Name, err)
	}
	if !inFamily {
		return nil, &DeniedError{Code: DenyForbidden, Reason: "not a member of the owning family"}
	}

	inRoom, err := a.members.IsActiveRoomMember(principal, channel.ID)
	if err != nil {
		return nil, a.failClosed(channel.Name, err)
	}
	if !inRoom {
		return nil, &DeniedError{Code: DenyForbidden, Reason: "not a member of this room"}
	}

	return &AuthResult{Auth: a.sign(socketID + ":" + channel.Name)}, nil
}

func (a *Authorizer) authorizeFamily(principal uuid.UUID, channel Channel, socketID string) (*AuthResult, error) {
	inFamily, err := a.members.IsActiveFamilyMember(principal, channel.ID)
	if err != nil {
		return nil, a.failClosed(channel.Name, err)
	}
	if !inFamily {
		return nil, &DeniedError{Code: DenyForbidden, Reason: "not a member of this family"}
	}

	name, err := a.members.DisplayName(principal)
	if err != nil {
		return nil, a.failClosed(channel.Name, err)
	}
	role, err := a.members.FamilyRole(principal, channel.ID)
	if err != nil {
		return nil, a.failClosed(channel.Name, err)
	}

	profile := PresenceProfile{ID: principal.String(), Name: name}
	if role != nil {
		profile.Role = *role
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return nil, a.failClosed(channel.Name, err)
	}

	// The response must carry the exact bytes that were signed; any
	// re-serialization on the client would break the signature check.
	return &AuthResult{
		Auth:        a.sign(socketID + ":" + channel.Name + ":" + string(data)),
		ChannelData: string(data),
	}, nil
}

// VerifyToken re-derives the token for a subscribe frame. channelData
// must be empty for private channels.
func (a *Authorizer) VerifyToken(token, socketID, channelName, channelData string) bool {
	signed := socketID + ":" + channelName
	if channelData != "" {
		signed += ":" + channelData
	}
	return hmac.Equal([]byte(token), []byte(a.sign(signed)))
}

func (a *Authorizer) sign(s string) string {
	mac := hmac.New(sha256.New, []byte(a.appSecret))
	mac.Write([]byte(s))
	return a.appKey + ":" + hex.EncodeToString(mac.Sum(nil))
}

func (a *Authorizer) failClosed(channel string, err error) *DeniedError {
	a.log.WithField("channel", channel).WithError(err).Error("channel authorization failed")
	return &DeniedError{Code: DenyForbidden, Reason: "authorization unavailable"}
}
