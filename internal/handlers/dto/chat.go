package dto

import (
	"time"

	"github.com/famlink/famlink/internal/models"
)

// BroadcastAuthRequest is the channel subscription request posted by a
// transport client. channel_data is optional client context and is not
// trusted; the presence profile is rebuilt server-side.
type BroadcastAuthRequest struct {
	ChannelName string `json:"channel_name" form:"channel_name"`
	SocketID    string `json:"socket_id" form:"socket_id"`
	ChannelData string `json:"channel_data,omitempty" form:"channel_data"`
}

type CreateRoomRequest struct {
	FamilyID    string   `json:"family_id" binding:"required,uuid"`
	Type        string   `json:"type" binding:"required,oneof=group direct announcement emergency"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	IsPrivate   *bool    `json:"is_private"`
	MemberIDs   []string `json:"member_ids"`
}

type UpdateRoomRequest struct {
	Name        *string                `json:"name"`
	Description *string                `json:"description"`
	IsPrivate   *bool                  `json:"is_private"`
	Settings    map[string]interface{} `json:"settings"`
}

type AddMemberRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
}

type MuteRequest struct {
	Until time.Time `json:"until" binding:"required"`
}

type MarkReadRequest struct {
	At *time.Time `json:"at"`
}

type TypingRequest struct {
	IsTyping bool `json:"is_typing"`
}

type SendMessageRequest struct {
	Type        string                 `json:"type"`
	Body        string                 `json:"body"`
	ReplyToID   *string                `json:"reply_to_id"`
	Attachments []models.Attachment    `json:"attachments"`
	Metadata    map[string]interface{} `json:"metadata"`
}

type EditMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}
