package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeVideo    = "video"
	MessageTypeAudio    = "audio"
	MessageTypeFile     = "file"
	MessageTypeLocation = "location"
	MessageTypePoll     = "poll"
	MessageTypeEvent    = "event"
	MessageTypeSystem   = "system"
)

// ValidMessageType reports whether t is one of the known message types.
func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo, MessageTypeAudio,
		MessageTypeFile, MessageTypeLocation, MessageTypePoll, MessageTypeEvent,
		MessageTypeSystem:
		return true
	}
	return false
}

// Attachment is stored inside the message row as part of a JSON column.
type Attachment struct {
	URL  string `json:"url"`
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
}

type Message struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	RoomID      uuid.UUID  `gorm:"type:uuid;not null;index"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null"`
	ReplyToID   *uuid.UUID `gorm:"type:uuid;index"`
	Type        string     `gorm:"not null;default:'text'"`
	Body        string     `gorm:"type:text"`
	Attachments datatypes.JSONSlice[Attachment]
	Metadata    datatypes.JSONMap
	IsEdited    bool `gorm:"not null;default:false"`
	IsDeleted   bool `gorm:"not null;default:false"`
	EditedAt    *time.Time
	DeletedAt   *time.Time
	CreatedAt   time.Time `gorm:"index"`

	User    User     `gorm:"foreignKey:UserID"`
	ReplyTo *Message `gorm:"foreignKey:ReplyToID"`
}

// Reaction rows are unique per (message, user, emoji); a user may leave
// several distinct emojis on the same message.
type Reaction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	MessageID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_message_user_emoji"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_message_user_emoji"`
	Emoji     string    `gorm:"not null;uniqueIndex:idx_message_user_emoji"`
	CreatedAt time.Time
}
