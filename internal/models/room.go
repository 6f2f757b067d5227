package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RoomTypeGroup        = "group"
	RoomTypeDirect       = "direct"
	RoomTypeAnnouncement = "announcement"
	RoomTypeEmergency    = "emergency"
)

// ValidRoomType reports whether t is one of the known room types.
func ValidRoomType(t string) bool {
	switch t {
	case RoomTypeGroup, RoomTypeDirect, RoomTypeAnnouncement, RoomTypeEmergency:
		return true
	}
	return false
}

type ChatRoom struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	FamilyID      uuid.UUID `gorm:"type:uuid;not null;index"`
	Name          string    `gorm:"not null"`
	Type          string    `gorm:"not null;check:type IN ('group','direct','announcement','emergency')"`
	Description   string
	CreatedBy     uuid.UUID `gorm:"type:uuid;not null"`
	IsPrivate     bool      `gorm:"not null;default:true"`
	IsArchived    bool      `gorm:"not null;default:false"`
	Settings      datatypes.JSONMap
	LastMessageAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Members []ChatRoomMember `gorm:"foreignKey:RoomID"`
}

type ChatRoomMember struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoomID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_room_user"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_room_user"`
	IsAdmin    bool      `gorm:"not null;default:false"`
	MutedUntil *time.Time
	LastReadAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time

	User User `gorm:"foreignKey:UserID"`
}

// IsMutedAt reports whether the member's mute window covers the given instant.
func (m *ChatRoomMember) IsMutedAt(now time.Time) bool {
	return m.MutedUntil != nil && m.MutedUntil.After(now)
}
