package models

import (
	"time"

	"github.com/google/uuid"
)

type Family struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null"`
	CreatedBy uuid.UUID `gorm:"type:uuid"`
	CreatedAt time.Time
}

// FamilyMember ties a user to a family. Room-level state (admin, mute,
// read marker) lives on ChatRoomMember, not here.
type FamilyMember struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	FamilyID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_family_user"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_family_user"`
	Role     string
	IsActive bool `gorm:"not null;default:true"`
	JoinedAt time.Time

	User User `gorm:"foreignKey:UserID"`
}
