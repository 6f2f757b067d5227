package database

import (
	"github.com/famlink/famlink/internal/models"
	"github.com/google/uuid"
)

func (d *Database) CreateFamily(family *models.Family) error {
	if family.ID == uuid.Nil {
		family.ID = uuid.New()
	}
	return d.db.Create(family).Error
}

func (d *Database) AddFamilyMember(member *models.FamilyMember) error {
	if member.ID == uuid.Nil {
		member.ID = uuid.New()
	}
	return d.db.Create(member).Error
}

// IsActiveFamilyMember backs both channel shapes of the authorizer.
func (d *Database) IsActiveFamilyMember(userID, familyID uuid.UUID) (bool, error) {
	var n int64
	err := d.db.Model(&models.FamilyMember{}).
		Where("family_id = ? AND user_id = ? AND is_active = ?", familyID, userID, true).
		Count(&n).Error
	return n > 0, err
}

// FamilyRole returns the member's role, or nil when the membership
// record carries none.
func (d *Database) FamilyRole(userID, familyID uuid.UUID) (*string, error) {
	var member models.FamilyMember
	err := d.db.Where("family_id = ? AND user_id = ? AND is_active = ?", familyID, userID, true).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	if member.Role == "" {
		return nil, nil
	}
	return &member.Role, nil
}

// GetFamilyMember returns the active membership row with its user loaded.
func (d *Database) GetFamilyMember(userID, familyID uuid.UUID) (*models.FamilyMember, error) {
	var member models.FamilyMember
	err := d.db.Where("family_id = ? AND user_id = ? AND is_active = ?", familyID, userID, true).
		Preload("User").First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// IsActiveRoomMember reports room-level membership, independent of the
// family-level check.
func (d *Database) IsActiveRoomMember(userID, roomID uuid.UUID) (bool, error) {
	var n int64
	err := d.db.Model(&models.ChatRoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&n).Error
	return n > 0, err
}

// RoomFamily resolves the family that owns a room.
func (d *Database) RoomFamily(roomID uuid.UUID) (uuid.UUID, error) {
	var room models.ChatRoom
	if err := d.db.Select("family_id").First(&room, "id = ?", roomID).Error; err != nil {
		return uuid.Nil, err
	}
	return room.FamilyID, nil
}
