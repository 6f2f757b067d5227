package database

import (
	"time"

	"github.com/famlink/famlink/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (d *Database) CreateRoom(room *models.ChatRoom) error {
	if room.ID == uuid.Nil {
		room.ID = uuid.New()
	}
	return d.db.Create(room).Error
}

func (d *Database) GetRoom(id uuid.UUID) (*models.ChatRoom, error) {
	var room models.ChatRoom
	if err := d.db.Preload("Members").Preload("Members.User").First(&room, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// FindDirectRoom looks up an existing direct room between the two users
// inside the given family.
func (d *Database) FindDirectRoom(familyID, user1ID, user2ID uuid.UUID) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := d.db.
		Joins("JOIN chat_room_members m1 ON m1.room_id = chat_rooms.id").
		Joins("JOIN chat_room_members m2 ON m2.room_id = chat_rooms.id").
		Where("chat_rooms.type = ? AND chat_rooms.family_id = ? AND m1.user_id = ? AND m2.user_id = ?",
			models.RoomTypeDirect, familyID, user1ID, user2ID).
		First(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (d *Database) GetUserRooms(userID uuid.UUID) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	err := d.db.
		Joins("JOIN chat_room_members m ON m.room_id = chat_rooms.id").
		Where("m.user_id = ?", userID).
		Order("chat_rooms.last_message_at DESC").
		Preload("Members").Preload("Members.User").
		Find(&rooms).Error
	return rooms, err
}

// UpdateRoomFields applies a partial update; absent keys stay untouched.
func (d *Database) UpdateRoomFields(id uuid.UUID, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	res := d.db.Model(&models.ChatRoom{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ArchiveRoom flips is_archived once; a second call affects zero rows.
func (d *Database) ArchiveRoom(id uuid.UUID) (bool, error) {
	res := d.db.Model(&models.ChatRoom{}).
		Where("id = ? AND is_archived = ?", id, false).
		Update("is_archived", true)
	return res.RowsAffected > 0, res.Error
}

// TouchLastMessage bumps last_message_at, never moving it backwards.
func (d *Database) TouchLastMessage(id uuid.UUID, at time.Time) error {
	return d.db.Model(&models.ChatRoom{}).
		Where("id = ? AND (last_message_at IS NULL OR last_message_at < ?)", id, at).
		Update("last_message_at", at).Error
}
