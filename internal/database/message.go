package database

import (
	"time"

	"github.com/famlink/famlink/internal/models"
	"github.com/google/uuid"
)

func (d *Database) SaveMessage(message *models.Message) error {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	return d.db.Create(message).Error
}

func (d *Database) GetMessage(id uuid.UUID) (*models.Message, error) {
	var message models.Message
	if err := d.db.Preload("User").First(&message, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// GetRoomMessages returns a page of room history, oldest first. When
// beforeID is set the page ends just before that message.
func (d *Database) GetRoomMessages(roomID uuid.UUID, limit int, beforeID *uuid.UUID) ([]models.Message, error) {
	var messages []models.Message

	query := d.db.Where("room_id = ?", roomID)

	if beforeID != nil {
		var beforeMsg models.Message
		if err := d.db.First(&beforeMsg, "id = ?", beforeID).Error; err == nil {
			query = query.Where("created_at < ?", beforeMsg.CreatedAt)
		}
	}

	err := query.
		Order("created_at DESC").
		Limit(limit).
		Preload("User").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (d *Database) UpdateMessage(message *models.Message) error {
	return d.db.Save(message).Error
}

// SoftDeleteMessage marks the row deleted, keeping the body for audit.
// A second delete affects zero rows.
func (d *Database) SoftDeleteMessage(id uuid.UUID, at time.Time) (bool, error) {
	res := d.db.Model(&models.Message{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{"is_deleted": true, "deleted_at": at})
	return res.RowsAffected > 0, res.Error
}

// CountMessagesAfter backs the unread counter. A nil marker means the
// member has read nothing, so every message counts.
func (d *Database) CountMessagesAfter(roomID uuid.UUID, after *time.Time) (int64, error) {
	var n int64
	query := d.db.Model(&models.Message{}).Where("room_id = ?", roomID)
	if after != nil {
		query = query.Where("created_at > ?", after)
	}
	err := query.Count(&n).Error
	return n, err
}
