package database

import (
	"time"

	"github.com/famlink/famlink/internal/models"
	"github.com/google/uuid"
)

// AddReaction upserts the (message, user, emoji) triple. Re-adding an
// existing reaction returns the original row; the unique index closes
// the insert race.
func (d *Database) AddReaction(messageID, userID uuid.UUID, emoji string) (*models.Reaction, bool, error) {
	reaction := models.Reaction{}
	res := d.db.
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Attrs(models.Reaction{
			ID:        uuid.New(),
			MessageID: messageID,
			UserID:    userID,
			Emoji:     emoji,
			CreatedAt: time.Now(),
		}).
		FirstOrCreate(&reaction)
	if res.Error != nil {
		return nil, false, res.Error
	}
	return &reaction, res.RowsAffected > 0, nil
}

// RemoveReaction deletes the triple if present and reports whether a row
// actually went away.
func (d *Database) RemoveReaction(messageID, userID uuid.UUID, emoji string) (bool, error) {
	res := d.db.Delete(&models.Reaction{},
		"message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji)
	return res.RowsAffected > 0, res.Error
}

func (d *Database) ListReactions(messageID uuid.UUID) ([]models.Reaction, error) {
	var reactions []models.Reaction
	err := d.db.Where("message_id = ?", messageID).Order("created_at ASC").Find(&reactions).Error
	return reactions, err
}

func (d *Database) ListReactionsForMessages(messageIDs []uuid.UUID) ([]models.Reaction, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var reactions []models.Reaction
	err := d.db.Where("message_id IN ?", messageIDs).Order("created_at ASC").Find(&reactions).Error
	return reactions, err
}
