package database

import (
	"time"

	"github.com/famlink/famlink/internal/models"
	"github.com/google/uuid"
)

func (d *Database) AddMember(member *models.ChatRoomMember) error {
	if member.ID == uuid.Nil {
		member.ID = uuid.New()
	}
	return d.db.Create(member).Error
}

func (d *Database) GetMember(roomID, userID uuid.UUID) (*models.ChatRoomMember, error) {
	var member models.ChatRoomMember
	err := d.db.Where("room_id = ? AND user_id = ?", roomID, userID).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (d *Database) ListMembers(roomID uuid.UUID) ([]models.ChatRoomMember, error) {
	var members []models.ChatRoomMember
	err := d.db.Where("room_id = ?", roomID).Preload("User").Find(&members).Error
	return members, err
}

func (d *Database) CountMembers(roomID uuid.UUID) (int64, error) {
	var n int64
	err := d.db.Model(&models.ChatRoomMember{}).Where("room_id = ?", roomID).Count(&n).Error
	return n, err
}

func (d *Database) CountAdmins(roomID uuid.UUID) (int64, error) {
	var n int64
	err := d.db.Model(&models.ChatRoomMember{}).
		Where("room_id = ? AND is_admin = ?", roomID, true).Count(&n).Error
	return n, err
}

// RemoveMember deletes a non-admin membership row.
func (d *Database) RemoveMember(memberID uuid.UUID) error {
	return d.db.Delete(&models.ChatRoomMember{}, "id = ?", memberID).Error
}

// RemoveAdminMember deletes an admin membership row only while another
// admin survives, or when the row is the room's last member. The count
// runs inside the same statement so two concurrent removals cannot both
// pass the check.
func (d *Database) RemoveAdminMember(memberID uuid.UUID) (bool, error) {
	res := d.db.Exec(`
		DELETE FROM chat_room_members WHERE id = ?
		AND ((SELECT COUNT(*) FROM chat_room_members m
		      WHERE m.room_id = chat_room_members.room_id AND m.is_admin AND m.id <> chat_room_members.id) > 0
		  OR (SELECT COUNT(*) FROM chat_room_members m
		      WHERE m.room_id = chat_room_members.room_id) = 1)`, memberID)
	return res.RowsAffected > 0, res.Error
}

func (d *Database) PromoteAdmin(memberID uuid.UUID) error {
	return d.db.Model(&models.ChatRoomMember{}).
		Where("id = ?", memberID).Update("is_admin", true).Error
}

// DemoteAdmin clears is_admin only while another admin remains in the
// room; conditional so concurrent demotions cannot empty the admin set.
func (d *Database) DemoteAdmin(memberID uuid.UUID) (bool, error) {
	res := d.db.Exec(`
		UPDATE chat_room_members SET is_admin = ? WHERE id = ? AND is_admin = ?
		AND (SELECT COUNT(*) FROM chat_room_members m
		     WHERE m.room_id = chat_room_members.room_id AND m.is_admin AND m.id <> chat_room_members.id) > 0`,
		false, memberID, true)
	return res.RowsAffected > 0, res.Error
}

func (d *Database) SetMutedUntil(memberID uuid.UUID, until *time.Time) error {
	return d.db.Model(&models.ChatRoomMember{}).
		Where("id = ?", memberID).Update("muted_until", until).Error
}

// MarkRead advances last_read_at monotonically; stale timestamps affect
// zero rows, which makes concurrent read-marks commutative.
func (d *Database) MarkRead(memberID uuid.UUID, at time.Time) error {
	return d.db.Model(&models.ChatRoomMember{}).
		Where("id = ? AND (last_read_at IS NULL OR last_read_at < ?)", memberID, at).
		Update("last_read_at", at).Error
}
