package chat

import (
	"time"

	"github.com/famlink/famlink/internal/models"
	"github.com/google/uuid"
)

// View objects are what the HTTP layer serializes. Timestamps marshal
// as RFC 3339, enum fields as their string tags.

type MemberView struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	Username   string     `json:"username,omitempty"`
	AvatarURL  string     `json:"avatar_url,omitempty"`
	IsAdmin    bool       `json:"is_admin"`
	IsMuted    bool       `json:"is_muted"`
	MutedUntil *time.Time `json:"muted_until,omitempty"`
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
}

type RoomView struct {
	ID            uuid.UUID              `json:"id"`
	FamilyID      uuid.UUID              `json:"family_id"`
	Name          string                 `json:"name"`
	Type          string                 `json:"type"`
	Description   string                 `json:"description,omitempty"`
	CreatedBy     uuid.UUID              `json:"created_by"`
	IsPrivate     bool                   `json:"is_private"`
	IsArchived    bool                   `json:"is_archived"`
	Settings      map[string]interface{} `json:"settings,omitempty"`
	LastMessageAt *time.Time             `json:"last_message_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UnreadCount   int64                  `json:"unread_count"`
	Members       []MemberView           `json:"members"`
}

type ReactionGroup struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

type ReactionView struct {
	ID        uuid.UUID `json:"id"`
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

type MessageView struct {
	ID          uuid.UUID              `json:"id"`
	RoomID      uuid.UUID              `json:"room_id"`
	UserID      uuid.UUID              `json:"user_id"`
	AuthorName  string                 `json:"author_name,omitempty"`
	ReplyToID   *uuid.UUID             `json:"reply_to_id,omitempty"`
	Type        string                 `json:"type"`
	Body        string                 `json:"body"`
	Attachments []models.Attachment    `json:"attachments,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	IsEdited    bool                   `json:"is_edited"`
	IsDeleted   bool                   `json:"is_deleted"`
	EditedAt    *time.Time             `json:"edited_at,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	Reactions   []ReactionGroup        `json:"reactions,omitempty"`
	MyReactions []string               `json:"my_reactions,omitempty"`
}

func renderMember(m *models.ChatRoomMember, now time.Time) MemberView {
	return MemberView{
		ID:         m.ID,
		UserID:     m.UserID,
		Username:   m.User.Username,
		AvatarURL:  m.User.AvatarURL,
		IsAdmin:    m.IsAdmin,
		IsMuted:    m.IsMutedAt(now),
		MutedUntil: m.MutedUntil,
		LastReadAt: m.LastReadAt,
	}
}

func renderRoom(room *models.ChatRoom, unread int64, now time.Time) *RoomView {
	members := make([]MemberView, len(room.Members))
	for i := range room.Members {
		members[i] = renderMember(&room.Members[i], now)
	}
	return &RoomView{
		ID:            room.ID,
		FamilyID:      room.FamilyID,
		Name:          room.Name,
		Type:          room.Type,
		Description:   room.Description,
		CreatedBy:     room.CreatedBy,
		IsPrivate:     room.IsPrivate,
		IsArchived:    room.IsArchived,
		Settings:      room.Settings,
		LastMessageAt: room.LastMessageAt,
		CreatedAt:     room.CreatedAt,
		UnreadCount:   unread,
		Members:       members,
	}
}

// renderMessage masks deleted messages: the stored body survives for
// audit but never reaches a client, and reactions drop out of the counts.
func renderMessage(msg *models.Message, reactions []models.Reaction, viewer uuid.UUID) *MessageView {
	view := &MessageView{
		ID:         msg.ID,
		RoomID:     msg.RoomID,
		UserID:     msg.UserID,
		AuthorName: msg.User.Username,
		ReplyToID:  msg.ReplyToID,
		Type:       msg.Type,
		Body:       msg.Body,
		IsEdited:   msg.IsEdited,
		IsDeleted:  msg.IsDeleted,
		EditedAt:   msg.EditedAt,
		CreatedAt:  msg.CreatedAt,
	}
	if msg.IsDeleted {
		view.Body = ""
		return view
	}
	view.Attachments = msg.Attachments
	view.Metadata = msg.Metadata

	if len(reactions) > 0 {
		counts := make(map[string]int)
		order := make([]string, 0, len(reactions))
		for _, r := range reactions {
			if counts[r.Emoji] == 0 {
				order = append(order, r.Emoji)
			}
			counts[r.Emoji]++
			if r.UserID == viewer {
				view.MyReactions = append(view.MyReactions, r.Emoji)
			}
		}
		for _, emoji := range order {
			view.Reactions = append(view.Reactions, ReactionGroup{Emoji: emoji, Count: counts[emoji]})
		}
	}
	return view
}

func renderReaction(r *models.Reaction) *ReactionView {
	return &ReactionView{
		ID:        r.ID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji,
		CreatedAt: r.CreatedAt,
	}
}
