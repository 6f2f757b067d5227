package chat

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/famlink/famlink/internal/database"
	"github.com/famlink/famlink/internal/models"
	"github.com/famlink/famlink/internal/realtime"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Per-type payload caps. Text is counted in runes; sized media types
// are checked against the declared attachment sizes. Remaining types
// carry no cap.
const maxTextRunes = 5000

var maxAttachmentBytes = map[string]int64{
	models.MessageTypeImage: 10 << 20,
	models.MessageTypeVideo: 100 << 20,
	models.MessageTypeAudio: 20 << 20,
	models.MessageTypeFile:  50 << 20,
}

// ReactionRemovedEvent carries the removed triple; no reaction id
// exists anymore by the time it is broadcast.
type ReactionRemovedEvent struct {
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
}

// MessageService owns the message lifecycle and reactions.
type MessageService struct {
	db         *database.Database
	bus        Broadcaster
	log        *logrus.Logger
	editWindow time.Duration // zero means no expiry
}

func NewMessageService(db *database.Database, bus Broadcaster, log *logrus.Logger, editWindow time.Duration) *MessageService {
	return &MessageService{db: db, bus: bus, log: log, editWindow: editWindow}
}

type SendInput struct {
	RoomID      uuid.UUID
	Type        string
	Body        string
	ReplyToID   *uuid.UUID
	Attachments []models.Attachment
	Metadata    map[string]interface{}
}

// Send persists a message, bumps the room's last-message marker and
// broadcasts message.sent. The store write is the commit point; the
// broadcast happens strictly after it and cannot fail the send.
func (s *MessageService) Send(ctx context.Context, authorID uuid.UUID, in SendInput) (*MessageView, error) {
	room, err := s.db.GetRoom(in.RoomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: room %s", ErrNotFound, in.RoomID)
		}
		return nil, err
	}
	if room.IsArchived {
		return nil, fmt.Errorf("%w: room is archived", ErrConflict)
	}
	if _, err := s.db.GetMember(in.RoomID, authorID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: not a room member", ErrUnauthorized)
		}
		return nil, err
	}

	msgType := in.Type
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if !models.ValidMessageType(msgType) {
		return nil, fmt.Errorf("%w: unknown message type %q", ErrValidation, msgType)
	}
	if err := validatePayload(msgType, in.Body, in.Attachments); err != nil {
		return nil, err
	}

	replyToID, err := s.resolveReply(in.RoomID, in.ReplyToID)
	if err != nil {
		return nil, err
	}

	message := &models.Message{
		RoomID:      in.RoomID,
		UserID:      authorID,
		ReplyToID:   replyToID,
		Type:        msgType,
		Body:        in.Body,
		Attachments: in.Attachments,
		Metadata:    in.Metadata,
		CreatedAt:   time.Now(),
	}
	if err := s.db.SaveMessage(message); err != nil {
		return nil, err
	}
	if err := s.db.TouchLastMessage(in.RoomID, message.CreatedAt); err != nil {
		s.log.WithField("room", in.RoomID).WithError(err).Warn("failed to bump last_message_at")
	}

	saved, err := s.db.GetMessage(message.ID)
	if err != nil {
		return nil, err
	}
	view := renderMessage(saved, nil, authorID)
	s.bus.Publish(ctx, realtime.RoomChannel(in.RoomID), realtime.EventMessageSent, view)
	return view, nil
}

// resolveReply enforces the single-level reply model: replying to a
// reply references the original, and the target must live in the same
// room.
func (s *MessageService) resolveReply(roomID uuid.UUID, replyToID *uuid.UUID) (*uuid.UUID, error) {
	if replyToID == nil {
		return nil, nil
	}
	target, err := s.db.GetMessage(*replyToID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: reply target %s", ErrNotFound, *replyToID)
		}
		return nil, err
	}
	if target.RoomID != roomID {
		return nil, fmt.Errorf("%w: reply target is in a different room", ErrValidation)
	}
	if target.ReplyToID != nil {
		return target.ReplyToID, nil
	}
	id := target.ID
	return &id, nil
}

// Edit rewrites the body. Author-only, blocked on deleted messages, and
// bounded by the configured edit window when one is set.
func (s *MessageService) Edit(ctx context.Context, editorID, messageID uuid.UUID, newBody string) (*MessageView, error) {
	message, err := s.getMessage(messageID)
	if err != nil {
		return nil, err
	}
	if message.IsDeleted {
		return nil, fmt.Errorf("%w: message is deleted", ErrConflict)
	}
	if message.UserID != editorID {
		return nil, fmt.Errorf("%w: only the author may edit a message", ErrUnauthorized)
	}
	if s.editWindow > 0 && time.Since(message.CreatedAt) > s.editWindow {
		return nil, fmt.Errorf("%w: edit window has expired", ErrValidation)
	}
	if message.Type == models.MessageTypeText {
		if err := validatePayload(message.Type, newBody, nil); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	message.Body = newBody
	message.IsEdited = true
	message.EditedAt = &now
	if err := s.db.UpdateMessage(message); err != nil {
		return nil, err
	}

	reactions, err := s.db.ListReactions(messageID)
	if err != nil {
		return nil, err
	}
	return renderMessage(message, reactions, editorID), nil
}

// Delete soft-deletes. Allowed for the author or a room admin; the row
// and its reactions survive for audit but disappear from presentation.
func (s *MessageService) Delete(ctx context.Context, requesterID, messageID uuid.UUID) error {
	message, err := s.getMessage(messageID)
	if err != nil {
		return err
	}

	if message.UserID != requesterID {
		member, err := s.db.GetMember(message.RoomID, requesterID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: not a room member", ErrUnauthorized)
			}
			return err
		}
		if !member.IsAdmin {
			return fmt.Errorf("%w: only the author or a room admin may delete a message", ErrUnauthorized)
		}
	}

	deleted, err := s.db.SoftDeleteMessage(messageID, time.Now())
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: message is already deleted", ErrConflict)
	}
	return nil
}

// AddReaction upserts the (message, user, emoji) triple; re-adding is
// idempotent and does not re-broadcast.
func (s *MessageService) AddReaction(ctx context.Context, userID, messageID uuid.UUID, emoji string) (*ReactionView, error) {
	if emoji == "" {
		return nil, fmt.Errorf("%w: emoji is required", ErrValidation)
	}
	message, err := s.getMessage(messageID)
	if err != nil {
		return nil, err
	}
	if message.IsDeleted {
		return nil, fmt.Errorf("%w: message is deleted", ErrConflict)
	}
	if _, err := s.db.GetMember(message.RoomID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: not a room member", ErrUnauthorized)
		}
		return nil, err
	}

	reaction, created, err := s.db.AddReaction(messageID, userID, emoji)
	if err != nil {
		return nil, err
	}
	view := renderReaction(reaction)
	if created {
		s.bus.Publish(ctx, realtime.RoomChannel(message.RoomID), realtime.EventReactionAdded, view)
	}
	return view, nil
}

// RemoveReaction deletes the triple. Removing an absent reaction is a
// successful no-op and broadcasts nothing.
func (s *MessageService) RemoveReaction(ctx context.Context, userID, messageID uuid.UUID, emoji string) error {
	message, err := s.getMessage(messageID)
	if err != nil {
		return err
	}
	if _, err := s.db.GetMember(message.RoomID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: not a room member", ErrUnauthorized)
		}
		return err
	}

	removed, err := s.db.RemoveReaction(messageID, userID, emoji)
	if err != nil {
		return err
	}
	if removed {
		s.bus.Publish(ctx, realtime.RoomChannel(message.RoomID), realtime.EventReactionRemoved, ReactionRemovedEvent{
			MessageID: messageID,
			UserID:    userID,
			Emoji:     emoji,
		})
	}
	return nil
}

// History returns a page of room messages for a member, oldest first,
// with reaction aggregates and deleted bodies masked.
func (s *MessageService) History(ctx context.Context, principal, roomID uuid.UUID, limit int, beforeID *uuid.UUID) ([]*MessageView, error) {
	if _, err := s.db.GetRoom(roomID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: room %s", ErrNotFound, roomID)
		}
		return nil, err
	}
	if _, err := s.db.GetMember(roomID, principal); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: not a room member", ErrUnauthorized)
		}
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	messages, err := s.db.GetRoomMessages(roomID, limit, beforeID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(messages))
	for i := range messages {
		ids[i] = messages[i].ID
	}
	reactions, err := s.db.ListReactionsForMessages(ids)
	if err != nil {
		return nil, err
	}
	byMessage := make(map[uuid.UUID][]models.Reaction)
	for _, r := range reactions {
		byMessage[r.MessageID] = append(byMessage[r.MessageID], r)
	}

	views := make([]*MessageView, len(messages))
	for i := range messages {
		views[i] = renderMessage(&messages[i], byMessage[messages[i].ID], principal)
	}
	return views, nil
}

func (s *MessageService) getMessage(id uuid.UUID) (*models.Message, error) {
	message, err := s.db.GetMessage(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: message %s", ErrNotFound, id)
		}
		return nil, err
	}
	return message, nil
}

func validatePayload(msgType, body string, attachments []models.Attachment) error {
	if msgType == models.MessageTypeText {
		if n := utf8.RuneCountInString(body); n > maxTextRunes {
			return fmt.Errorf("%w: text body of %d characters exceeds the %d character limit", ErrValidation, n, maxTextRunes)
		}
		return nil
	}
	maxBytes, ok := maxAttachmentBytes[msgType]
	if !ok {
		return nil
	}
	var total int64
	for _, a := range attachments {
		total += a.Size
	}
	if total > maxBytes {
		return fmt.Errorf("%w: %s payload of %d bytes exceeds the %d byte limit", ErrValidation, msgType, total, maxBytes)
	}
	return nil
}
