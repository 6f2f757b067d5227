package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/famlink/famlink/internal/database"
	"github.com/famlink/famlink/internal/models"
	"github.com/famlink/famlink/internal/realtime"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Broadcaster is the outbound event sink. Implemented by
// realtime.Dispatcher; faked in tests.
type Broadcaster interface {
	Publish(ctx context.Context, channel, event string, payload interface{})
}

// TypingEvent is the user.typing payload. Typing state is never
// persisted; repeated frames are delivered as-is and consumers debounce.
type TypingEvent struct {
	UserID   uuid.UUID `json:"user_id"`
	UserName string    `json:"user_name"`
	RoomID   uuid.UUID `json:"room_id"`
	IsTyping bool      `json:"is_typing"`
}

// RoomService owns room lifecycle and membership semantics.
type RoomService struct {
	db  *database.Database
	bus Broadcaster
	log *logrus.Logger
}

func NewRoomService(db *database.Database, bus Broadcaster, log *logrus.Logger) *RoomService {
	return &RoomService{db: db, bus: bus, log: log}
}

type CreateRoomInput struct {
	FamilyID    uuid.UUID
	Type        string
	Name        string
	Description string
	IsPrivate   bool
	MemberIDs   []uuid.UUID
}

// CreateRoom creates a room with the creator as admin. For direct rooms
// it is a find-or-create: an existing direct room between the same two
// users is returned instead of a duplicate.
func (s *RoomService) CreateRoom(ctx context.Context, creatorID uuid.UUID, in CreateRoomInput) (*RoomView, error) {
	if !models.ValidRoomType(in.Type) {
		return nil, fmt.Errorf("%w: unknown room type %q", ErrValidation, in.Type)
	}

	inFamily, err := s.db.IsActiveFamilyMember(creatorID, in.FamilyID)
	if err != nil {
		return nil, err
	}
	if !inFamily {
		return nil, fmt.Errorf("%w: not a member of this family", ErrUnauthorized)
	}

	if in.Type == models.RoomTypeDirect {
		return s.createDirectRoom(ctx, creatorID, in)
	}

	if in.Name == "" {
		return nil, fmt.Errorf("%w: room name is required", ErrValidation)
	}

	for _, memberID := range in.MemberIDs {
		if memberID == creatorID {
			continue
		}
		ok, err := s.db.IsActiveFamilyMember(memberID, in.FamilyID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: user %s is not a member of this family", ErrValidation, memberID)
		}
	}

	room := &models.ChatRoom{
		FamilyID:    in.FamilyID,
		Name:        in.Name,
		Type:        in.Type,
		Description: in.Description,
		CreatedBy:   creatorID,
		IsPrivate:   in.IsPrivate,
	}
	if err := s.db.CreateRoom(room); err != nil {
		return nil, err
	}

	if err := s.db.AddMember(&models.ChatRoomMember{RoomID: room.ID, UserID: creatorID, IsAdmin: true}); err != nil {
		return nil, err
	}
	for _, memberID := range in.MemberIDs {
		if memberID == creatorID {
			continue
		}
		if err := s.db.AddMember(&models.ChatRoomMember{RoomID: room.ID, UserID: memberID}); err != nil {
			return nil, err
		}
	}

	s.log.WithFields(logrus.Fields{"room": room.ID, "type": room.Type}).Info("room created")
	return s.roomView(room.ID, creatorID)
}

func (s *RoomService) createDirectRoom(ctx context.Context, creatorID uuid.UUID, in CreateRoomInput) (*RoomView, error) {
	if len(in.MemberIDs) != 1 {
		return nil, fmt.Errorf("%w: a direct room takes exactly one other member", ErrValidation)
	}
	otherID := in.MemberIDs[0]
	if otherID == creatorID {
		return nil, fmt.Errorf("%w: cannot open a direct room with yourself", ErrValidation)
	}

	ok, err := s.db.IsActiveFamilyMember(otherID, in.FamilyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: user %s is not a member of this family", ErrValidation, otherID)
	}

	if existing, err := s.db.FindDirectRoom(in.FamilyID, creatorID, otherID); err == nil {
		return s.roomView(existing.ID, creatorID)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	room := &models.ChatRoom{
		FamilyID:  in.FamilyID,
		Name:      in.Name,
		Type:      models.RoomTypeDirect,
		CreatedBy: creatorID,
		IsPrivate: true,
	}
	if err := s.db.CreateRoom(room); err != nil {
		return nil, err
	}
	if err := s.db.AddMember(&models.ChatRoomMember{RoomID: room.ID, UserID: creatorID, IsAdmin: true}); err != nil {
		return nil, err
	}
	if err := s.db.AddMember(&models.ChatRoomMember{RoomID: room.ID, UserID: otherID}); err != nil {
		return nil, err
	}

	return s.roomView(room.ID, creatorID)
}

// GetRoom returns the room for an active member. Archived rooms stay
// readable.
func (s *RoomService) GetRoom(ctx context.Context, principal, roomID uuid.UUID) (*RoomView, error) {
	room, member, err := s.memberOf(roomID, principal)
	if err != nil {
		return nil, err
	}
	unread, err := s.db.CountMessagesAfter(roomID, member.LastReadAt)
	if err != nil {
		return nil, err
	}
	return renderRoom(room, unread, time.Now()), nil
}

// ListRooms returns the principal's rooms with unread counts.
func (s *RoomService) ListRooms(ctx context.Context, principal uuid.UUID) ([]*RoomView, error) {
	rooms, err := s.db.GetUserRooms(principal)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	views := make([]*RoomView, 0, len(rooms))
	for i := range rooms {
		room := &rooms[i]
		var lastRead *time.Time
		for j := range room.Members {
			if room.Members[j].UserID == principal {
				lastRead = room.Members[j].LastReadAt
				break
			}
		}
		unread, err := s.db.CountMessagesAfter(room.ID, lastRead)
		if err != nil {
			return nil, err
		}
		views = append(views, renderRoom(room, unread, now))
	}
	return views, nil
}

// RoomUpdate carries a partial update; nil fields stay untouched.
type RoomUpdate struct {
	Name        *string
	Description *string
	IsPrivate   *bool
	Settings    map[string]interface{}
}

func (s *RoomService) UpdateRoom(ctx context.Context, principal, roomID uuid.UUID, update RoomUpdate) (*RoomView, error) {
	_, member, err := s.writeGuard(roomID, principal)
	if err != nil {
		return nil, err
	}
	if !member.IsAdmin {
		return nil, fmt.Errorf("%w: only a room admin may update the room", ErrUnauthorized)
	}

	fields := map[string]interface{}{}
	if update.Name != nil {
		if *update.Name == "" {
			return nil, fmt.Errorf("%w: room name cannot be empty", ErrValidation)
		}
		fields["name"] = *update.Name
	}
	if update.Description != nil {
		fields["description"] = *update.Description
	}
	if update.IsPrivate != nil {
		fields["is_private"] = *update.IsPrivate
	}
	if update.Settings != nil {
		fields["settings"] = datatypes.JSONMap(update.Settings)
	}

	if err := s.db.UpdateRoomFields(roomID, fields); err != nil {
		return nil, translateNotFound(err)
	}
	return s.roomView(roomID, principal)
}

// ArchiveRoom is one-way; there is no unarchive.
func (s *RoomService) ArchiveRoom(ctx context.Context, principal, roomID uuid.UUID) error {
	_, member, err := s.writeGuard(roomID, principal)
	if err != nil {
		return err
	}
	if !member.IsAdmin {
		return fmt.Errorf("%w: only a room admin may archive the room", ErrUnauthorized)
	}
	archived, err := s.db.ArchiveRoom(roomID)
	if err != nil {
		return err
	}
	if !archived {
		return fmt.Errorf("%w: room is already archived", ErrConflict)
	}
	s.log.WithField("room", roomID).Info("room archived")
	return nil
}

// AddMember admits a family member to a group room.
func (s *RoomService) AddMember(ctx context.Context, principal, roomID, userID uuid.UUID) (*MemberView, error) {
	room, member, err := s.writeGuard(roomID, principal)
	if err != nil {
		return nil, err
	}
	if !member.IsAdmin {
		return nil, fmt.Errorf("%w: only a room admin may add members", ErrUnauthorized)
	}
	if room.Type == models.RoomTypeDirect {
		return nil, fmt.Errorf("%w: direct rooms have a fixed membership", ErrValidation)
	}

	inFamily, err := s.db.IsActiveFamilyMember(userID, room.FamilyID)
	if err != nil {
		return nil, err
	}
	if !inFamily {
		return nil, fmt.Errorf("%w: user is not a member of the owning family", ErrValidation)
	}

	if _, err := s.db.GetMember(roomID, userID); err == nil {
		return nil, fmt.Errorf("%w: user is already a member", ErrConflict)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	added := &models.ChatRoomMember{RoomID: roomID, UserID: userID}
	if err := s.db.AddMember(added); err != nil {
		return nil, err
	}
	view := renderMember(added, time.Now())
	return &view, nil
}

// RemoveMember removes a member (admins may remove anyone, members may
// leave). Removing the last admin fails unless the room empties, in
// which case the room is archived rather than left ownerless.
func (s *RoomService) RemoveMember(ctx context.Context, principal, roomID, userID uuid.UUID) error {
	room, actor, err := s.writeGuard(roomID, principal)
	if err != nil {
		return err
	}
	if room.Type == models.RoomTypeDirect {
		return fmt.Errorf("%w: direct rooms have a fixed membership", ErrValidation)
	}
	if principal != userID && !actor.IsAdmin {
		return fmt.Errorf("%w: only a room admin may remove other members", ErrUnauthorized)
	}

	target, err := s.db.GetMember(roomID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: not a room member", ErrNotFound)
		}
		return err
	}

	if target.IsAdmin {
		removed, err := s.db.RemoveAdminMember(target.ID)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%w: cannot remove the last admin while other members remain", ErrConflict)
		}
	} else if err := s.db.RemoveMember(target.ID); err != nil {
		return err
	}

	remaining, err := s.db.CountMembers(roomID)
	if err != nil {
		return err
	}
	if remaining == 0 {
		if _, err := s.db.ArchiveRoom(roomID); err != nil {
			return err
		}
		s.log.WithField("room", roomID).Info("room emptied and archived")
	}
	return nil
}

// ToggleAdmin flips the admin flag. Demotion is conditional at the
// store so the room can never end up without an admin.
func (s *RoomService) ToggleAdmin(ctx context.Context, principal, roomID, userID uuid.UUID) error {
	_, actor, err := s.writeGuard(roomID, principal)
	if err != nil {
		return err
	}
	if !actor.IsAdmin {
		return fmt.Errorf("%w: only a room admin may change admin rights", ErrUnauthorized)
	}

	target, err := s.db.GetMember(roomID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: not a room member", ErrNotFound)
		}
		return err
	}

	if !target.IsAdmin {
		return s.db.PromoteAdmin(target.ID)
	}
	demoted, err := s.db.DemoteAdmin(target.ID)
	if err != nil {
		return err
	}
	if !demoted {
		return fmt.Errorf("%w: cannot demote the only admin", ErrConflict)
	}
	return nil
}

// Mute silences the principal's own notifications until the given time.
// Reading is never affected; the notification collaborator consults the
// window.
func (s *RoomService) Mute(ctx context.Context, principal, roomID uuid.UUID, until time.Time) error {
	_, member, err := s.writeGuard(roomID, principal)
	if err != nil {
		return err
	}
	if until.IsZero() || !until.After(time.Now()) {
		return fmt.Errorf("%w: mute window must end in the future", ErrValidation)
	}
	return s.db.SetMutedUntil(member.ID, &until)
}

func (s *RoomService) Unmute(ctx context.Context, principal, roomID uuid.UUID) error {
	_, member, err := s.writeGuard(roomID, principal)
	if err != nil {
		return err
	}
	return s.db.SetMutedUntil(member.ID, nil)
}

// MarkRead advances the read marker; stale timestamps are ignored, so
// calls commute. Allowed on archived rooms, which remain readable.
func (s *RoomService) MarkRead(ctx context.Context, principal, roomID uuid.UUID, at time.Time) error {
	_, member, err := s.memberOf(roomID, principal)
	if err != nil {
		return err
	}
	if at.IsZero() {
		at = time.Now()
	}
	return s.db.MarkRead(member.ID, at)
}

// SetTyping broadcasts a typing notification. Nothing is persisted and
// identical frames are not deduplicated.
func (s *RoomService) SetTyping(ctx context.Context, principal, roomID uuid.UUID, isTyping bool) error {
	_, _, err := s.memberOf(roomID, principal)
	if err != nil {
		return err
	}
	name, err := s.db.DisplayName(principal)
	if err != nil {
		return err
	}
	s.bus.Publish(ctx, realtime.RoomChannel(roomID), realtime.EventUserTyping, TypingEvent{
		UserID:   principal,
		UserName: name,
		RoomID:   roomID,
		IsTyping: isTyping,
	})
	return nil
}

// memberOf resolves the room and the principal's membership, for read
// paths and stateless operations.
func (s *RoomService) memberOf(roomID, principal uuid.UUID) (*models.ChatRoom, *models.ChatRoomMember, error) {
	room, err := s.db.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: room %s", ErrNotFound, roomID)
		}
		return nil, nil, err
	}
	member, err := s.db.GetMember(roomID, principal)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: not a room member", ErrUnauthorized)
		}
		return nil, nil, err
	}
	return room, member, nil
}

// writeGuard re-validates membership and the archived flag immediately
// before a mutation, per the room state machine.
func (s *RoomService) writeGuard(roomID, principal uuid.UUID) (*models.ChatRoom, *models.ChatRoomMember, error) {
	room, member, err := s.memberOf(roomID, principal)
	if err != nil {
		return nil, nil, err
	}
	if room.IsArchived {
		return nil, nil, fmt.Errorf("%w: room is archived", ErrConflict)
	}
	return room, member, nil
}

func (s *RoomService) roomView(roomID, principal uuid.UUID) (*RoomView, error) {
	room, err := s.db.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	var lastRead *time.Time
	for i := range room.Members {
		if room.Members[i].UserID == principal {
			lastRead = room.Members[i].LastReadAt
			break
		}
	}
	unread, err := s.db.CountMessagesAfter(roomID, lastRead)
	if err != nil {
		return nil, err
	}
	return renderRoom(room, unread, time.Now()), nil
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
