package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/famlink/famlink/internal/models"
	"github.com/famlink/famlink/internal/realtime"
)

func TestCreateGroupRoomMakesCreatorAdmin(t *testing.T) {
	f := newFixture(t)
	room := f.groupRoom(t, f.bob)

	if len(room.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(room.Members))
	}
	byUser := map[uuid.UUID]MemberView{}
	for _, m := range room.Members {
		byUser[m.UserID] = m
	}
	if !byUser[f.alice].IsAdmin {
		t.Fatal("creator is not admin")
	}
	if byUser[f.bob].IsAdmin {
		t.Fatal("invited member started as admin")
	}
}

func TestCreateRoomValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rooms.CreateRoom(ctx, f.alice, CreateRoomInput{FamilyID: f.family, Type: "broadcast", Name: "x"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown type: err = %v, want ErrValidation", err)
	}

	_, err = f.rooms.CreateRoom(ctx, f.mallory, CreateRoomInput{FamilyID: f.family, Type: models.RoomTypeGroup, Name: "x"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("outsider creator: err = %v, want ErrUnauthorized", err)
	}

	_, err = f.rooms.CreateRoom(ctx, f.alice, CreateRoomInput{
		FamilyID:  f.family,
		Type:      models.RoomTypeGroup,
		Name:      "x",
		MemberIDs: []uuid.UUID{f.mallory},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("outsider member: err = %v, want ErrValidation", err)
	}

	_, err = f.rooms.CreateRoom(ctx, f.alice, CreateRoomInput{FamilyID: f.family, Type: models.RoomTypeGroup})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("missing name: err = %v, want ErrValidation", err)
	}
}

func TestDirectRoomFindOrCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.rooms.CreateRoom(ctx, f.alice, CreateRoomInput{
		FamilyID:  f.family,
		Type:      models.RoomTypeDirect,
		MemberIDs: []uuid.UUID{f.bob},
	})
	if err != nil {
		t.Fatalf("create direct: %v", err)
	}
	if len(first.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(first.Members))
	}
	if !first.IsPrivate {
		t.Fatal("direct room is not private")
	}

	// The same pair, opened from the other side, resolves to the same room.
	second, err := f.rooms.CreateRoom(ctx, f.bob, CreateRoomInput{
		FamilyID:  f.family,
		Type:      models.RoomTypeDirect,
		MemberIDs: []uuid.UUID{f.alice},
	})
	if err != nil {
		t.Fatalf("reopen direct: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("got a second direct room %s, want %s", second.ID, first.ID)
	}

	_, err = f.rooms.CreateRoom(ctx, f.alice, CreateRoomInput{
		FamilyID:  f.family,
		Type:      models.RoomTypeDirect,
		MemberIDs: []uuid.UUID{f.bob, f.carol},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("two members: err = %v, want ErrValidation", err)
	}

	_, err = f.rooms.CreateRoom(ctx, f.alice, CreateRoomInput{
		FamilyID:  f.family,
		Type:      models.RoomTypeDirect,
		MemberIDs: []uuid.UUID{f.alice},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("self direct: err = %v, want ErrValidation", err)
	}
}

func TestDirectRoomMembershipIsFixed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx, f.alice, CreateRoomInput{
		FamilyID:  f.family,
		Type:      models.RoomTypeDirect,
		MemberIDs: []uuid.UUID{f.bob},
	})
	if err != nil {
		t.Fatalf("create direct: %v", err)
	}

	if _, err := f.rooms.AddMember(ctx, f.alice, room.ID, f.carol); !errors.Is(err, ErrValidation) {
		t.Fatalf("add to direct: err = %v, want ErrValidation", err)
	}
	if err := f.rooms.RemoveMember(ctx, f.alice, room.ID, f.bob); !errors.Is(err, ErrValidation) {
		t.Fatalf("remove from direct: err = %v, want ErrValidation", err)
	}
}

func TestAddMemberRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.groupRoom(t, f.bob)

	// Non-admin members cannot add.
	if _, err := f.rooms.AddMember(ctx, f.bob, room.ID, f.carol); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-admin add: err = %v, want ErrUnauthorized", err)
	}

	added, err := f.rooms.AddMember(ctx, f.alice, room.ID, f.carol)
	if err != nil {
		t.Fatalf("admin add: %v", err)
	}
	if added.IsAdmin {
		t.Fatal("new member started as admin")
	}

	if _, err := f.rooms.AddMember(ctx, f.alice, room.ID, f.carol); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate add: err = %v, want ErrConflict", err)
	}
	if _, err := f.rooms.AddMember(ctx, f.alice, room.ID, f.mallory); !errors.Is(err, ErrValidation) {
		t.Fatalf("outsider add: err = %v, want ErrValidation", err)
	}
}

func TestToggleAdminNeverEmptiesAdminSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.groupRoom(t, f.bob)

	if err := f.rooms.ToggleAdmin(ctx, f.alice, room.ID, f.bob); err != nil {
		t.Fatalf("promote bob: %v", err)
	}

	// With two admins, alice may step down.
	if err := f.rooms.ToggleAdmin(ctx, f.alice, room.ID, f.alice); err != nil {
		t.Fatalf("demote alice: %v", err)
	}

	// Bob is now the only admin and cannot demote himself.
	err := f.rooms.ToggleAdmin(ctx, f.bob, room.ID, f.bob)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("demote last admin: err = %v, want ErrConflict", err)
	}

	admins, err := f.db.CountAdmins(room.ID)
	if err != nil {
		t.Fatalf("count admins: %v", err)
	}
	if admins != 1 {
		t.Fatalf("admins = %d, want 1", admins)
	}

	// Demoted members lose their privileges immediately.
	if err := f.rooms.ToggleAdmin(ctx, f.alice, room.ID, f.bob); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("demoted actor: err = %v, want ErrUnauthorized", err)
	}
}

func TestRemoveMemberLastAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.groupRoom(t, f.bob)

	// Alice is the only admin and other members remain.
	err := f.rooms.RemoveMember(ctx, f.alice, room.ID, f.alice)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("leave as last admin: err = %v, want ErrConflict", err)
	}

	if err := f.rooms.ToggleAdmin(ctx, f.alice, room.ID, f.bob); err != nil {
		t.Fatalf("promote bob: %v", err)
	}
	if err := f.rooms.RemoveMember(ctx, f.alice, room.ID, f.alice); err != nil {
		t.Fatalf("leave after handover: %v", err)
	}
}

func TestRemovingLastMemberArchivesRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.groupRoom(t)

	if err := f.rooms.RemoveMember(ctx, f.alice, room.ID, f.alice); err != nil {
		t.Fatalf("leave: %v", err)
	}

	stored, err := f.db.GetRoom(room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if !stored.IsArchived {
		t.Fatal("emptied room was not archived")
	}
}

func TestRemoveMemberAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.groupRoom(t, f.bob, f.carol)

	// A plain member cannot remove someone else but may leave.
	if err := f.rooms.RemoveMember(ctx, f.bob, room.ID, f.carol); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("member removes member: err = %v, want ErrUnauthorized", err)
	}
	if err := f.rooms.RemoveMember(ctx, f.bob, room.ID, f.bob); err != nil {
		t.Fatalf("member leaves: %v", err)
	}
	if err := f.rooms.RemoveMember(ctx, f.alice, room.ID, f.carol); err != nil {
		t.Fatalf("admin removes member: %v", err)
	}
	if err := f.rooms.RemoveMember(ctx, f.alice, room.ID, f.carol); !errors.Is(err, ErrNotFound) {
		t.Fatalf("remove absent member: err = %v, want ErrNotFound", err)
	}
}

func TestMarkReadIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.groupRoom(t, f.bob)

	t1 := time.Now()
	t0 := t1.Add(-time.Hour)

	if err := f.rooms.MarkRead(ctx, f.alice, room.ID, t1); err != nil {
		t.Fatalf("mark read t1: %v", err)
	}
	// A delayed request with an older timestamp must not move the marker back.
	if err := f.rooms.MarkRead(ctx, f.alice, room.ID, t0); err != nil {
		t.Fatalf("mark read t0: %v", err)
	}

	member, err := f.db.GetMember(room.ID, f.alice)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if member.LastReadAt == nil || member.LastReadAt.Before(t1) {
		t.Fatalf("last_read_at = %v, want >= %v", member.LastReadAt, t1)
	}
}

func TestMuteWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.groupRoom(t, f.bob)

	if err := f.rooms.Mute(ctx, f.alice, room.ID, time.Now().Add(-time.Minute)); !errors.Is(err, ErrValidation) {
		t.Fatalf("past mute: err = %v, want ErrValidation", err)
	}

	until := time.Now().Add(time.Hour)
	if err := f.rooms.Mute(ctx, f.alice, room.ID, until); err != nil {
		t.Fatalf("mute: %v", err)
	}
	member, err := f.db.GetMember(room.ID, f.alice)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if !member.IsMutedAt(time.Now()) {
		t.Fatal("member is not muted inside the window")
	}
	if member.IsMutedAt(until.Add(time.Minute)) {
		t.Fatal("member is still muted after the window")
	}

	if err := f.rooms.Unmute(ctx, f.alice, room.ID); err != nil {
		t.Fatalf("unmute: %v", err)
	}
	member, err = f.db.GetMember(room.ID, f.alice)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if member.MutedUntil != nil {
		t.Fatalf("muted_until = %v, want nil", member.MutedUntil)
	}
}

func TestArchivedRoomStaysReadable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.groupRoom(t, f.bob)
	f.send(t, f.bob, room.ID, "before the freeze")

	if err := f.rooms.ArchiveRoom(ctx, f.alice, room.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := f.rooms.ArchiveRoom(ctx, f.alice, room.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("re-archive: err = %v, want ErrConflict", err)
	}

	// Mutations are rejected.
	if _, err := f.rooms.AddMember(ctx, f.alice, room.ID, f.carol); !errors.Is(err, ErrConflict) {
		t.Fatalf("add member: err = %v, want ErrConflict", err)
	}
	if _, err := f.rooms.UpdateRoom(ctx, f.alice, room.ID, RoomUpdate{}); !errors.Is(err, ErrConflict) {
		t.Fatalf("update: err = %v, want ErrConflict", err)
	}
	if _, err := f.messages.Send(ctx, f.bob, SendInput{RoomID: room.ID, Body: "late"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("send: err = %v, want ErrConflict", err)
	}

	// Reads and read markers keep working.
	view, err := f.rooms.GetRoom(ctx, f.alice, room.ID)
	if err != nil {
		t.Fatalf("get archived room: %v", err)
	}
	if !view.IsArchived {
		t.Fatal("view does not show the room as archived")
	}
	if err := f.rooms.MarkRead(ctx, f.alice, room.ID, time.Now()); err != nil {
		t.Fatalf("mark read on archived room: %v", err)
	}
	if _, err := f.messages.History(ctx, f.alice, room.ID, 10, nil); err != nil {
		t.Fatalf("history on archived room: %v", err)
	}
}

func TestUpdateRoomPartial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, err := f.rooms.CreateRoom(ctx, f.alice, CreateRoomInput{
		FamilyID:    f.family,
		Type:        models.RoomTypeGroup,
		Name:        "homework",
		Description: "math first",
		MemberIDs:   []uuid.UUID{f.bob},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.rooms.UpdateRoom(ctx, f.bob, room.ID, RoomUpdate{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-admin update: err = %v, want ErrUnauthorized", err)
	}

	name := "homework club"
	updated, err := f.rooms.UpdateRoom(ctx, f.alice, room.ID, RoomUpdate{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "homework club" {
		t.Fatalf("name = %q", updated.Name)
	}
	if updated.Description != "math first" {
		t.Fatalf("description = %q, want untouched value", updated.Description)
	}

	empty := ""
	if _, err := f.rooms.UpdateRoom(ctx, f.alice, room.ID, RoomUpdate{Name: &empty}); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty name: err = %v, want ErrValidation", err)
	}
}

func TestListRoomsUnreadCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.groupRoom(t, f.bob)

	f.send(t, f.bob, room.ID, "one")
	f.send(t, f.bob, room.ID, "two")

	views, err := f.rooms.ListRooms(ctx, f.alice)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("rooms = %d, want 1", len(views))
	}
	if views[0].UnreadCount != 2 {
		t.Fatalf("unread = %d, want 2", views[0].UnreadCount)
	}

	if err := f.rooms.MarkRead(ctx, f.alice, room.ID, time.Now()); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	views, err = f.rooms.ListRooms(ctx, f.alice)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if views[0].UnreadCount != 0 {
		t.Fatalf("unread after mark read = %d, want 0", views[0].UnreadCount)
	}
}

func TestSetTypingBroadcasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.groupRoom(t, f.bob)

	if err := f.rooms.SetTyping(ctx, f.bob, room.ID, true); err != nil {
		t.Fatalf("set typing: %v", err)
	}

	event := f.bus.last(t)
	if event.Channel != realtime.RoomChannel(room.ID) {
		t.Fatalf("channel = %q", event.Channel)
	}
	if event.Event != realtime.EventUserTyping {
		t.Fatalf("event = %q", event.Event)
	}
	typing, ok := event.Payload.(TypingEvent)
	if !ok {
		t.Fatalf("payload = %T", event.Payload)
	}
	if typing.UserID != f.bob || typing.UserName != "bob" || !typing.IsTyping {
		t.Fatalf("payload = %+v", typing)
	}

	if err := f.rooms.SetTyping(ctx, f.mallory, room.ID, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("outsider typing: err = %v, want ErrUnauthorized", err)
	}
}

func TestGetRoomRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.groupRoom(t, f.bob)

	if _, err := f.rooms.GetRoom(ctx, f.carol, room.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("non-member read: err = %v, want ErrUnauthorized", err)
	}
	if _, err := f.rooms.GetRoom(ctx, f.alice, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown room: err = %v, want ErrNotFound", err)
	}
}
