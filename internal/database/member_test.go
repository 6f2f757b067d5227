package database

import (
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/famlink/famlink/internal/models"
)

func seedRoomWithAdmins(t *testing.T, db *Database, admins int) (uuid.UUID, []uuid.UUID) {
	t.Helper()
	room := &models.ChatRoom{
		FamilyID:  uuid.New(),
		Name:      "race",
		Type:      models.RoomTypeGroup,
		CreatedBy: uuid.New(),
	}
	if err := db.CreateRoom(room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	memberIDs := make([]uuid.UUID, admins)
	for i := range memberIDs {
		member := &models.ChatRoomMember{RoomID: room.ID, UserID: uuid.New(), IsAdmin: true}
		if err := db.AddMember(member); err != nil {
			t.Fatalf("add member: %v", err)
		}
		memberIDs[i] = member.ID
	}
	return room.ID, memberIDs
}

func TestConcurrentDemotionsKeepOneAdmin(t *testing.T) {
	db := newTestDB(t)
	roomID, memberIDs := seedRoomWithAdmins(t, db, 2)

	// Each demotion re-counts surviving admins inside its own UPDATE.
	// Whichever statement lands second must see an empty admin set
	// remaining and affect zero rows.
	var wg sync.WaitGroup
	demoted := make([]bool, len(memberIDs))
	errs := make([]error, len(memberIDs))
	for i, memberID := range memberIDs {
		wg.Add(1)
		go func(i int, memberID uuid.UUID) {
			defer wg.Done()
			demoted[i], errs[i] = db.DemoteAdmin(memberID)
		}(i, memberID)
	}
	wg.Wait()

	successes := 0
	for i := range memberIDs {
		if errs[i] != nil {
			t.Fatalf("demote %d: %v", i, errs[i])
		}
		if demoted[i] {
			successes++
		}
	}
	if successes != 1 {
		t.Fatalf("demotions succeeded = %d, want exactly 1", successes)
	}

	admins, err := db.CountAdmins(roomID)
	if err != nil {
		t.Fatalf("count admins: %v", err)
	}
	if admins != 1 {
		t.Fatalf("admins = %d, want 1", admins)
	}
}

func TestConcurrentAdminRemovalsKeepOneAdmin(t *testing.T) {
	db := newTestDB(t)
	roomID, memberIDs := seedRoomWithAdmins(t, db, 2)

	var wg sync.WaitGroup
	removed := make([]bool, len(memberIDs))
	errs := make([]error, len(memberIDs))
	for i, memberID := range memberIDs {
		wg.Add(1)
		go func(i int, memberID uuid.UUID) {
			defer wg.Done()
			removed[i], errs[i] = db.RemoveAdminMember(memberID)
		}(i, memberID)
	}
	wg.Wait()

	successes := 0
	for i := range memberIDs {
		if errs[i] != nil {
			t.Fatalf("remove %d: %v", i, errs[i])
		}
		if removed[i] {
			successes++
		}
	}
	// The first removal leaves a lone admin who is not the last member's
	// peer anymore; the second may only go through because the room
	// would empty. With two admins and no other members, both paths are
	// legal, but the admin set must never empty while members remain.
	remaining, err := db.CountMembers(roomID)
	if err != nil {
		t.Fatalf("count members: %v", err)
	}
	if remaining > 0 {
		admins, err := db.CountAdmins(roomID)
		if err != nil {
			t.Fatalf("count admins: %v", err)
		}
		if admins == 0 {
			t.Fatalf("members = %d with no admin left", remaining)
		}
	}
	if successes == 0 {
		t.Fatal("no removal succeeded")
	}
}
