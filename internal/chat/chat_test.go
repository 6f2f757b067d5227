package chat

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/famlink/famlink/internal/database"
	"github.com/famlink/famlink/internal/models"
)

type recordedEvent struct {
	Channel string
	Event   string
	Payload interface{}
}

type fakeBus struct {
	events []recordedEvent
}

func (f *fakeBus) Publish(_ context.Context, channel, event string, payload interface{}) {
	f.events = append(f.events, recordedEvent{Channel: channel, Event: event, Payload: payload})
}

func (f *fakeBus) last(t *testing.T) recordedEvent {
	t.Helper()
	if len(f.events) == 0 {
		t.Fatal("no events published")
	}
	return f.events[len(f.events)-1]
}

func newTestDB(t *testing.T) *database.Database {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// A second pooled connection would see an empty :memory: database.
	sqlDB.SetMaxOpenConns(1)

	db := database.NewDatabase(gdb)
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fixture seeds one family with alice, bob and carol; mallory exists but
// belongs to no family.
type fixture struct {
	db       *database.Database
	bus      *fakeBus
	rooms    *RoomService
	messages *MessageService

	family  uuid.UUID
	alice   uuid.UUID
	bob     uuid.UUID
	carol   uuid.UUID
	mallory uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	bus := &fakeBus{}
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	f := &fixture{
		db:       db,
		bus:      bus,
		rooms:    NewRoomService(db, bus, log),
		messages: NewMessageService(db, bus, log, 0),
	}

	family := &models.Family{Name: "the smiths"}
	if err := db.CreateFamily(family); err != nil {
		t.Fatalf("seed family: %v", err)
	}
	f.family = family.ID

	f.alice = f.addUser(t, "alice")
	f.bob = f.addUser(t, "bob")
	f.carol = f.addUser(t, "carol")
	f.mallory = f.addUser(t, "mallory")

	for _, userID := range []uuid.UUID{f.alice, f.bob, f.carol} {
		err := db.AddFamilyMember(&models.FamilyMember{FamilyID: f.family, UserID: userID, IsActive: true})
		if err != nil {
			t.Fatalf("seed family member: %v", err)
		}
	}
	return f
}

func (f *fixture) addUser(t *testing.T, name string) uuid.UUID {
	t.Helper()
	user := &models.User{Username: name, Email: name + "@example.com", PasswordHash: "x"}
	if err := f.db.SaveUser(user); err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return user.ID
}

func (f *fixture) groupRoom(t *testing.T, members ...uuid.UUID) *RoomView {
	t.Helper()
	room, err := f.rooms.CreateRoom(context.Background(), f.alice, CreateRoomInput{
		FamilyID:  f.family,
		Type:      models.RoomTypeGroup,
		Name:      "kitchen table",
		MemberIDs: members,
	})
	if err != nil {
		t.Fatalf("create group room: %v", err)
	}
	return room
}

func (f *fixture) send(t *testing.T, author, roomID uuid.UUID, body string) *MessageView {
	t.Helper()
	msg, err := f.messages.Send(context.Background(), author, SendInput{RoomID: roomID, Body: body})
	if err != nil {
		t.Fatalf("send %q: %v", body, err)
	}
	return msg
}
