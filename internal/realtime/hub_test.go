package realtime

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func newTestHub() (*Hub, *Authorizer) {
	a := NewAuthorizer("app-key", "app-secret", &fakeMembership{}, quietLog())
	return NewHub(a, quietLog()), a
}

// connectClient registers a client directly, bypassing the Run loop.
func connectClient(h *Hub) *Client {
	c := NewClient(h, nil, uuid.New())
	h.registerClient(c)
	drainFrames(c)
	return c
}

func drainFrames(c *Client) []Envelope {
	var frames []Envelope
	for {
		select {
		case body, ok := <-c.Send:
			if !ok {
				return frames
			}
			var env Envelope
			if err := json.Unmarshal(body, &env); err == nil {
				frames = append(frames, env)
			}
		default:
			return frames
		}
	}
}

func lastFrame(t *testing.T, c *Client) Envelope {
	t.Helper()
	frames := drainFrames(c)
	if len(frames) == 0 {
		t.Fatal("no frames on send queue")
	}
	return frames[len(frames)-1]
}

func roomToken(a *Authorizer, c *Client, channel string) string {
	return a.sign(c.ID.String() + ":" + channel)
}

func TestHubRegisterAnnouncesSocketID(t *testing.T) {
	h, _ := newTestHub()
	c := NewClient(h, nil, uuid.New())
	h.registerClient(c)

	frame := lastFrame(t, c)
	if frame.Event != eventConnectionEstablished {
		t.Fatalf("event = %q", frame.Event)
	}
	var data map[string]string
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		t.Fatalf("data: %v", err)
	}
	if data["socket_id"] != c.ID.String() {
		t.Fatalf("socket_id = %q, want %s", data["socket_id"], c.ID)
	}
}

func TestHubSubscribeVerifiesToken(t *testing.T) {
	h, a := newTestHub()
	channel := RoomChannel(uuid.New())
	c := connectClient(h)

	h.Subscribe(c, channel, "bogus", "")
	frame := lastFrame(t, c)
	if frame.Event != eventSubscriptionError {
		t.Fatalf("event = %q, want subscription error", frame.Event)
	}
	if h.ChannelSubscribers(channel) != 0 {
		t.Fatal("unauthorized socket joined the channel")
	}

	h.Subscribe(c, channel, roomToken(a, c, channel), "")
	frame = lastFrame(t, c)
	if frame.Event != eventSubscriptionSucceeded || frame.Channel != channel {
		t.Fatalf("frame = %+v", frame)
	}
	if h.ChannelSubscribers(channel) != 1 {
		t.Fatalf("subscribers = %d, want 1", h.ChannelSubscribers(channel))
	}

	// A token minted for one socket does not transfer to another.
	other := connectClient(h)
	h.Subscribe(other, channel, roomToken(a, c, channel), "")
	if frame := lastFrame(t, other); frame.Event != eventSubscriptionError {
		t.Fatalf("event = %q, want subscription error", frame.Event)
	}
}

func TestHubRejectsUnknownChannel(t *testing.T) {
	h, _ := newTestHub()
	c := connectClient(h)

	h.Subscribe(c, "private-lounge.1", "anything", "")
	if frame := lastFrame(t, c); frame.Event != eventSubscriptionError {
		t.Fatalf("event = %q", frame.Event)
	}
}

func TestHubPresenceLifecycle(t *testing.T) {
	h, a := newTestHub()
	channel := FamilyChannel(uuid.New())

	first := connectClient(h)
	firstData := `{"id":"u1","name":"Alice"}`
	h.Subscribe(first, channel, a.sign(first.ID.String()+":"+channel+":"+firstData), firstData)
	if frame := lastFrame(t, first); frame.Event != eventSubscriptionSucceeded {
		t.Fatalf("first subscribe: %+v", frame)
	}

	// Presence requires channel_data even when the signature would match.
	bad := connectClient(h)
	h.Subscribe(bad, channel, a.sign(bad.ID.String()+":"+channel), "")
	if frame := lastFrame(t, bad); frame.Event != eventSubscriptionError {
		t.Fatalf("missing channel_data: %+v", frame)
	}

	second := connectClient(h)
	secondData := `{"id":"u2","name":"Bob"}`
	h.Subscribe(second, channel, a.sign(second.ID.String()+":"+channel+":"+secondData), secondData)

	// The joiner receives the current member list.
	frame := lastFrame(t, second)
	if frame.Event != eventSubscriptionSucceeded {
		t.Fatalf("second subscribe: %+v", frame)
	}
	var payload struct {
		Members []json.RawMessage `json:"members"`
	}
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("members payload: %v", err)
	}
	if len(payload.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(payload.Members))
	}

	// Existing subscribers hear about the join.
	frames := drainFrames(first)
	if len(frames) == 0 || frames[len(frames)-1].Event != eventMemberAdded {
		t.Fatalf("first saw frames %+v, want member_added", frames)
	}

	h.Unsubscribe(second, channel)
	frame = lastFrame(t, first)
	if frame.Event != eventMemberRemoved {
		t.Fatalf("event = %q, want member_removed", frame.Event)
	}
	var gone map[string]string
	if err := json.Unmarshal(frame.Data, &gone); err != nil {
		t.Fatalf("removed profile: %v", err)
	}
	if gone["id"] != "u2" {
		t.Fatalf("removed profile = %v", gone)
	}
}

func TestHubDeliverFansOutToSubscribersOnly(t *testing.T) {
	h, a := newTestHub()
	channel := RoomChannel(uuid.New())

	in := connectClient(h)
	h.Subscribe(in, channel, roomToken(a, in, channel), "")
	drainFrames(in)
	out := connectClient(h)

	payload := []byte(`{"channel":"x","event":"message.sent","data":{}}`)
	h.Deliver(channel, payload)

	select {
	case got := <-in.Send:
		if !bytes.Equal(got, payload) {
			t.Fatalf("payload relayed as %s", got)
		}
	default:
		t.Fatal("subscriber received nothing")
	}
	if len(out.Send) != 0 {
		t.Fatal("non-subscriber received the event")
	}
}

func TestHubUnregisterCleansUpChannels(t *testing.T) {
	h, a := newTestHub()
	channel := RoomChannel(uuid.New())

	c := connectClient(h)
	h.Subscribe(c, channel, roomToken(a, c, channel), "")
	h.unregisterClient(c)

	if h.ChannelSubscribers(channel) != 0 {
		t.Fatal("disconnected socket still subscribed")
	}

	drainFrames(c)
	select {
	case _, ok := <-c.Send:
		if ok {
			t.Fatal("send queue delivered after disconnect")
		}
	default:
		t.Fatal("send queue was not closed on disconnect")
	}
}
