package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Relay-side control events, sent only to sockets, never through the
// dispatcher.
const (
	eventConnectionEstablished = "connection.established"
	eventSubscriptionSucceeded = "subscription.succeeded"
	eventSubscriptionError     = "subscription.error"
	eventMemberAdded           = "presence.member_added"
	eventMemberRemoved         = "presence.member_removed"
)

// Hub relays transport envelopes to websocket subscribers. A socket
// joins a channel only with a token signed by the Authorizer, which
// keeps the relay's access rules identical to the hosted-transport
// path.
type Hub struct {
	authorizer *Authorizer
	log        *logrus.Logger

	clients  map[uuid.UUID]*Client
	channels map[string]map[uuid.UUID]*Client
	// presence profiles per channel, keyed by socket id
	presence map[string]map[uuid.UUID]json.RawMessage

	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(authorizer *Authorizer, log *logrus.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		authorizer: authorizer,
		log:        log,
		clients:    make(map[uuid.UUID]*Client),
		channels:   make(map[string]map[uuid.UUID]*Client),
		presence:   make(map[string]map[uuid.UUID]json.RawMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.Send)
		client.Conn.Close()
	}
	h.clients = make(map[uuid.UUID]*Client)
	h.channels = make(map[string]map[uuid.UUID]*Client)
	h.presence = make(map[string]map[uuid.UUID]json.RawMessage)
}

func (h *Hub) Register(client *Client)   { h.register <- client }
func (h *Hub) Unregister(client *Client) { h.unregister <- client }

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	client.sendControl(eventConnectionEstablished, map[string]string{
		"socket_id": client.ID.String(),
	})
	h.log.WithFields(logrus.Fields{"socket": client.ID, "user": client.UserID}).
		Debug("socket connected")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, known := h.clients[client.ID]
	var left []string
	if known {
		for name := range client.Channels {
			h.leaveChannelLocked(client, name)
			left = append(left, name)
		}
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.mu.Unlock()

	if known {
		h.log.WithFields(logrus.Fields{"socket": client.ID, "channels": len(left)}).
			Debug("socket disconnected")
	}
}

// Subscribe admits a socket to a channel after verifying the signed
// token it obtained from the authorization endpoint.
func (h *Hub) Subscribe(client *Client, channelName, auth, channelData string) {
	channel := ParseChannel(channelName)
	if channel.Kind == ChannelUnrecognized {
		client.sendSubscriptionError(channelName, "unrecognized channel name")
		return
	}
	if channel.Kind == ChannelPresenceFamily && channelData == "" {
		client.sendSubscriptionError(channelName, "presence channel requires channel_data")
		return
	}
	if !h.authorizer.VerifyToken(auth, client.ID.String(), channelName, channelData) {
		client.sendSubscriptionError(channelName, "invalid signature")
		return
	}

	h.mu.Lock()
	if _, ok := h.channels[channelName]; !ok {
		h.channels[channelName] = make(map[uuid.UUID]*Client)
	}
	h.channels[channelName][client.ID] = client
	client.Channels[channelName] = true

	var members []json.RawMessage
	if channel.Kind == ChannelPresenceFamily {
		if _, ok := h.presence[channelName]; !ok {
			h.presence[channelName] = make(map[uuid.UUID]json.RawMessage)
		}
		profile := json.RawMessage(channelData)
		h.presence[channelName][client.ID] = profile
		for _, p := range h.presence[channelName] {
			members = append(members, p)
		}
		h.broadcastLocked(channelName, eventMemberAdded, profile, client.ID)
	}
	h.mu.Unlock()

	if channel.Kind == ChannelPresenceFamily {
		client.sendChannelControl(channelName, eventSubscriptionSucceeded,
			map[string]interface{}{"members": members})
	} else {
		client.sendChannelControl(channelName, eventSubscriptionSucceeded, nil)
	}
}

func (h *Hub) Unsubscribe(client *Client, channelName string) {
	h.mu.Lock()
	h.leaveChannelLocked(client, channelName)
	h.mu.Unlock()
}

func (h *Hub) leaveChannelLocked(client *Client, channelName string) {
	subs, ok := h.channels[channelName]
	if !ok {
		return
	}
	if _, ok := subs[client.ID]; !ok {
		return
	}
	delete(subs, client.ID)
	delete(client.Channels, channelName)
	if len(subs) == 0 {
		delete(h.channels, channelName)
	}

	if profiles, ok := h.presence[channelName]; ok {
		if profile, ok := profiles[client.ID]; ok {
			delete(profiles, client.ID)
			if len(profiles) == 0 {
				delete(h.presence, channelName)
			}
			h.broadcastLocked(channelName, eventMemberRemoved, profile, client.ID)
		}
	}
}

// Deliver fans a transport envelope out to the channel's subscribers.
// Payload is relayed byte-for-byte.
func (h *Hub) Deliver(channelName string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.channels[channelName] {
		select {
		case client.Send <- payload:
		default:
			h.log.WithField("socket", client.ID).Warn("socket send queue full, dropping event")
		}
	}
}

func (h *Hub) broadcastLocked(channelName, event string, data json.RawMessage, exclude uuid.UUID) {
	body, err := json.Marshal(Envelope{Channel: channelName, Event: event, Data: data})
	if err != nil {
		return
	}
	for id, client := range h.channels[channelName] {
		if id == exclude {
			continue
		}
		select {
		case client.Send <- body:
		default:
		}
	}
}

// ListenTransport consumes the redis side of the transport and relays
// every envelope to local subscribers. Blocks until the hub stops.
func (h *Hub) ListenTransport(rdb *redis.Client) {
	sub := rdb.PSubscribe(h.ctx, privateRoomPrefix+"*", presenceFamilyPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				// Redis dropped the subscription; back off briefly and resubscribe.
				select {
				case <-h.ctx.Done():
					return
				case <-time.After(time.Second):
				}
				sub.Close()
				sub = rdb.PSubscribe(h.ctx, privateRoomPrefix+"*", presenceFamilyPrefix+"*")
				ch = sub.Channel()
				continue
			}
			h.Deliver(msg.Channel, []byte(msg.Payload))
		}
	}
}

// ChannelSubscribers reports how many sockets hold a channel open.
func (h *Hub) ChannelSubscribers(channelName string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channelName])
}
