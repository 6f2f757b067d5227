package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 * 1024
	sendQueueDepth = 256
)

// clientFrame is the only inbound frame shape: subscription control.
// Domain mutations go over HTTP, never through the socket.
type clientFrame struct {
	Event       string `json:"event"`
	Channel     string `json:"channel,omitempty"`
	Auth        string `json:"auth,omitempty"`
	ChannelData string `json:"channel_data,omitempty"`
}

type Client struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Conn     *websocket.Conn
	Send     chan []byte
	Channels map[string]bool
	Hub      *Hub
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		ID:       uuid.New(),
		UserID:   userID,
		Conn:     conn,
		Send:     make(chan []byte, sendQueueDepth),
		Channels: make(map[string]bool),
		Hub:      hub,
	}
}

// ReadPump consumes subscribe/unsubscribe frames until the socket
// closes, then hands the client back to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxFrameSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame clientFrame
		if err := c.Conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.WithField("socket", c.ID).WithError(err).Debug("socket read error")
			}
			return
		}

		switch frame.Event {
		case "subscribe":
			c.Hub.Subscribe(c, frame.Channel, frame.Auth, frame.ChannelData)
		case "unsubscribe":
			c.Hub.Unsubscribe(c, frame.Channel)
		case "ping":
			c.sendControl("pong", nil)
		}
	}
}

// WritePump drains the send queue and keeps the connection alive with
// pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendControl(event string, data interface{}) {
	c.sendChannelControl("", event, data)
}

func (c *Client) sendChannelControl(channel, event string, data interface{}) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return
		}
		raw = b
	}
	body, err := json.Marshal(Envelope{Channel: channel, Event: event, Data: raw})
	if err != nil {
		return
	}
	select {
	case c.Send <- body:
	default:
	}
}

func (c *Client) sendSubscriptionError(channel, reason string) {
	c.sendChannelControl(channel, eventSubscriptionError, map[string]string{"reason": reason})
}
