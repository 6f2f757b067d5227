package handlers

import (
	"net/http"

	"github.com/famlink/famlink/internal/middleware"
	"github.com/famlink/famlink/internal/realtime"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced upstream; the socket itself is useless without
	// per-channel signed tokens.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSHandler struct {
	hub *realtime.Hub
	log *logrus.Logger
}

func NewWSHandler(hub *realtime.Hub, log *logrus.Logger) *WSHandler {
	return &WSHandler{hub: hub, log: log}
}

// Connect upgrades the request and attaches the socket to the relay
// hub. Channel access is granted per subscribe frame, not here.
func (h *WSHandler) Connect(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := realtime.NewClient(h.hub, conn, userID)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
