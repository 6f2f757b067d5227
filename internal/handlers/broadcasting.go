package handlers

import (
	"errors"
	"net/http"

	"github.com/famlink/famlink/internal/handlers/dto"
	"github.com/famlink/famlink/internal/middleware"
	"github.com/famlink/famlink/internal/realtime"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BroadcastingHandler serves the channel subscription endpoint the
// transport client calls before joining a private or presence channel.
type BroadcastingHandler struct {
	authorizer *realtime.Authorizer
}

func NewBroadcastingHandler(authorizer *realtime.Authorizer) *BroadcastingHandler {
	return &BroadcastingHandler{authorizer: authorizer}
}

// Authenticate responds with the signed token, plus the serialized
// presence payload on presence channels. Denials map to 400/401/403.
func (h *BroadcastingHandler) Authenticate(c *gin.Context) {
	var req dto.BroadcastAuthRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	principal, _ := c.Get(middleware.UserIDKey)
	userID, _ := principal.(uuid.UUID)

	result, err := h.authorizer.Authorize(userID, req.ChannelName, req.SocketID)
	if err != nil {
		var denied *realtime.DeniedError
		if errors.As(err, &denied) {
			c.JSON(denyStatus(denied.Code), gin.H{"error": denied.Reason})
			return
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	resp := gin.H{"auth": result.Auth}
	if result.ChannelData != "" {
		resp["channel_data"] = result.ChannelData
	}
	c.JSON(http.StatusOK, resp)
}

func denyStatus(code realtime.DenyCode) int {
	switch code {
	case realtime.DenyMalformed:
		return http.StatusBadRequest
	case realtime.DenyUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusForbidden
	}
}
