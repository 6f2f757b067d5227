package handlers

import (
	"net/http"
	"strconv"

	"github.com/famlink/famlink/internal/chat"
	"github.com/famlink/famlink/internal/handlers/dto"
	"github.com/famlink/famlink/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type MessageHandler struct {
	messages *chat.MessageService
}

func NewMessageHandler(messages *chat.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// GetRoomMessages returns a history page, oldest first.
func (h *MessageHandler) GetRoomMessages(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	roomID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	var beforeID *uuid.UUID
	if before := c.Query("before"); before != "" {
		if id, err := uuid.Parse(before); err == nil {
			beforeID = &id
		}
	}

	messages, err := h.messages.History(c.Request.Context(), userID, roomID, limit, beforeID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"has_more": len(messages) == limit,
	})
}

func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	roomID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var replyTo *uuid.UUID
	if req.ReplyToID != nil {
		id, err := uuid.Parse(*req.ReplyToID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reply_to_id"})
			return
		}
		replyTo = &id
	}

	message, err := h.messages.Send(c.Request.Context(), userID, chat.SendInput{
		RoomID:      roomID,
		Type:        req.Type,
		Body:        req.Body,
		ReplyToID:   replyTo,
		Attachments: req.Attachments,
		Metadata:    req.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

func (h *MessageHandler) EditMessage(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	messageID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.messages.Edit(c.Request.Context(), userID, messageID, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, message)
}

func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	messageID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.messages.Delete(c.Request.Context(), userID, messageID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "message deleted"})
}

func (h *MessageHandler) AddReaction(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	messageID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reaction, err := h.messages.AddReaction(c.Request.Context(), userID, messageID, req.Emoji)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reaction)
}

func (h *MessageHandler) RemoveReaction(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	messageID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	emoji := c.Param("emoji")

	if err := h.messages.RemoveReaction(c.Request.Context(), userID, messageID, emoji); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "reaction removed"})
}
