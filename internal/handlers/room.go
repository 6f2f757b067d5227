package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/famlink/famlink/internal/chat"
	"github.com/famlink/famlink/internal/handlers/dto"
	"github.com/famlink/famlink/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RoomHandler struct {
	rooms *chat.RoomService
}

func NewRoomHandler(rooms *chat.RoomService) *RoomHandler {
	return &RoomHandler{rooms: rooms}
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	var req dto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	familyID, err := uuid.Parse(req.FamilyID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid family id"})
		return
	}
	memberIDs := make([]uuid.UUID, 0, len(req.MemberIDs))
	for _, raw := range req.MemberIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid member id %q", raw)})
			return
		}
		memberIDs = append(memberIDs, id)
	}

	isPrivate := true
	if req.IsPrivate != nil {
		isPrivate = *req.IsPrivate
	}

	room, err := h.rooms.CreateRoom(c.Request.Context(), userID, chat.CreateRoomInput{
		FamilyID:    familyID,
		Type:        req.Type,
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   isPrivate,
		MemberIDs:   memberIDs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *RoomHandler) GetMyRooms(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)

	rooms, err := h.rooms.ListRooms(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	roomID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	room, err := h.rooms.GetRoom(c.Request.Context(), userID, roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) UpdateRoom(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	roomID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.rooms.UpdateRoom(c.Request.Context(), userID, roomID, chat.RoomUpdate{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
		Settings:    req.Settings,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) ArchiveRoom(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	roomID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.rooms.ArchiveRoom(c.Request.Context(), userID, roomID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "room archived"})
}

func (h *RoomHandler) AddMember(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	roomID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	targetID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	member, err := h.rooms.AddMember(c.Request.Context(), userID, roomID, targetID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

func (h *RoomHandler) RemoveMember(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	roomID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	targetID, ok := parseIDParam(c, "userID")
	if !ok {
		return
	}

	if err := h.rooms.RemoveMember(c.Request.Context(), userID, roomID, targetID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "member removed"})
}

func (h *RoomHandler) ToggleAdmin(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	roomID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	targetID, ok := parseIDParam(c, "userID")
	if !ok {
		return
	}

	if err := h.rooms.ToggleAdmin(c.Request.Context(), userID, roomID, targetID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "admin flag toggled"})
}

func (h *RoomHandler) Mute(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	roomID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.MuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.rooms.Mute(c.Request.Context(), userID, roomID, req.Until); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "muted"})
}

func (h *RoomHandler) Unmute(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	roomID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.rooms.Unmute(c.Request.Context(), userID, roomID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unmuted"})
}

func (h *RoomHandler) MarkRead(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	roomID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	// Body is optional; an empty request marks read as of now.
	var req dto.MarkReadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	var at time.Time
	if req.At != nil {
		at = *req.At
	}

	if err := h.rooms.MarkRead(c.Request.Context(), userID, roomID, at); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "read marker advanced"})
}

func (h *RoomHandler) SetTyping(c *gin.Context) {
	userID := c.MustGet(middleware.UserIDKey).(uuid.UUID)
	roomID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.TypingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.rooms.SetTyping(c.Request.Context(), userID, roomID, req.IsTyping); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return uuid.Nil, false
	}
	return id, true
}
