package main

import (
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/famlink/famlink/internal/handlers"
	"github.com/famlink/famlink/internal/middleware"
	"github.com/famlink/famlink/pkg/auth"
)

type routeDeps struct {
	jwt          *auth.JWTManager
	redis        *redis.Client
	auth         *handlers.AuthHandler
	broadcasting *handlers.BroadcastingHandler
	rooms        *handlers.RoomHandler
	messages     *handlers.MessageHandler
	ws           *handlers.WSHandler
}

func APIEndpoints(r *gin.Engine, deps routeDeps) {
	authMw := middleware.AuthMiddleware(deps.jwt, deps.redis)

	// Auth endpoints
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", deps.auth.Register)
		authGroup.POST("/login", deps.auth.Login)
		authGroup.POST("/logout", authMw, deps.auth.Logout)
	}

	// Transport channel authorization
	r.POST("/broadcasting/auth", authMw, deps.broadcasting.Authenticate)

	// Realtime relay socket
	r.GET("/ws", middleware.WSAuthMiddleware(deps.jwt, deps.redis), deps.ws.Connect)

	api := r.Group("/api/v1", authMw)
	{
		api.POST("/rooms", deps.rooms.CreateRoom)
		api.GET("/rooms", deps.rooms.GetMyRooms)
		api.GET("/rooms/:id", deps.rooms.GetRoom)
		api.PATCH("/rooms/:id", deps.rooms.UpdateRoom)
		api.POST("/rooms/:id/archive", deps.rooms.ArchiveRoom)

		api.POST("/rooms/:id/members", deps.rooms.AddMember)
		api.DELETE("/rooms/:id/members/:userID", deps.rooms.RemoveMember)
		api.POST("/rooms/:id/members/:userID/admin", deps.rooms.ToggleAdmin)

		api.POST("/rooms/:id/mute", deps.rooms.Mute)
		api.DELETE("/rooms/:id/mute", deps.rooms.Unmute)
		api.POST("/rooms/:id/read", deps.rooms.MarkRead)
		api.POST("/rooms/:id/typing", deps.rooms.SetTyping)

		api.GET("/rooms/:id/messages", deps.messages.GetRoomMessages)
		api.POST("/rooms/:id/messages", deps.messages.SendMessage)
		api.PUT("/messages/:id", deps.messages.EditMessage)
		api.DELETE("/messages/:id", deps.messages.DeleteMessage)
		api.POST("/messages/:id/reactions", deps.messages.AddReaction)
		api.DELETE("/messages/:id/reactions/:emoji", deps.messages.RemoveReaction)
	}
}
