package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/famlink/famlink/internal/chat"
	"github.com/famlink/famlink/internal/config"
	"github.com/famlink/famlink/internal/database"
	"github.com/famlink/famlink/internal/handlers"
	"github.com/famlink/famlink/internal/realtime"
	"github.com/famlink/famlink/pkg/auth"
	"github.com/famlink/famlink/pkg/logger"
)

type Server struct {
	Router *gin.Engine
	Config *config.Config
	Log    *logrus.Logger
	DB     *database.Database
	Redis  *redis.Client
	Hub    *realtime.Hub
}

func NewServer() *Server {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("postgres connect failed: %v", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis connect failed: %v", err)
	}

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, 24*time.Hour)

	authorizer := realtime.NewAuthorizer(cfg.BroadcastAppKey, cfg.BroadcastAppSecret, db, log)
	dispatcher := realtime.NewDispatcher(realtime.NewRedisTransport(rdb), log, cfg.BroadcastTimeout)
	hub := realtime.NewHub(authorizer, log)
	go hub.Run()
	go hub.ListenTransport(rdb)

	rooms := chat.NewRoomService(db, dispatcher, log)
	messages := chat.NewMessageService(db, dispatcher, log, cfg.MessageEditWindow)

	router := gin.Default()
	APIEndpoints(router, routeDeps{
		jwt:          jwtMgr,
		redis:        rdb,
		auth:         handlers.NewAuthHandler(db, jwtMgr, rdb),
		broadcasting: handlers.NewBroadcastingHandler(authorizer),
		rooms:        handlers.NewRoomHandler(rooms),
		messages:     handlers.NewMessageHandler(messages),
		ws:           handlers.NewWSHandler(hub, log),
	})

	return &Server{
		Router: router,
		Config: cfg,
		Log:    log,
		DB:     db,
		Redis:  rdb,
		Hub:    hub,
	}
}

func (s *Server) Run() {
	s.Log.Infof("server starting on port %s", s.Config.Port)
	if err := s.Router.Run(":" + s.Config.Port); err != nil {
		s.Log.Fatalf("server run error: %v", err)
	}
}
