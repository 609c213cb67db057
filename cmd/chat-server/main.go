package main

import (
	"context"
	"log"

	"support-chat-backend/internal/api"
	"support-chat-backend/internal/api/router"
	"support-chat-backend/internal/database"
	"support-chat-backend/internal/env"
	"support-chat-backend/internal/notify"
	"support-chat-backend/internal/presence"
	"support-chat-backend/internal/queue"
	conversationservice "support-chat-backend/internal/service/conversation"
	"support-chat-backend/internal/websocket"

	"github.com/go-redis/redis/v8"
)

func main() {
	env.Require(env.RequiredKeys...)

	queueManager := queue.NewRequestQueueManager(10, 10)
	db, err := database.NewDatabase()
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}

	hub := websocket.NewHub()
	tracker := presence.NewTracker()
	conversations := conversationservice.New(db)
	handler := websocket.NewHandler(hub, tracker, conversations)

	notifyRedis := redis.NewClient(&redis.Options{
		Addr:     env.Get(env.NotifyRedisURL),
		Password: env.Get(env.NotifyRedisPass),
		DB:       0,
	})
	bridge := notify.NewBridge(
		notifyRedis,
		env.GetOrDefault(env.NotifyChannel, "support-chat:notifications"),
		handler.Notify,
	)
	go bridge.Run(context.Background())

	server := api.NewAPIServer(
		":8080",
		queueManager,
		db,
		handler,
		router.UtilsRoutes("/api/v1"),
		router.AuthRoutes("/api/v1"),
		router.AdminConversationRoutes("/api/v1/admin"),
		router.WebsocketRoutes("/api/v1"),
	)

	server.Run()
}
