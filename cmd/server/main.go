package main

import (
	"log"

	"github.com/arosh/isucon6-final/internal/cache"
	"github.com/arosh/isucon6-final/internal/config"
	"github.com/arosh/isucon6-final/internal/database"
	"github.com/arosh/isucon6-final/internal/presence"
	"github.com/arosh/isucon6-final/internal/server"
)

func main() {
	cfg := config.Load()

	db, err := database.Connect()
	if err != nil {
		log.Fatalf("[Main] Database connection failed: %v", err)
	}
	if err := database.Ping(db); err != nil {
		log.Fatalf("[Main] Database ping failed: %v", err)
	}
	log.Println("[Main] Database connected")

	roomCache, err := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("[Main] Redis connection failed: %v", err)
	}
	defer roomCache.Close()

	tracker := presence.NewTracker(roomCache.Client(), cfg.Presence.Window)

	srv := server.New(cfg, db, roomCache, tracker)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	if err := srv.Start(); err != nil {
		log.Fatalf("[Main] Server failed to start: %v", err)
	}
}
