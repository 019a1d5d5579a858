package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"github.com/arosh/isucon6-final/internal/auth"
	"github.com/arosh/isucon6-final/internal/cache"
	"github.com/arosh/isucon6-final/internal/config"
	"github.com/arosh/isucon6-final/internal/handler"
	"github.com/arosh/isucon6-final/internal/presence"
	"github.com/arosh/isucon6-final/internal/render"
	"github.com/arosh/isucon6-final/internal/service"
	"github.com/arosh/isucon6-final/internal/store"
	"github.com/arosh/isucon6-final/internal/stream"
)

// Server wires the drawing board API together.
type Server struct {
	app *fiber.App
	cfg *config.Config

	tokenHandler  *handler.TokenHandler
	roomHandler   *handler.RoomHandler
	strokeHandler *handler.StrokeHandler
	streamHandler *handler.StreamHandler
	wsHandler     *handler.WSHandler
	healthHandler *handler.HealthHandler
}

// New builds the server. All collaborators are passed in explicitly; no
// package-level singletons.
func New(cfg *config.Config, db *gorm.DB, roomCache *cache.RoomCache, tracker *presence.Tracker) *Server {
	app := fiber.New(fiber.Config{
		AppName:       "isuketch",
		ServerHeader:  "Fiber",
		StrictRouting: true,
		CaseSensitive: true,
		ReadTimeout:   cfg.Server.ReadTimeout,
		// Streaming responses are written past this via the body stream
		// writer; it only bounds buffered responses.
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	strokeStore := store.New(db)
	tokens := auth.NewTokenManager(strokeStore, cfg.Auth.JWTSecret, cfg.Auth.TokenValidity)
	hub := stream.NewHub(cfg.Stream.SubscriberBuffer)
	invalidator := render.NewInvalidator(cfg.Render.ImageDir)

	roomService := service.NewRoomService(strokeStore, roomCache, tracker)
	strokeService := service.NewStrokeService(strokeStore, roomCache, hub, invalidator)

	return &Server{
		app:           app,
		cfg:           cfg,
		tokenHandler:  handler.NewTokenHandler(tokens),
		roomHandler:   handler.NewRoomHandler(roomService, tokens),
		strokeHandler: handler.NewStrokeHandler(strokeService, tokens),
		streamHandler: handler.NewStreamHandler(roomService, hub, tokens, cfg.Stream.RetryInterval),
		wsHandler:     handler.NewWSHandler(roomService, hub, tokens, cfg.Stream.RetryInterval),
		healthHandler: handler.NewHealthHandler(db, roomCache),
	}
}

// SetupMiddleware installs the global middleware chain.
func (s *Server) SetupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	s.app.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.CORS.AllowOrigins,
		AllowHeaders: s.cfg.CORS.AllowHeaders,
		AllowMethods: "GET, POST, OPTIONS",
	}))
}

// SetupRoutes installs the API routes.
func (s *Server) SetupRoutes() {
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	api := s.app.Group("/api")
	api.Post("/csrf_token", s.tokenHandler.Issue)
	api.Get("/rooms", s.roomHandler.List)
	api.Post("/rooms", s.roomHandler.Create)
	api.Get("/rooms/:id", s.roomHandler.Get)
	api.Get("/stream/rooms/:id", s.streamHandler.Stream)
	api.Post("/strokes/rooms/:id", s.strokeHandler.Submit)

	api.Get("/ws/rooms/:id", handler.Upgrade, websocket.New(s.wsHandler.Handle, websocket.Config{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}))
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens until SIGINT/SIGTERM, then drains connections.
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("[Server] Shutting down...")
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("[Server] Shutdown error: %v", err)
		}
	}()

	log.Printf("[Server] isuketch API starting on %s", s.cfg.Server.Port)
	return s.app.Listen(s.cfg.Server.Port)
}
