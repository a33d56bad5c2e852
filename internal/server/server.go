// Package server assembles the Fiber application: REST session-lifecycle
// routes, the two WebSocket connection actors, and graceful shutdown,
// grounded on the reference backend's server bootstrap.
package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/kjlabs/polyglot-broadcast/internal/config"
	"github.com/kjlabs/polyglot-broadcast/internal/wsapi"
)

type Server struct {
	app  *fiber.App
	cfg  *config.Config
	log  *zap.Logger
	deps *wsapi.Deps
}

func New(cfg *config.Config, log *zap.Logger, deps *wsapi.Deps) *Server {
	app := fiber.New(fiber.Config{
		AppName:       "Polyglot Broadcast Gateway",
		ServerHeader:  "Fiber",
		StrictRouting: true,
		CaseSensitive: true,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		Prefork:       false, // incompatible with WebSocket upgrades
	})

	return &Server{app: app, cfg: cfg, log: log, deps: deps}
}

func (s *Server) SetupMiddleware() {
	s.app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
}

func (s *Server) SetupRoutes() {
	s.app.Get("/health", s.deps.Health)

	sessions := s.app.Group("/sessions", s.deps.AuthMiddleware)
	sessions.Post("", s.deps.CreateSession)
	sessions.Get("/:sessionId", s.deps.GetSession)
	sessions.Patch("/:sessionId", s.deps.PatchSession)
	sessions.Delete("/:sessionId", s.deps.DeleteSession)

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws/speak", websocket.New(s.deps.HandleSpeaker))
	s.app.Get("/ws/listen", websocket.New(s.deps.HandleListener))
}

// Start runs the server, blocking until shutdown completes.
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		s.log.Info("🛑 shutting down server")
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			s.log.Error("server shutdown error", zap.Error(err))
		}
	}()

	s.log.Info("🚀 polyglot broadcast gateway starting", zap.String("port", s.cfg.Server.Port))
	return s.app.Listen(s.cfg.Server.Port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
