package api

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/factrag/backend/internal/api/handlers"
	"github.com/factrag/backend/internal/metrics"
	"github.com/factrag/backend/internal/middleware/ratelimit"
	"github.com/factrag/backend/internal/middleware/security"
	"github.com/factrag/backend/internal/middleware/validation"
	"github.com/factrag/backend/internal/query"
	"github.com/factrag/backend/pkg/config"
	"github.com/factrag/backend/pkg/logger"
)

type Dependencies struct {
	Documents handlers.DocumentService
	Chat      handlers.ChatService
	Sessions  *query.SessionStore
	// Ready reports whether the store is reachable.
	Ready func(ctx context.Context) error
}

type Server struct {
	App     *fiber.App
	limiter *ratelimit.RateLimiter
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "factrag",
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins(cfg.Server.AllowedOrigins),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Logger:               logger.GetLogger(),
	})

	app.Get("/metrics", metrics.MetricsHandler())

	documentHandler := handlers.NewDocumentHandler(deps.Documents)
	chatHandler := handlers.NewChatHandler(deps.Chat, deps.Sessions)
	wsHandler := handlers.NewWebSocketHandler(deps.Chat, deps.Sessions)

	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		if deps.Ready != nil {
			if err := deps.Ready(c.UserContext()); err != nil {
				logger.Warn("Readiness check failed", zap.Error(err))
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"status": "unavailable",
				})
			}
		}
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	guarded := api.Group("",
		limiter.Middleware(),
		validation.Middleware(validation.Config{
			MaxMessageLength: cfg.Server.MaxMessageLength,
			Logger:           logger.GetLogger(),
		}),
	)

	guarded.Post("/documents", documentHandler.UploadDocument)
	guarded.Get("/documents", documentHandler.ListDocuments)
	guarded.Delete("/documents/:id", documentHandler.DeleteDocument)

	guarded.Post("/chat", chatHandler.HandleChat)
	guarded.Get("/chat/:session_id/messages", chatHandler.GetMessages)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	return &Server{App: app, limiter: limiter}
}

func (s *Server) Listen(addr string) error {
	return s.App.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.App.ShutdownWithContext(ctx)
}

func allowOrigins(origins []string) string {
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ", ")
}
