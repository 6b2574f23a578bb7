package api

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
)

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(s.requestMiddleware())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Server.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	s.app.Get("/api/health", s.handleHealth)
	if s.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	api := s.app.Group("/api")

	api.Get("/users", s.handleListUsers)
	api.Post("/users", s.handleCreateUser)
	api.Post("/users/:name/activate", s.handleActivateUser)
	api.Delete("/users/:name", s.handleDeleteUser)

	api.Get("/schedules", s.handleListSchedules)
	api.Delete("/schedules", s.handleDeleteAllSchedules)
	api.Delete("/schedules/:id", s.handleDeleteSchedule)
	api.Delete("/patients/:name/schedules", s.handleDeletePatientSchedules)

	api.Get("/draft", s.handleGetDraft)
	api.Put("/draft", s.handleSaveDraft)
	api.Delete("/draft", s.handleResetDraft)
	api.Post("/draft/submit", s.handleSubmitDraft)

	api.Get("/next", s.handleNextDose)
	api.Get("/reminder", s.handleReminder)
	api.Post("/reminder/dismiss", s.handleDismiss)

	api.Get("/time/suggest", s.handleSuggestTimes)
	api.Get("/time/convert", s.handleConvertTime)

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.handleWebSocket))
}

// Start starts the server
func (s *Server) Start() error {
	return s.app.Listen(s.config.Addr())
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	s.hub.CloseAll()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
