package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/meditime/internal/config"
	"github.com/gmsas95/meditime/internal/metrics"
	"github.com/gmsas95/meditime/internal/reminder"
	"github.com/gmsas95/meditime/internal/schedule"
)

// Service is what the HTTP handlers drive, implemented by app.Service
type Service interface {
	Users(ctx context.Context) ([]schedule.User, error)
	ActiveUser() string
	CreateUser(ctx context.Context, name string) (schedule.User, error)
	SwitchUser(ctx context.Context, name string) error
	DeleteUser(ctx context.Context, name string) error

	Schedules() []schedule.Schedule
	Grouped() []schedule.PatientGroup
	DeleteSchedule(ctx context.Context, id string) error
	DeleteAllSchedules(ctx context.Context) error
	DeleteSchedulesByPatient(ctx context.Context, patient string) (int, error)

	Draft(ctx context.Context) (schedule.Draft, error)
	SaveDraft(ctx context.Context, d schedule.Draft) error
	ResetDraft(ctx context.Context) error
	Submit(ctx context.Context, d schedule.Draft) (schedule.Schedule, error)

	NextDose() (reminder.Dose, bool)
	Reminder() reminder.Snapshot
	Dismiss() bool
}

type Server struct {
	app     *fiber.App
	config  *config.Config
	service Service
	hub     *Hub
	metrics *metrics.Metrics
	logger  *zap.Logger
	version string
}

// New builds the API around svc. hub may be nil when no browser clients
// are wanted; m may be nil to skip request metrics.
func New(cfg *config.Config, svc Service, hub *Hub, m *metrics.Metrics, logger *zap.Logger, version string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hub == nil {
		hub = NewHub(logger)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})

	s := &Server{
		app:     app,
		config:  cfg,
		service: svc,
		hub:     hub,
		metrics: m,
		logger:  logger,
		version: version,
	}

	s.setupRoutes()
	return s
}

// App exposes the fiber app, mostly for app.Test in tests
func (s *Server) App() *fiber.App {
	return s.app
}

// userRequest is the body of POST /api/users
type userRequest struct {
	Name string `json:"name"`
}

// healthResponse is the body of GET /api/health
type healthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	ActiveUser string `json:"activeUser"`
	Reminder   string `json:"reminder"`
	Timestamp  int64  `json:"timestamp"`
}

// nextResponse is the body of GET /api/next
type nextResponse struct {
	Found bool           `json:"found"`
	Dose  *reminder.Dose `json:"dose,omitempty"`
}

type convertResponse struct {
	Input       string `json:"input"`
	Is24Hour    bool   `json:"is24Hour"`
	Valid12Hour bool   `json:"valid12Hour"`
	Time24      string `json:"time24"`
	Time12      string `json:"time12"`
}
