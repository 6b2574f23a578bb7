package api

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/meditime/internal/dosetime"
	"github.com/gmsas95/meditime/internal/schedule"
)

// maxDosesPerDay bounds /api/time/suggest
const maxDosesPerDay = 24

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(healthResponse{
		Status:     "healthy",
		Version:    s.version,
		ActiveUser: s.service.ActiveUser(),
		Reminder:   s.service.Reminder().State.String(),
		Timestamp:  time.Now().Unix(),
	})
}

// param returns a path parameter with URL escapes undone, so names with
// spaces work
func param(c *fiber.Ctx, name string) string {
	v := c.Params(name)
	if un, err := url.PathUnescape(v); err == nil {
		return un
	}
	return v
}

func (s *Server) handleListUsers(c *fiber.Ctx) error {
	users, err := s.service.Users(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"users":  users,
		"active": s.service.ActiveUser(),
	})
}

func (s *Server) handleCreateUser(c *fiber.Ctx) error {
	var req userRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request")
	}

	u, err := s.service.CreateUser(c.UserContext(), strings.TrimSpace(req.Name))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(u)
}

func (s *Server) handleActivateUser(c *fiber.Ctx) error {
	if err := s.service.SwitchUser(c.UserContext(), param(c, "name")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"active": s.service.ActiveUser()})
}

func (s *Server) handleDeleteUser(c *fiber.Ctx) error {
	if err := s.service.DeleteUser(c.UserContext(), param(c, "name")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleListSchedules(c *fiber.Ctx) error {
	groups := s.service.Grouped()
	if groups == nil {
		groups = []schedule.PatientGroup{}
	}
	return c.JSON(fiber.Map{
		"user":     s.service.ActiveUser(),
		"patients": groups,
	})
}

func (s *Server) handleDeleteAllSchedules(c *fiber.Ctx) error {
	if err := s.service.DeleteAllSchedules(c.UserContext()); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleDeleteSchedule(c *fiber.Ctx) error {
	if err := s.service.DeleteSchedule(c.UserContext(), param(c, "id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleDeletePatientSchedules(c *fiber.Ctx) error {
	n, err := s.service.DeleteSchedulesByPatient(c.UserContext(), param(c, "name"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"deleted": n})
}

func (s *Server) handleGetDraft(c *fiber.Ctx) error {
	d, err := s.service.Draft(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(d)
}

func (s *Server) handleSaveDraft(c *fiber.Ctx) error {
	var d schedule.Draft
	if err := json.Unmarshal(c.Body(), &d); err != nil {
		return badRequest("invalid draft")
	}
	if err := s.service.SaveDraft(c.UserContext(), d); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleResetDraft(c *fiber.Ctx) error {
	if err := s.service.ResetDraft(c.UserContext()); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleSubmitDraft submits the posted draft, or the saved one when the
// body is empty
func (s *Server) handleSubmitDraft(c *fiber.Ctx) error {
	var d schedule.Draft
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &d); err != nil {
			return badRequest("invalid draft")
		}
	} else {
		saved, err := s.service.Draft(c.UserContext())
		if err != nil {
			return err
		}
		d = saved
	}

	saved, err := s.service.Submit(c.UserContext(), d)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (s *Server) handleNextDose(c *fiber.Ctx) error {
	d, ok := s.service.NextDose()
	if !ok {
		return c.JSON(nextResponse{})
	}
	return c.JSON(nextResponse{Found: true, Dose: &d})
}

func (s *Server) handleReminder(c *fiber.Ctx) error {
	return c.JSON(s.service.Reminder())
}

func (s *Server) handleDismiss(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"dismissed": s.service.Dismiss()})
}

func (s *Server) handleSuggestTimes(c *fiber.Ctx) error {
	count := c.QueryInt("count", 1)
	if count < 1 || count > maxDosesPerDay {
		return badRequest(fmt.Sprintf("count must be between 1 and %d", maxDosesPerDay))
	}
	start := c.Query("start", s.config.Reminders.DoseWindowStart)
	end := c.Query("end", s.config.Reminders.DoseWindowEnd)

	return c.JSON(fiber.Map{"times": dosetime.EvenSplit(count, start, end)})
}

func (s *Server) handleConvertTime(c *fiber.Ctx) error {
	value := strings.TrimSpace(c.Query("value"))
	if value == "" {
		return badRequest("value is required")
	}

	t24 := dosetime.ParseInput(value)
	return c.JSON(convertResponse{
		Input:       value,
		Is24Hour:    dosetime.Is24Hour(value),
		Valid12Hour: dosetime.IsValid12Hour(value),
		Time24:      t24,
		Time12:      dosetime.To12Hour(t24),
	})
}

// wsCommand is a message a browser sends over /ws
type wsCommand struct {
	Type string `json:"type"`
}

func (s *Server) handleWebSocket(c *websocket.Conn) {
	client := s.hub.add(c)
	defer s.hub.remove(client)

	if s.metrics != nil {
		s.metrics.IncrementActiveConnections()
		defer s.metrics.DecrementActiveConnections()
	}

	client.send(event{Type: eventState, State: ptr(s.service.Reminder())})

	for {
		mt, msg, err := c.ReadMessage()
		if err != nil {
			s.logger.Debug("WebSocket closed", zap.Error(err))
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		var cmd wsCommand
		if err := json.Unmarshal(msg, &cmd); err != nil {
			client.send(event{Type: eventError, Message: "invalid message format"})
			continue
		}

		switch cmd.Type {
		case "dismiss":
			s.service.Dismiss()
		case "state":
			client.send(event{Type: eventState, State: ptr(s.service.Reminder())})
		default:
			client.send(event{Type: eventError, Message: "unknown message type"})
		}
	}
}

func ptr[T any](v T) *T {
	return &v
}
