package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/meditime/internal/alert"
	apperrors "github.com/gmsas95/meditime/internal/errors"
	"github.com/gmsas95/meditime/internal/reminder"
)

type fakeConn struct {
	mu       sync.Mutex
	events   []event
	err      error
	closed   bool
	deadline time.Time
	block    chan struct{}
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, v.(event))
	return nil
}

func (f *fakeConn) SetWriteDeadline(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadline = t
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) received() []event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event(nil), f.events...)
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestHub_Sink(t *testing.T) {
	h := NewHub(zap.NewNop())
	ctx := context.Background()
	assert.Equal(t, alert.PermissionDefault, h.RequestPermission(ctx))

	conn := &fakeConn{}
	h.add(conn)
	assert.Equal(t, alert.PermissionGranted, h.RequestPermission(ctx))

	require.NoError(t, h.Notify(ctx, "MediTime", "Grandma: Take Aspirin now"))
	require.NoError(t, h.Speak(ctx, "Grandma, it is time to take your Aspirin."))
	require.NoError(t, h.PlayTone(ctx))
	h.Silence()
	h.Publish(reminder.Snapshot{State: reminder.StateFiring})

	require.Eventually(t, func() bool { return len(conn.received()) == 5 }, time.Second, 5*time.Millisecond)
	events := conn.received()
	assert.Equal(t, event{Type: eventNotify, Title: "MediTime", Body: "Grandma: Take Aspirin now"}, events[0])
	assert.Equal(t, eventSpeak, events[1].Type)
	assert.Equal(t, eventTone, events[2].Type)
	assert.Equal(t, eventSilence, events[3].Type)
	assert.Equal(t, reminder.StateFiring, events[4].State.State)

	conn.mu.Lock()
	assert.False(t, conn.deadline.IsZero(), "writes carry a deadline")
	conn.mu.Unlock()
}

func TestHub_DropsBrokenClients(t *testing.T) {
	h := NewHub(zap.NewNop())
	good := &fakeConn{}
	broken := &fakeConn{err: errors.New("broken pipe")}
	h.add(good)
	h.add(broken)

	h.Publish(reminder.Snapshot{})

	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, broken.isClosed())
	require.Eventually(t, func() bool { return len(good.received()) == 1 }, time.Second, 5*time.Millisecond)

	h.CloseAll()
	assert.Zero(t, h.Clients())
	assert.True(t, good.isClosed())
}

func TestHub_StalledClientDoesNotBlockPublish(t *testing.T) {
	h := NewHub(zap.NewNop())
	stalled := &fakeConn{block: make(chan struct{})}
	defer close(stalled.block)
	h.add(stalled)

	done := make(chan struct{})
	go func() {
		for i := 0; i < clientQueue+2; i++ {
			h.Publish(reminder.Snapshot{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a stalled client")
	}

	assert.Zero(t, h.Clients())
	assert.True(t, stalled.isClosed())
}

func TestHub_NoClientsIsNotAnError(t *testing.T) {
	h := NewHub(nil)
	assert.NoError(t, h.Notify(context.Background(), "t", "b"))
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", apperrors.Validation(map[string]string{"patientName": "Patient name is required"}), 422, "VALID_001"},
		{"duplicate", apperrors.ErrDuplicateUser, 409, "USER_001"},
		{"no active user", apperrors.ErrNoActiveUser, 409, "USER_003"},
		{"user not found", apperrors.ErrUserNotFound, 404, "USER_002"},
		{"schedule not found", apperrors.ErrScheduleNotFound, 404, "SCHED_001"},
		{"storage", apperrors.Storage(errors.New("disk"), "save"), 503, "STORE_001"},
		{"bad request", badRequest("nope"), 400, "GEN_002"},
		{"fiber error", fiber.ErrMethodNotAllowed, 405, ""},
		{"plain error", errors.New("boom"), 500, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: errorHandler})
			app.Get("/", func(c *fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.code != "" {
				assert.Equal(t, tt.status, statusFor(tt.code))
			}
		})
	}
}
