package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/meditime/internal/alert"
	"github.com/gmsas95/meditime/internal/reminder"
)

type eventType string

const (
	eventState   eventType = "state"
	eventNotify  eventType = "notify"
	eventSpeak   eventType = "speak"
	eventTone    eventType = "tone"
	eventSilence eventType = "silence"
	eventError   eventType = "error"
)

// event is one message pushed to browsers over /ws
type event struct {
	Type    eventType          `json:"type"`
	Title   string             `json:"title,omitempty"`
	Body    string             `json:"body,omitempty"`
	Message string             `json:"message,omitempty"`
	State   *reminder.Snapshot `json:"state,omitempty"`
}

const (
	// clientQueue is how many events a browser may lag behind before it
	// is dropped
	clientQueue = 32
	writeWait   = 10 * time.Second
)

// wsConn is the part of websocket.Conn the hub writes to
type wsConn interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// wsClient owns one connection. Only its write loop touches conn for
// writing, so a stalled browser never blocks the publisher.
type wsClient struct {
	conn wsConn
	out  chan event
	done chan struct{}
	once sync.Once
}

// send queues ev and reports false when the client is closed or full
func (c *wsClient) send(ev event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- ev:
		return true
	default:
		return false
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Hub fans reminder events out to connected browsers. It is an
// alert.Sink: a browser tab speaks, rings and shows the notification
// itself.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	logger  *zap.Logger
}

var _ alert.Sink = (*Hub)(nil)

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		logger:  logger,
	}
}

func (h *Hub) add(conn wsConn) *wsClient {
	c := &wsClient{
		conn: conn,
		out:  make(chan event, clientQueue),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	go h.writeLoop(c)

	h.logger.Debug("WebSocket client connected", zap.Int("clients", n))
	return c
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		c.close()
	}
}

func (h *Hub) writeLoop(c *wsClient) {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				h.logger.Debug("Dropping WebSocket client", zap.Error(err))
				h.remove(c)
				return
			}
		}
	}
}

// Clients returns the number of connected browsers
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(ev event) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.send(ev) {
			h.logger.Debug("Dropping slow WebSocket client", zap.String("event", string(ev.Type)))
			h.remove(c)
		}
	}
}

// Publish sends a scheduler state change; register it with
// Scheduler.OnChange
func (h *Hub) Publish(snap reminder.Snapshot) {
	h.broadcast(event{Type: eventState, State: &snap})
}

// CloseAll disconnects every client
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

// RequestPermission is granted while at least one browser listens
func (h *Hub) RequestPermission(context.Context) alert.Permission {
	if h.Clients() > 0 {
		return alert.PermissionGranted
	}
	return alert.PermissionDefault
}

func (h *Hub) Notify(_ context.Context, title, body string) error {
	h.broadcast(event{Type: eventNotify, Title: title, Body: body})
	return nil
}

func (h *Hub) Speak(_ context.Context, message string) error {
	h.broadcast(event{Type: eventSpeak, Message: message})
	return nil
}

func (h *Hub) PlayTone(context.Context) error {
	h.broadcast(event{Type: eventTone})
	return nil
}

func (h *Hub) Silence() {
	h.broadcast(event{Type: eventSilence})
}
