// Package alert delivers dose reminders to the user through notification,
// speech and tone channels.
package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Permission is the user's consent state for a notification channel
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// ErrUnavailable is returned by a sink whose backing tool or device is missing
var ErrUnavailable = errors.New("alert channel unavailable")

// Sink receives reminder deliveries. Errors are best-effort: callers log
// them and carry on.
type Sink interface {
	RequestPermission(ctx context.Context) Permission
	Notify(ctx context.Context, title, body string) error
	Speak(ctx context.Context, message string) error
	PlayTone(ctx context.Context) error
	// Silence stops speech that is still playing
	Silence()
}

// Notifier is a remote channel that only carries text notifications
type Notifier interface {
	Name() string
	Send(ctx context.Context, title, body string) error
}

// Nop discards everything
type Nop struct{}

func (Nop) RequestPermission(context.Context) Permission { return PermissionGranted }
func (Nop) Notify(context.Context, string, string) error { return nil }
func (Nop) Speak(context.Context, string) error { return nil }
func (Nop) PlayTone(context.Context) error { return nil }
func (Nop) Silence() {}

// Multi fans every call out to its sinks and joins their errors
type Multi struct {
	mu       sync.RWMutex
	names    []string
	sinks    []Sink
	disabled map[string]bool
}

func NewMulti() *Multi {
	return &Multi{disabled: make(map[string]bool)}
}

// Add registers a sink under a name used in error messages
func (m *Multi) Add(name string, s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = append(m.names, name)
	m.sinks = append(m.sinks, s)
}

// SetEnabled turns a registered sink on or off without removing it
func (m *Multi) SetEnabled(name string, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if on {
		delete(m.disabled, name)
	} else {
		m.disabled[name] = true
	}
}

// Enabled reports whether name is registered and switched on
func (m *Multi) Enabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, n := range m.names {
		if n == name {
			return !m.disabled[name]
		}
	}
	return false
}

// Names lists registered sinks in order
func (m *Multi) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string{}, m.names...)
}

func (m *Multi) each(fn func(name string, s Sink) error) error {
	m.mu.RLock()
	var names []string
	var sinks []Sink
	for i, n := range m.names {
		if m.disabled[n] {
			continue
		}
		names = append(names, n)
		sinks = append(sinks, m.sinks[i])
	}
	m.mu.RUnlock()

	var errs []error
	for i, s := range sinks {
		if err := fn(names[i], s); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", names[i], err))
		}
	}
	return errors.Join(errs...)
}

// RequestPermission is granted when any sink grants, denied when all deny
func (m *Multi) RequestPermission(ctx context.Context) Permission {
	granted, denied, total := 0, 0, 0
	m.each(func(_ string, s Sink) error {
		total++
		switch s.RequestPermission(ctx) {
		case PermissionGranted:
			granted++
		case PermissionDenied:
			denied++
		}
		return nil
	})
	switch {
	case granted > 0:
		return PermissionGranted
	case total > 0 && denied == total:
		return PermissionDenied
	}
	return PermissionDefault
}

func (m *Multi) Notify(ctx context.Context, title, body string) error {
	return m.each(func(_ string, s Sink) error { return s.Notify(ctx, title, body) })
}

func (m *Multi) Speak(ctx context.Context, message string) error {
	return m.each(func(_ string, s Sink) error { return s.Speak(ctx, message) })
}

func (m *Multi) PlayTone(ctx context.Context) error {
	return m.each(func(_ string, s Sink) error { return s.PlayTone(ctx) })
}

func (m *Multi) Silence() {
	m.each(func(_ string, s Sink) error {
		s.Silence()
		return nil
	})
}
