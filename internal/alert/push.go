package alert

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gmsas95/meditime/internal/security"
)

// ErrRateLimited is returned when a push channel exceeds its send budget
var ErrRateLimited = errors.New("push rate limit exceeded")

// PushConfig tunes the guard around a remote channel
type PushConfig struct {
	MaxFailures   int
	OpenTimeout   time.Duration
	RatePerMinute int
}

// Push adapts a remote Notifier into a Sink. Sends go through a circuit
// breaker and a token bucket so a dead channel cannot stall reminders.
type Push struct {
	notifier Notifier
	breaker  *gobreaker.CircuitBreaker[struct{}]
	limiter  *rate.Limiter
	logger   *zap.Logger
}

func NewPush(n Notifier, cfg PushConfig, logger *zap.Logger) *Push {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Minute
	}

	p := &Push{notifier: n, logger: logger}

	p.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        n.Name(),
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.MaxFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Push channel state changed",
				zap.String("channel", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	if cfg.RatePerMinute > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), cfg.RatePerMinute)
	}
	return p
}

// State reports the breaker state
func (p *Push) State() gobreaker.State {
	return p.breaker.State()
}

func (p *Push) RequestPermission(context.Context) Permission {
	if p.breaker.State() == gobreaker.StateOpen {
		return PermissionDenied
	}
	return PermissionGranted
}

func (p *Push) Notify(ctx context.Context, title, body string) error {
	if p.limiter != nil && !p.limiter.Allow() {
		return ErrRateLimited
	}
	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.notifier.Send(ctx, title, body)
	})
	return security.RedactError(err)
}

func (p *Push) Speak(context.Context, string) error { return nil }

func (p *Push) PlayTone(context.Context) error { return nil }

func (p *Push) Silence() {}
