package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/gmsas95/meditime/internal/alert"
	"github.com/gmsas95/meditime/internal/metrics"
	"github.com/gmsas95/meditime/internal/schedule"
)

const (
	DefaultRepeatInterval = 10 * time.Second
	DefaultTitle          = "MediTime - Medication Reminder"

	deliveryTimeout = 30 * time.Second
)

// State of the scheduler
type State int

const (
	StateIdle State = iota
	StateArmed
	StateFiring
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateFiring:
		return "firing"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Alert is a fired, not yet dismissed reminder
type Alert struct {
	PatientName  string    `json:"patientName"`
	MedicineName string    `json:"medicineName"`
	DoseTime     string    `json:"doseTime"`
	ScheduledFor time.Time `json:"scheduledFor"`
	FiredAt      time.Time `json:"firedAt"`
}

// Message is the spoken reminder text
func (a Alert) Message() string {
	return fmt.Sprintf("%s, it is time to take your %s.", a.PatientName, a.MedicineName)
}

// Body is the notification body text
func (a Alert) Body() string {
	return fmt.Sprintf("%s: Take %s now", a.PatientName, a.MedicineName)
}

// Snapshot is a point-in-time copy of the scheduler state
type Snapshot struct {
	State    State  `json:"state"`
	ArmedFor *Dose  `json:"armedFor,omitempty"`
	Alert    *Alert `json:"alert,omitempty"`
}

// Config holds scheduler settings
type Config struct {
	RepeatInterval  time.Duration
	Title           string
	RespectCalendar bool
}

// SchedulerOption configures optional collaborators
type SchedulerOption func(*Scheduler)

func WithClock(c clockwork.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

func WithMetrics(m *metrics.Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// Scheduler owns the single dose timer and the repeat timer of an active
// alert. Every timer carries the generation it was armed under; a callback
// from an older generation does nothing.
type Scheduler struct {
	sink    alert.Sink
	logger  *zap.Logger
	clock   clockwork.Clock
	metrics *metrics.Metrics

	mu        sync.Mutex
	cfg       Config
	schedules []schedule.Schedule

	armTimer clockwork.Timer
	armGen   uint64
	armed    *Dose

	repeatTimer clockwork.Timer
	repeatGen   uint64
	active      *Alert

	listeners []func(Snapshot)
}

// NewScheduler creates an idle scheduler
func NewScheduler(sink alert.Sink, cfg Config, logger *zap.Logger, opts ...SchedulerOption) *Scheduler {
	if cfg.RepeatInterval <= 0 {
		cfg.RepeatInterval = DefaultRepeatInterval
	}
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		sink:   sink,
		logger: logger,
		clock:  clockwork.NewRealClock(),
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestPermission asks the sink for consent once, at startup
func (s *Scheduler) RequestPermission(ctx context.Context) alert.Permission {
	perm := s.sink.RequestPermission(ctx)
	s.logger.Info("Alert permission", zap.String("permission", string(perm)))
	return perm
}

// OnChange registers a listener called after every state change. Listeners
// run outside the scheduler lock.
func (s *Scheduler) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SetConfig replaces the settings. A running repeat picks up the new
// interval on its next tick.
func (s *Scheduler) SetConfig(cfg Config) {
	if cfg.RepeatInterval <= 0 {
		cfg.RepeatInterval = DefaultRepeatInterval
	}
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Rearm cancels the armed timer and arms a new one for the next dose in
// schedules. The active alert, if any, keeps repeating.
func (s *Scheduler) Rearm(schedules []schedule.Schedule) {
	s.mu.Lock()
	s.schedules = append([]schedule.Schedule(nil), schedules...)
	s.stopArmLocked()
	s.armLocked(s.clock.Now())
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(snap)
}

// Cancel clears both timers and drops the active alert
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.stopArmLocked()
	s.stopRepeatLocked()
	s.active = nil
	s.schedules = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordArmed(time.Time{})
	}
	s.sink.Silence()
	s.emit(snap)
}

// Dismiss stops the active alert. It reports false when nothing was firing.
func (s *Scheduler) Dismiss() bool {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return false
	}
	a := *s.active
	s.active = nil
	s.stopRepeatLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.sink.Silence()
	if s.metrics != nil {
		s.metrics.RecordDismissed()
	}
	s.logger.Info("Reminder dismissed",
		zap.String("patient", a.PatientName),
		zap.String("medicine", a.MedicineName),
	)
	s.emit(snap)
	return true
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// ArmedFor returns the dose the timer is armed for
func (s *Scheduler) ArmedFor() (Dose, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed == nil {
		return Dose{}, false
	}
	return *s.armed, true
}

// ActiveAlert returns the alert that is firing
func (s *Scheduler) ActiveAlert() (Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return Alert{}, false
	}
	return *s.active, true
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Scheduler) stateLocked() State {
	switch {
	case s.active != nil:
		return StateFiring
	case s.armed != nil:
		return StateArmed
	}
	return StateIdle
}

func (s *Scheduler) snapshotLocked() Snapshot {
	snap := Snapshot{State: s.stateLocked()}
	if s.armed != nil {
		d := *s.armed
		snap.ArmedFor = &d
	}
	if s.active != nil {
		a := *s.active
		snap.Alert = &a
	}
	return snap
}

func (s *Scheduler) indexOptions() []Option {
	if s.cfg.RespectCalendar {
		return []Option{WithCalendar()}
	}
	return nil
}

func (s *Scheduler) stopArmLocked() {
	s.armGen++
	if s.armTimer != nil {
		s.armTimer.Stop()
		s.armTimer = nil
	}
	s.armed = nil
}

func (s *Scheduler) stopRepeatLocked() {
	s.repeatGen++
	if s.repeatTimer != nil {
		s.repeatTimer.Stop()
		s.repeatTimer = nil
	}
}

// armLocked arms the timer for the first dose after ref. The caller has
// stopped any previous arm timer.
func (s *Scheduler) armLocked(ref time.Time) {
	dose, ok := NextDose(s.schedules, ref, s.indexOptions()...)
	if !ok {
		if s.metrics != nil {
			s.metrics.RecordArmed(time.Time{})
		}
		s.logger.Debug("No upcoming dose today")
		return
	}

	gen := s.armGen
	wait := dose.When.Sub(s.clock.Now())
	if wait < 0 {
		wait = 0
	}
	s.armed = &dose
	s.armTimer = s.clock.AfterFunc(wait, func() { s.fire(gen) })

	if s.metrics != nil {
		s.metrics.RecordArmed(dose.When)
	}
	s.logger.Info("Reminder armed",
		zap.String("patient", dose.PatientName),
		zap.String("medicine", dose.MedicineName),
		zap.Time("at", dose.When),
		zap.Duration("in", wait),
	)
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.armGen || s.armed == nil {
		s.mu.Unlock()
		return
	}

	dose := *s.armed
	s.armTimer = nil
	s.armed = nil
	s.armGen++

	now := s.clock.Now()
	a := Alert{
		PatientName:  dose.PatientName,
		MedicineName: dose.MedicineName,
		DoseTime:     dose.DoseTime,
		ScheduledFor: dose.When,
		FiredAt:      now,
	}

	// a newer alert replaces one still repeating
	s.stopRepeatLocked()
	s.active = &a
	rgen := s.repeatGen
	s.repeatTimer = s.clock.AfterFunc(s.cfg.RepeatInterval, func() { s.repeat(rgen) })

	// the fired dose is not after ref, so it cannot be picked again
	ref := now
	if dose.When.After(ref) {
		ref = dose.When
	}
	s.armLocked(ref)

	title := s.cfg.Title
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordFired()
	}
	s.logger.Info("Reminder fired",
		zap.String("patient", a.PatientName),
		zap.String("medicine", a.MedicineName),
		zap.String("dose_time", a.DoseTime),
	)

	s.emit(snap)
	s.deliver(a, title, true)
}

func (s *Scheduler) repeat(gen uint64) {
	s.mu.Lock()
	if gen != s.repeatGen || s.active == nil {
		s.mu.Unlock()
		return
	}
	a := *s.active
	title := s.cfg.Title
	s.repeatTimer = s.clock.AfterFunc(s.cfg.RepeatInterval, func() { s.repeat(gen) })
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordRepeat()
	}
	s.deliver(a, title, false)
}

// deliver sends the alert to the sink. The first delivery includes the
// notification; repeats only speak and ring.
func (s *Scheduler) deliver(a Alert, title string, first bool) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	if first {
		s.record("notify", s.sink.Notify(ctx, title, a.Body()))
	}
	s.record("speech", s.sink.Speak(ctx, a.Message()))
	s.record("tone", s.sink.PlayTone(ctx))
}

func (s *Scheduler) record(channel string, err error) {
	if s.metrics != nil {
		s.metrics.RecordDelivery(channel, err)
	}
	if err != nil {
		s.logger.Warn("Alert delivery failed", zap.String("channel", channel), zap.Error(err))
	}
}

func (s *Scheduler) emit(snap Snapshot) {
	s.mu.Lock()
	listeners := append([]func(Snapshot){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
