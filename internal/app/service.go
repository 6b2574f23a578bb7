package app

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/meditime/internal/errors"
	"github.com/gmsas95/meditime/internal/metrics"
	"github.com/gmsas95/meditime/internal/reminder"
	"github.com/gmsas95/meditime/internal/schedule"
	"github.com/gmsas95/meditime/internal/store"
)

// Service owns the active user and their schedule list, keeps the
// scheduler armed for it and writes every change through the store.
// Methods are serialized; in-memory state changes only after the store
// accepted the write.
type Service struct {
	store     store.ScheduleStore
	scheduler *reminder.Scheduler
	logger    *zap.Logger
	metrics   *metrics.Metrics
	clock     clockwork.Clock

	mu              sync.Mutex
	active          string
	schedules       []schedule.Schedule
	respectCalendar bool
}

type ServiceOption func(*Service)

func WithServiceClock(c clockwork.Clock) ServiceOption {
	return func(s *Service) { s.clock = c }
}

func WithServiceMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithRespectCalendar makes NextDose skip medicines not active today
func WithRespectCalendar(on bool) ServiceOption {
	return func(s *Service) { s.respectCalendar = on }
}

// NewService wires st and sched together. sched may be nil for one-shot
// CLI use, in which case nothing is ever armed.
func NewService(st store.ScheduleStore, sched *reminder.Scheduler, logger *zap.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:     st,
		scheduler: sched,
		logger:    logger,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) storageErr(op string, err error) error {
	if err != nil && apperrors.GetCode(err) == apperrors.ErrStorageUnavailable.Code {
		if s.metrics != nil {
			s.metrics.RecordStorageError(op)
		}
		s.logger.Error("Storage failure", zap.String("op", op), zap.Error(err))
	}
	return err
}

func (s *Service) rearmLocked() {
	if s.scheduler != nil {
		s.scheduler.Rearm(s.schedules)
	}
}

// Load restores the last active user (or the first one) and arms the
// scheduler for their schedules.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Service) loadLocked(ctx context.Context) error {
	users, err := s.store.GetUsers(ctx)
	if err != nil {
		return s.storageErr("get users", err)
	}
	last, err := s.store.LastActiveUser(ctx)
	if err != nil {
		return s.storageErr("get last active user", err)
	}

	active := ""
	for _, u := range users {
		if u.ID == last {
			active = last
			break
		}
	}
	if active == "" && len(users) > 0 {
		active = users[0].ID
	}

	return s.activateLocked(ctx, active)
}

// activateLocked loads the schedules of user and re-arms. An empty user
// means nobody is selected.
func (s *Service) activateLocked(ctx context.Context, user string) error {
	var list []schedule.Schedule
	if user != "" {
		var err error
		if list, err = s.store.GetSchedules(ctx, user); err != nil {
			return s.storageErr("get schedules", err)
		}
	}
	s.setActiveLocked(user, list)
	return nil
}

func (s *Service) setActiveLocked(user string, list []schedule.Schedule) {
	if s.scheduler != nil && user != s.active {
		s.scheduler.Cancel()
	}
	s.active = user
	s.schedules = list
	s.rearmLocked()

	s.logger.Info("Active user",
		zap.String("user", user),
		zap.Int("schedules", len(list)),
	)
}

// ActiveUser returns the selected user, empty when there is none
func (s *Service) ActiveUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Service) Users(ctx context.Context) ([]schedule.User, error) {
	users, err := s.store.GetUsers(ctx)
	return users, s.storageErr("get users", err)
}

// CreateUser adds a profile and makes it active
func (s *Service) CreateUser(ctx context.Context, name string) (schedule.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.store.CreateUser(ctx, name)
	if err != nil {
		return schedule.User{}, s.storageErr("create user", err)
	}
	if err := s.switchLocked(ctx, u.ID); err != nil {
		return u, err
	}
	return u, nil
}

// SwitchUser makes name the active user
func (s *Service) SwitchUser(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.store.GetUsers(ctx)
	if err != nil {
		return s.storageErr("get users", err)
	}
	for _, u := range users {
		if u.ID == name {
			return s.switchLocked(ctx, name)
		}
	}
	return apperrors.New(apperrors.ErrUserNotFound.Code, fmt.Sprintf("user %q not found", name))
}

func (s *Service) switchLocked(ctx context.Context, name string) error {
	if err := s.store.SetLastActiveUser(ctx, name); err != nil {
		return s.storageErr("set last active user", err)
	}
	return s.activateLocked(ctx, name)
}

// DeleteUser removes name with their schedules and draft. Deleting the
// active user selects the first remaining one.
func (s *Service) DeleteUser(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteUser(ctx, name); err != nil {
		return s.storageErr("delete user", err)
	}
	s.logger.Info("User deleted", zap.String("user", name))
	if name != s.active {
		return nil
	}
	return s.loadLocked(ctx)
}

func (s *Service) requireActiveLocked() error {
	if s.active == "" {
		return apperrors.ErrNoActiveUser
	}
	return nil
}

// Draft returns the saved draft of the active user, or a blank one
func (s *Service) Draft(ctx context.Context) (schedule.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActiveLocked(); err != nil {
		return schedule.Draft{}, err
	}

	d, err := s.store.GetFormData(ctx, s.active)
	if err != nil {
		return schedule.Draft{}, s.storageErr("get form data", err)
	}
	if d == nil || len(d.Medicines) == 0 {
		return schedule.NewDraft(), nil
	}
	return *d, nil
}

func (s *Service) SaveDraft(ctx context.Context, d schedule.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActiveLocked(); err != nil {
		return err
	}
	return s.storageErr("save form data", s.store.SaveFormData(ctx, s.active, d))
}

func (s *Service) ResetDraft(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActiveLocked(); err != nil {
		return err
	}
	return s.storageErr("delete form data", s.store.DeleteFormData(ctx, s.active))
}

// Submit validates d and saves it as a new schedule of the active user
func (s *Service) Submit(ctx context.Context, d schedule.Draft) (schedule.Schedule, error) {
	if errs := schedule.Validate(d); !errs.Valid() {
		if s.metrics != nil {
			s.metrics.RecordValidationFailed()
		}
		return schedule.Schedule{}, errs.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActiveLocked(); err != nil {
		return schedule.Schedule{}, err
	}

	saved, err := s.store.SaveSchedule(ctx, s.active, schedule.Commit(d, "", s.clock.Now()))
	if err != nil {
		return schedule.Schedule{}, s.storageErr("save schedule", err)
	}
	if s.metrics != nil {
		s.metrics.RecordScheduleSaved()
	}
	s.logger.Info("Schedule saved",
		zap.String("user", s.active),
		zap.String("id", saved.ID),
		zap.String("patient", saved.DisplayName()),
		zap.Int("medicines", len(saved.Medicines)),
	)

	if err := s.store.DeleteFormData(ctx, s.active); err != nil {
		s.logger.Warn("Failed to clear draft", zap.Error(err))
	}
	return saved, s.reloadLocked(ctx)
}

func (s *Service) reloadLocked(ctx context.Context) error {
	list, err := s.store.GetSchedules(ctx, s.active)
	if err != nil {
		return s.storageErr("get schedules", err)
	}
	s.schedules = list
	s.rearmLocked()
	return nil
}

func (s *Service) DeleteSchedule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActiveLocked(); err != nil {
		return err
	}
	if err := s.store.DeleteSchedule(ctx, id, s.active); err != nil {
		return s.storageErr("delete schedule", err)
	}
	if s.metrics != nil {
		s.metrics.RecordScheduleDeleted()
	}
	return s.reloadLocked(ctx)
}

func (s *Service) DeleteAllSchedules(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActiveLocked(); err != nil {
		return err
	}
	if err := s.store.DeleteAllSchedules(ctx, s.active); err != nil {
		return s.storageErr("delete all schedules", err)
	}
	return s.reloadLocked(ctx)
}

// DeleteSchedulesByPatient removes every schedule grouped under patient
// and reports how many went away
func (s *Service) DeleteSchedulesByPatient(ctx context.Context, patient string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActiveLocked(); err != nil {
		return 0, err
	}
	n, err := s.store.DeleteSchedulesByPatient(ctx, s.active, patient)
	if err != nil {
		return 0, s.storageErr("delete patient schedules", err)
	}
	return n, s.reloadLocked(ctx)
}

func (s *Service) Schedules() []schedule.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schedule.Schedule(nil), s.schedules...)
}

func (s *Service) Grouped() []schedule.PatientGroup {
	return schedule.Group(s.Schedules())
}

// NextDose returns the next dose of the active user later today
func (s *Service) NextDose() (reminder.Dose, bool) {
	s.mu.Lock()
	list := s.schedules
	calendar := s.respectCalendar
	s.mu.Unlock()

	var opts []reminder.Option
	if calendar {
		opts = append(opts, reminder.WithCalendar())
	}
	return reminder.NextDose(list, s.clock.Now(), opts...)
}

func (s *Service) SetRespectCalendar(on bool) {
	s.mu.Lock()
	s.respectCalendar = on
	s.mu.Unlock()
}

// Dismiss stops the firing alert
func (s *Service) Dismiss() bool {
	if s.scheduler == nil {
		return false
	}
	return s.scheduler.Dismiss()
}

// Reminder returns the scheduler state
func (s *Service) Reminder() reminder.Snapshot {
	if s.scheduler == nil {
		return reminder.Snapshot{State: reminder.StateIdle}
	}
	return s.scheduler.Snapshot()
}

// Refresh reloads from the store and always re-arms. The rollover job
// calls it when the day changes.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

// Sync reloads from the store and re-arms only when something another
// process wrote changed the active user or their schedules.
func (s *Service) Sync(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevUser := s.active
	prev := s.schedules

	users, err := s.store.GetUsers(ctx)
	if err != nil {
		return false, s.storageErr("get users", err)
	}
	last, err := s.store.LastActiveUser(ctx)
	if err != nil {
		return false, s.storageErr("get last active user", err)
	}

	want := ""
	for _, u := range users {
		if u.ID == last {
			want = last
		}
	}
	if want == "" && len(users) > 0 {
		want = users[0].ID
	}

	var list []schedule.Schedule
	if want != "" {
		if list, err = s.store.GetSchedules(ctx, want); err != nil {
			return false, s.storageErr("get schedules", err)
		}
	}
	if want == prevUser && reflect.DeepEqual(schedulesKey(list), schedulesKey(prev)) {
		return false, nil
	}

	s.logger.Info("Store changed, re-arming", zap.String("user", want))
	s.setActiveLocked(want, list)
	return true, nil
}

// schedulesKey strips fields that differ between two loads of the same data
func schedulesKey(list []schedule.Schedule) []schedule.Schedule {
	out := make([]schedule.Schedule, len(list))
	for i, sc := range list {
		sc.CreatedAt = sc.CreatedAt.UTC()
		out[i] = sc
	}
	return out
}
