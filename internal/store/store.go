// Package store persists users, their schedules, drafts and the last active
// user. Two backends implement ScheduleStore: BadgerDB and SQLite via GORM.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gmsas95/meditime/internal/config"
	apperrors "github.com/gmsas95/meditime/internal/errors"
	"github.com/gmsas95/meditime/internal/schedule"
	"github.com/gmsas95/meditime/internal/security"
)

// ScheduleStore is the persistence boundary. Implementations are safe for
// concurrent use.
type ScheduleStore interface {
	GetUsers(ctx context.Context) ([]schedule.User, error)
	CreateUser(ctx context.Context, name string) (schedule.User, error)
	// DeleteUser removes the user with its schedules and draft
	DeleteUser(ctx context.Context, userID string) error

	GetSchedules(ctx context.Context, userID string) ([]schedule.Schedule, error)
	// SaveSchedule appends s, assigning an ID and creation time when unset
	SaveSchedule(ctx context.Context, userID string, s schedule.Schedule) (schedule.Schedule, error)
	DeleteSchedule(ctx context.Context, scheduleID, userID string) error
	DeleteAllSchedules(ctx context.Context, userID string) error
	DeleteSchedulesByPatient(ctx context.Context, userID, patientName string) (int, error)

	GetFormData(ctx context.Context, userID string) (*schedule.Draft, error)
	SaveFormData(ctx context.Context, userID string, d schedule.Draft) error
	DeleteFormData(ctx context.Context, userID string) error

	LastActiveUser(ctx context.Context) (string, error)
	SetLastActiveUser(ctx context.Context, userID string) error

	Export(ctx context.Context) (*Snapshot, error)
	Import(ctx context.Context, snap *Snapshot) error
	Clear(ctx context.Context) error

	Close() error
}

// Snapshot is a whole-store dump
type Snapshot struct {
	Users          []string                       `json:"users" yaml:"users"`
	Schedules      map[string][]schedule.Schedule `json:"schedules" yaml:"schedules"`
	FormDataByUser map[string]schedule.Draft      `json:"formDataByUser" yaml:"formDataByUser"`
	LastActiveUser string                         `json:"lastActiveUser,omitempty" yaml:"lastActiveUser,omitempty"`
}

// Open opens the backend named by cfg.Storage.Backend
func Open(cfg *config.Config, logger *zap.Logger) (ScheduleStore, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		logger.Info("Opening SQLite store", zap.String("path", cfg.Storage.SQLitePath))
		return NewSQL(cfg.Storage.SQLitePath)
	case "badger", "":
		logger.Info("Opening Badger store", zap.String("path", cfg.Storage.BadgerPath))
		return NewBadger(cfg.Storage.BadgerPath)
	}
	return nil, apperrors.New(apperrors.ErrConfigInvalid.Code,
		fmt.Sprintf("unknown storage backend %q", cfg.Storage.Backend))
}

func validUserName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.Validation(map[string]string{"name": "User name is required"})
	}
	if err := security.ValidateName(name); err != nil {
		return apperrors.Validation(map[string]string{"name": "User name " + err.Error()})
	}
	return nil
}

func userNotFound(id string) error {
	return apperrors.New(apperrors.ErrUserNotFound.Code, fmt.Sprintf("user %q not found", id))
}

func duplicateUser(name string) error {
	return apperrors.New(apperrors.ErrDuplicateUser.Code, fmt.Sprintf("user %q already exists", name))
}

func scheduleNotFound(id string) error {
	return apperrors.New(apperrors.ErrScheduleNotFound.Code, fmt.Sprintf("schedule %q not found", id))
}

// exportFrom builds a Snapshot through the public methods of st
func exportFrom(ctx context.Context, st ScheduleStore) (*Snapshot, error) {
	users, err := st.GetUsers(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Users:          make([]string, 0, len(users)),
		Schedules:      make(map[string][]schedule.Schedule),
		FormDataByUser: make(map[string]schedule.Draft),
	}

	for _, u := range users {
		snap.Users = append(snap.Users, u.ID)

		schedules, err := st.GetSchedules(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		if len(schedules) > 0 {
			snap.Schedules[u.ID] = schedules
		}

		draft, err := st.GetFormData(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		if draft != nil {
			snap.FormDataByUser[u.ID] = *draft
		}
	}

	if snap.LastActiveUser, err = st.LastActiveUser(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

// checkSnapshot rejects a snapshot that could not be applied in full
func checkSnapshot(snap *Snapshot) error {
	if snap == nil {
		return apperrors.New(apperrors.ErrBadRequest.Code, "import data is empty")
	}

	seen := make(map[string]bool, len(snap.Users))
	for _, name := range snap.Users {
		if err := validUserName(name); err != nil {
			return fmt.Errorf("import user %q: %w", name, err)
		}
		if seen[name] {
			return duplicateUser(name)
		}
		seen[name] = true
	}
	for name := range snap.Schedules {
		if !seen[name] {
			return apperrors.New(apperrors.ErrBadRequest.Code,
				fmt.Sprintf("schedules of unknown user %q", name))
		}
	}
	for name := range snap.FormDataByUser {
		if !seen[name] {
			return apperrors.New(apperrors.ErrBadRequest.Code,
				fmt.Sprintf("draft of unknown user %q", name))
		}
	}
	return nil
}

// importInto replaces the contents of st with snap. A snapshot that fails
// checkSnapshot leaves st untouched; a storage failure while applying
// restores the previous contents.
func importInto(ctx context.Context, st ScheduleStore, snap *Snapshot) error {
	if err := checkSnapshot(snap); err != nil {
		return err
	}

	prev, err := st.Export(ctx)
	if err != nil {
		return err
	}
	if err := replaceWith(ctx, st, snap); err != nil {
		if rerr := replaceWith(ctx, st, prev); rerr != nil {
			return errors.Join(err, fmt.Errorf("restore previous contents: %w", rerr))
		}
		return err
	}
	return nil
}

func replaceWith(ctx context.Context, st ScheduleStore, snap *Snapshot) error {
	if err := st.Clear(ctx); err != nil {
		return err
	}

	for _, name := range snap.Users {
		if _, err := st.CreateUser(ctx, name); err != nil {
			return fmt.Errorf("import user %q: %w", name, err)
		}
		for _, s := range snap.Schedules[name] {
			if _, err := st.SaveSchedule(ctx, name, s); err != nil {
				return fmt.Errorf("import schedule %q: %w", s.ID, err)
			}
		}
		if d, ok := snap.FormDataByUser[name]; ok {
			if err := st.SaveFormData(ctx, name, d); err != nil {
				return fmt.Errorf("import draft for %q: %w", name, err)
			}
		}
	}

	if snap.LastActiveUser != "" {
		return st.SetLastActiveUser(ctx, snap.LastActiveUser)
	}
	return nil
}

// nextActive picks the user that becomes active after deleted is removed
func nextActive(remaining []string) string {
	if len(remaining) == 0 {
		return ""
	}
	return remaining[0]
}
