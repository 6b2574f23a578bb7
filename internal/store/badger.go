package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	apperrors "github.com/gmsas95/meditime/internal/errors"
	"github.com/gmsas95/meditime/internal/schedule"
)

const (
	keyUsers        = "users"
	keyLastActive   = "last_active"
	prefixSchedules = "schedules:"
	prefixForm      = "form:"
)

// Badger stores everything as JSON values under a small key layout:
//
//	users             ["alice","bob"]
//	schedules:<user>  [schedule, ...] in insertion order
//	form:<user>       draft
//	last_active       user id
type Badger struct {
	db *badger.DB
}

// NewBadger opens a BadgerDB at path, or an in-memory one when path is empty
func NewBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(16 << 20).
		WithMemTableSize(16 << 20)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, apperrors.Storage(err, "open badger")
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func getJSON(txn *badger.Txn, key string, v any) (bool, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), data)
}

func userNames(txn *badger.Txn) ([]string, error) {
	var names []string
	_, err := getJSON(txn, keyUsers, &names)
	return names, err
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// loadSchedules decodes stored records, normalizing legacy single-medicine ones
func loadSchedules(txn *badger.Txn, userID string) ([]schedule.Schedule, error) {
	var raw []json.RawMessage
	if _, err := getJSON(txn, prefixSchedules+userID, &raw); err != nil {
		return nil, err
	}
	out := make([]schedule.Schedule, 0, len(raw))
	for _, r := range raw {
		rec, err := schedule.DecodeRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec.Normalize())
	}
	return out, nil
}

func (b *Badger) view(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrapStorage(b.db.View(fn), op)
}

func (b *Badger) update(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrapStorage(b.db.Update(fn), op)
}

// wrapStorage turns backend errors into STORE_001 and passes AppErrors through
func wrapStorage(err error, op string) error {
	if err == nil || apperrors.IsAppError(err) {
		return err
	}
	return apperrors.Storage(err, op)
}

func (b *Badger) GetUsers(ctx context.Context) ([]schedule.User, error) {
	var users []schedule.User
	err := b.view(ctx, "get users", func(txn *badger.Txn) error {
		names, err := userNames(txn)
		if err != nil {
			return err
		}
		users = make([]schedule.User, 0, len(names))
		for _, n := range names {
			users = append(users, schedule.NewUser(n))
		}
		return nil
	})
	return users, err
}

func (b *Badger) CreateUser(ctx context.Context, name string) (schedule.User, error) {
	if err := validUserName(name); err != nil {
		return schedule.User{}, err
	}
	err := b.update(ctx, "create user", func(txn *badger.Txn) error {
		names, err := userNames(txn)
		if err != nil {
			return err
		}
		if contains(names, name) {
			return duplicateUser(name)
		}
		return setJSON(txn, keyUsers, append(names, name))
	})
	if err != nil {
		return schedule.User{}, err
	}
	return schedule.NewUser(name), nil
}

func (b *Badger) DeleteUser(ctx context.Context, userID string) error {
	return b.update(ctx, "delete user", func(txn *badger.Txn) error {
		names, err := userNames(txn)
		if err != nil {
			return err
		}
		if !contains(names, userID) {
			return userNotFound(userID)
		}

		remaining := make([]string, 0, len(names)-1)
		for _, n := range names {
			if n != userID {
				remaining = append(remaining, n)
			}
		}
		if err := setJSON(txn, keyUsers, remaining); err != nil {
			return err
		}
		if err := txn.Delete([]byte(prefixSchedules + userID)); err != nil {
			return err
		}
		if err := txn.Delete([]byte(prefixForm + userID)); err != nil {
			return err
		}

		var last string
		if _, err := getJSON(txn, keyLastActive, &last); err != nil {
			return err
		}
		if last == userID {
			return setJSON(txn, keyLastActive, nextActive(remaining))
		}
		return nil
	})
}

func (b *Badger) GetSchedules(ctx context.Context, userID string) ([]schedule.Schedule, error) {
	var out []schedule.Schedule
	err := b.view(ctx, "get schedules", func(txn *badger.Txn) error {
		var err error
		out, err = loadSchedules(txn, userID)
		return err
	})
	return out, err
}

func (b *Badger) SaveSchedule(ctx context.Context, userID string, s schedule.Schedule) (schedule.Schedule, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	err := b.update(ctx, "save schedule", func(txn *badger.Txn) error {
		names, err := userNames(txn)
		if err != nil {
			return err
		}
		if !contains(names, userID) {
			return userNotFound(userID)
		}
		list, err := loadSchedules(txn, userID)
		if err != nil {
			return err
		}
		return setJSON(txn, prefixSchedules+userID, append(list, s))
	})
	if err != nil {
		return schedule.Schedule{}, err
	}
	return s, nil
}

func (b *Badger) rewriteSchedules(ctx context.Context, op, userID string, keep func(schedule.Schedule) bool) (int, error) {
	removed := 0
	err := b.update(ctx, op, func(txn *badger.Txn) error {
		list, err := loadSchedules(txn, userID)
		if err != nil {
			return err
		}
		kept := make([]schedule.Schedule, 0, len(list))
		for _, s := range list {
			if keep(s) {
				kept = append(kept, s)
			} else {
				removed++
			}
		}
		if removed == 0 {
			return nil
		}
		return setJSON(txn, prefixSchedules+userID, kept)
	})
	return removed, err
}

func (b *Badger) DeleteSchedule(ctx context.Context, scheduleID, userID string) error {
	n, err := b.rewriteSchedules(ctx, "delete schedule", userID, func(s schedule.Schedule) bool {
		return s.ID != scheduleID
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return scheduleNotFound(scheduleID)
	}
	return nil
}

func (b *Badger) DeleteAllSchedules(ctx context.Context, userID string) error {
	return b.update(ctx, "delete all schedules", func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixSchedules + userID))
	})
}

func (b *Badger) DeleteSchedulesByPatient(ctx context.Context, userID, patientName string) (int, error) {
	return b.rewriteSchedules(ctx, "delete patient schedules", userID, func(s schedule.Schedule) bool {
		return s.DisplayName() != patientName
	})
}

func (b *Badger) GetFormData(ctx context.Context, userID string) (*schedule.Draft, error) {
	var d schedule.Draft
	var found bool
	err := b.view(ctx, "get form data", func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, prefixForm+userID, &d)
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &d, nil
}

func (b *Badger) SaveFormData(ctx context.Context, userID string, d schedule.Draft) error {
	return b.update(ctx, "save form data", func(txn *badger.Txn) error {
		return setJSON(txn, prefixForm+userID, d)
	})
}

func (b *Badger) DeleteFormData(ctx context.Context, userID string) error {
	return b.update(ctx, "delete form data", func(txn *badger.Txn) error {
		return txn.Delete([]byte(prefixForm + userID))
	})
}

func (b *Badger) LastActiveUser(ctx context.Context) (string, error) {
	var last string
	err := b.view(ctx, "get last active user", func(txn *badger.Txn) error {
		_, err := getJSON(txn, keyLastActive, &last)
		return err
	})
	return last, err
}

func (b *Badger) SetLastActiveUser(ctx context.Context, userID string) error {
	return b.update(ctx, "set last active user", func(txn *badger.Txn) error {
		return setJSON(txn, keyLastActive, userID)
	})
}

func (b *Badger) Export(ctx context.Context) (*Snapshot, error) {
	return exportFrom(ctx, b)
}

func (b *Badger) Import(ctx context.Context, snap *Snapshot) error {
	return importInto(ctx, b, snap)
}

func (b *Badger) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrapStorage(b.db.DropAll(), "clear")
}
