package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	apperrors "github.com/gmsas95/meditime/internal/errors"
	"github.com/gmsas95/meditime/internal/schedule"
)

const settingLastActive = "last_active"

// SQL stores users, schedules and drafts in SQLite through GORM
type SQL struct {
	db  *gorm.DB
	raw *sql.DB
}

// NewSQL opens (and migrates) the SQLite database at path
func NewSQL(path string) (*SQL, error) {
	rawDB, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, apperrors.Storage(err, "open sqlite")
	}

	// one writer keeps transactions from tripping SQLITE_BUSY
	rawDB.SetMaxOpenConns(1)
	rawDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: rawDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		rawDB.Close()
		return nil, apperrors.Storage(err, "open sqlite")
	}

	if err := db.AutoMigrate(&UserRow{}, &ScheduleRow{}, &FormRow{}, &SettingRow{}); err != nil {
		rawDB.Close()
		return nil, apperrors.Storage(err, "migrate sqlite")
	}

	return &SQL{db: db, raw: rawDB}, nil
}

func (s *SQL) Close() error {
	return s.raw.Close()
}

// DB returns the GORM database instance
func (s *SQL) DB() *gorm.DB {
	return s.db
}

func (s *SQL) tx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	return wrapStorage(s.db.WithContext(ctx).Transaction(fn), op)
}

func userExists(tx *gorm.DB, id string) (bool, error) {
	var count int64
	err := tx.Model(&UserRow{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func nextPosition(tx *gorm.DB, model any, where string, args ...any) (int64, error) {
	var max sql.NullInt64
	q := tx.Model(model).Select("MAX(position)")
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Scan(&max).Error; err != nil {
		return 0, err
	}
	return max.Int64 + 1, nil
}

func (s *SQL) GetUsers(ctx context.Context) ([]schedule.User, error) {
	var rows []UserRow
	if err := s.db.WithContext(ctx).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, apperrors.Storage(err, "get users")
	}
	users := make([]schedule.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, schedule.NewUser(r.ID))
	}
	return users, nil
}

func (s *SQL) CreateUser(ctx context.Context, name string) (schedule.User, error) {
	if err := validUserName(name); err != nil {
		return schedule.User{}, err
	}
	err := s.tx(ctx, "create user", func(tx *gorm.DB) error {
		exists, err := userExists(tx, name)
		if err != nil {
			return err
		}
		if exists {
			return duplicateUser(name)
		}
		pos, err := nextPosition(tx, &UserRow{}, "")
		if err != nil {
			return err
		}
		return tx.Create(&UserRow{ID: name, Position: pos}).Error
	})
	if err != nil {
		return schedule.User{}, err
	}
	return schedule.NewUser(name), nil
}

func (s *SQL) DeleteUser(ctx context.Context, userID string) error {
	return s.tx(ctx, "delete user", func(tx *gorm.DB) error {
		exists, err := userExists(tx, userID)
		if err != nil {
			return err
		}
		if !exists {
			return userNotFound(userID)
		}

		if err := tx.Where("user_id = ?", userID).Delete(&ScheduleRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&FormRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", userID).Delete(&UserRow{}).Error; err != nil {
			return err
		}

		var last SettingRow
		err = tx.Where("key = ?", settingLastActive).First(&last).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if last.Value != userID {
			return nil
		}

		var remaining []string
		if err := tx.Model(&UserRow{}).Order("position ASC").Pluck("id", &remaining).Error; err != nil {
			return err
		}
		last.Value = nextActive(remaining)
		return tx.Save(&last).Error
	})
}

func (s *SQL) GetSchedules(ctx context.Context, userID string) ([]schedule.Schedule, error) {
	var rows []ScheduleRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Storage(err, "get schedules")
	}

	out := make([]schedule.Schedule, 0, len(rows))
	for _, r := range rows {
		rec, err := schedule.DecodeRecord([]byte(r.Data))
		if err != nil {
			return nil, apperrors.Storage(err, "decode schedule")
		}
		sc := rec.Normalize()
		sc.ID = r.ID
		out = append(out, sc)
	}
	return out, nil
}

func (s *SQL) SaveSchedule(ctx context.Context, userID string, sc schedule.Schedule) (schedule.Schedule, error) {
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now()
	}

	data, err := json.Marshal(sc)
	if err != nil {
		return schedule.Schedule{}, apperrors.Storage(err, "encode schedule")
	}

	err = s.tx(ctx, "save schedule", func(tx *gorm.DB) error {
		exists, err := userExists(tx, userID)
		if err != nil {
			return err
		}
		if !exists {
			return userNotFound(userID)
		}
		pos, err := nextPosition(tx, &ScheduleRow{}, "user_id = ?", userID)
		if err != nil {
			return err
		}
		return tx.Create(&ScheduleRow{
			ID:          sc.ID,
			UserID:      userID,
			Position:    pos,
			PatientName: sc.PatientName,
			Data:        string(data),
			CreatedAt:   sc.CreatedAt,
		}).Error
	})
	if err != nil {
		return schedule.Schedule{}, err
	}
	return sc, nil
}

func (s *SQL) DeleteSchedule(ctx context.Context, scheduleID, userID string) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", scheduleID, userID).
		Delete(&ScheduleRow{})
	if res.Error != nil {
		return apperrors.Storage(res.Error, "delete schedule")
	}
	if res.RowsAffected == 0 {
		return scheduleNotFound(scheduleID)
	}
	return nil
}

func (s *SQL) DeleteAllSchedules(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&ScheduleRow{}).Error
	return wrapStorage(err, "delete all schedules")
}

func (s *SQL) DeleteSchedulesByPatient(ctx context.Context, userID, patientName string) (int, error) {
	removed := 0
	err := s.tx(ctx, "delete patient schedules", func(tx *gorm.DB) error {
		var rows []ScheduleRow
		if err := tx.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
			return err
		}
		var ids []string
		for _, r := range rows {
			if (schedule.Schedule{PatientName: r.PatientName}).DisplayName() == patientName {
				ids = append(ids, r.ID)
			}
		}
		if len(ids) == 0 {
			return nil
		}
		res := tx.Where("id IN ?", ids).Delete(&ScheduleRow{})
		removed = int(res.RowsAffected)
		return res.Error
	})
	return removed, err
}

func (s *SQL) GetFormData(ctx context.Context, userID string) (*schedule.Draft, error) {
	var row FormRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Storage(err, "get form data")
	}

	var d schedule.Draft
	if err := json.Unmarshal([]byte(row.Data), &d); err != nil {
		return nil, apperrors.Storage(err, "decode form data")
	}
	return &d, nil
}

func (s *SQL) SaveFormData(ctx context.Context, userID string, d schedule.Draft) error {
	data, err := json.Marshal(d)
	if err != nil {
		return apperrors.Storage(err, "encode form data")
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&FormRow{UserID: userID, Data: string(data)}).Error
	return wrapStorage(err, "save form data")
}

func (s *SQL) DeleteFormData(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&FormRow{}).Error
	return wrapStorage(err, "delete form data")
}

func (s *SQL) LastActiveUser(ctx context.Context) (string, error) {
	var row SettingRow
	err := s.db.WithContext(ctx).Where("key = ?", settingLastActive).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", apperrors.Storage(err, "get last active user")
	}
	return row.Value, nil
}

func (s *SQL) SetLastActiveUser(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&SettingRow{Key: settingLastActive, Value: userID}).Error
	return wrapStorage(err, "set last active user")
}

func (s *SQL) Export(ctx context.Context) (*Snapshot, error) {
	return exportFrom(ctx, s)
}

func (s *SQL) Import(ctx context.Context, snap *Snapshot) error {
	return importInto(ctx, s, snap)
}

func (s *SQL) Clear(ctx context.Context) error {
	return s.tx(ctx, "clear", func(tx *gorm.DB) error {
		for _, model := range []any{&ScheduleRow{}, &FormRow{}, &SettingRow{}, &UserRow{}} {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
