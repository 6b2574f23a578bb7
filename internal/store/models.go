package store

import (
	"time"
)

// UserRow is a profile. Position keeps creation order.
type UserRow struct {
	ID        string `gorm:"primaryKey"`
	Position  int64  `gorm:"index"`
	CreatedAt time.Time
}

func (UserRow) TableName() string { return "users" }

// ScheduleRow holds one schedule; the medicines live in Data as JSON
type ScheduleRow struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"index:idx_user_position"`
	Position    int64  `gorm:"index:idx_user_position"`
	PatientName string `gorm:"index"`
	Data        string `gorm:"type:text"`
	CreatedAt   time.Time
}

func (ScheduleRow) TableName() string { return "schedules" }

// FormRow is the saved draft of a user
type FormRow struct {
	UserID    string `gorm:"primaryKey"`
	Data      string `gorm:"type:text"`
	UpdatedAt time.Time
}

func (FormRow) TableName() string { return "form_data" }

// SettingRow is a key-value pair, used for the last active user
type SettingRow struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (SettingRow) TableName() string { return "settings" }
