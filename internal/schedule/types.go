// Package schedule holds the medication schedule model: users, schedules with
// their medicines, the editable draft form and its validation.
package schedule

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Method selects how a medicine's calendar is expressed
type Method string

const (
	MethodDaysPerWeek Method = "daysPerWeek"
	MethodDaysGap     Method = "daysGap"
)

// DateLayout is the layout of StartDate and EndDate
const DateLayout = "2006-01-02"

// UnnamedPatient labels schedules whose patient name is blank
const UnnamedPatient = "Unnamed Patient"

// Weekdays lists the day names accepted in Medicine.SelectedDays
var Weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// User is a profile. ID and Name are the same value.
type User struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// NewUser builds the user record for a profile name
func NewUser(name string) User {
	return User{ID: name, Name: name}
}

// Count is an integer form field. Stored drafts may carry it as a string
// ("3") or an empty string, both of which decode.
type Count int

func (c *Count) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*c = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
		if s == "" {
			*c = 0
			return nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// unparseable input behaves like an empty field
		*c = 0
		return nil
	}
	*c = Count(int(f))
	return nil
}

// Medicine is one medicine of a schedule
type Medicine struct {
	MedicineName       string   `json:"medicineName" yaml:"medicineName"`
	SchedulingMethod   Method   `json:"schedulingMethod" yaml:"schedulingMethod"`
	SelectedDays       []string `json:"selectedDays" yaml:"selectedDays"`
	DaysGap            Count    `json:"daysGap" yaml:"daysGap"`
	TimesPerDay        Count    `json:"timesPerDay" yaml:"timesPerDay"`
	DoseTimes          []string `json:"doseTimes" yaml:"doseTimes"`
	StartDate          string   `json:"startDate,omitempty" yaml:"startDate,omitempty"`
	EndDate            string   `json:"endDate,omitempty" yaml:"endDate,omitempty"`
	DoseTimeRangeStart string   `json:"doseTimeRangeStart,omitempty" yaml:"doseTimeRangeStart,omitempty"`
	DoseTimeRangeEnd   string   `json:"doseTimeRangeEnd,omitempty" yaml:"doseTimeRangeEnd,omitempty"`
}

// Schedule is a committed patient schedule
type Schedule struct {
	ID          string     `json:"id" yaml:"id"`
	PatientName string     `json:"patientName" yaml:"patientName"`
	Medicines   []Medicine `json:"medicines" yaml:"medicines"`
	CreatedAt   time.Time  `json:"createdAt" yaml:"createdAt"`
}

// DisplayName returns the patient name, or UnnamedPatient when blank
func (s Schedule) DisplayName() string {
	if strings.TrimSpace(s.PatientName) == "" {
		return UnnamedPatient
	}
	return s.PatientName
}

// ActiveOn reports whether the medicine's calendar includes day in day's
// location. Medicines without calendar fields are always active.
func (m Medicine) ActiveOn(day time.Time) bool {
	date := civilDate(day)

	if start, ok := parseDate(m.StartDate, day.Location()); ok && date.Before(start) {
		return false
	}
	if end, ok := parseDate(m.EndDate, day.Location()); ok && date.After(end) {
		return false
	}

	switch m.SchedulingMethod {
	case MethodDaysPerWeek:
		if len(m.SelectedDays) == 0 {
			return true
		}
		weekday := day.Weekday().String()
		for _, d := range m.SelectedDays {
			if strings.EqualFold(d, weekday) {
				return true
			}
		}
		return false
	case MethodDaysGap:
		start, ok := parseDate(m.StartDate, day.Location())
		if !ok || m.DaysGap < 1 {
			return true
		}
		days := int(date.Sub(start).Hours()/24 + 0.5)
		return days%int(m.DaysGap) == 0
	}
	return true
}

func civilDate(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}

func parseDate(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
