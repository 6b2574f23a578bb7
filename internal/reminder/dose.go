// Package reminder finds the next due dose and drives the single reminder
// timer that fires for it.
package reminder

import (
	"strings"
	"time"

	"github.com/gmsas95/meditime/internal/dosetime"
	"github.com/gmsas95/meditime/internal/schedule"
)

// Dose is one concrete dose instant
type Dose struct {
	When         time.Time `json:"when"`
	PatientName  string    `json:"patientName"`
	MedicineName string    `json:"medicineName"`
	ScheduleID   string    `json:"scheduleId"`
	DoseTime     string    `json:"doseTime"`
}

type indexOptions struct {
	calendar bool
}

// Option adjusts NextDose
type Option func(*indexOptions)

// WithCalendar skips medicines whose calendar excludes the reference day
func WithCalendar() Option {
	return func(o *indexOptions) { o.calendar = true }
}

// NextDose returns the soonest dose strictly after ref on ref's local date.
// Dose times already passed today are dropped, not moved to tomorrow. Ties
// keep the first one found in schedule, medicine, dose-time order.
func NextDose(schedules []schedule.Schedule, ref time.Time, opts ...Option) (Dose, bool) {
	var o indexOptions
	for _, opt := range opts {
		opt(&o)
	}

	year, month, day := ref.Date()
	loc := ref.Location()

	var best Dose
	found := false

	for _, s := range schedules {
		for _, m := range s.Medicines {
			if o.calendar && !m.ActiveOn(ref) {
				continue
			}
			for _, t := range m.DoseTimes {
				t = strings.TrimSpace(t)
				h, mm, ok := dosetime.Parse24(t)
				if !ok {
					continue
				}
				when := time.Date(year, month, day, h, mm, 0, 0, loc)
				if !when.After(ref) {
					continue
				}
				if !found || when.Before(best.When) {
					best = Dose{
						When:         when,
						PatientName:  s.PatientName,
						MedicineName: m.MedicineName,
						ScheduleID:   s.ID,
						DoseTime:     t,
					}
					found = true
				}
			}
		}
	}

	return best, found
}
