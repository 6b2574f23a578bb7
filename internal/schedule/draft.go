package schedule

import (
	"strings"
	"time"

	"github.com/gmsas95/meditime/internal/dosetime"
)

// Draft is the in-progress schedule form of a user
type Draft struct {
	PatientName string     `json:"patientName" yaml:"patientName"`
	Medicines   []Medicine `json:"medicines" yaml:"medicines"`
}

// NewMedicine returns an empty medicine with the default dose window
func NewMedicine() Medicine {
	return Medicine{
		SelectedDays:       []string{},
		DoseTimes:          []string{""},
		DoseTimeRangeStart: dosetime.DefaultWindowStart,
		DoseTimeRangeEnd:   dosetime.DefaultWindowEnd,
	}
}

// NewDraft returns a blank draft holding one empty medicine
func NewDraft() Draft {
	return Draft{Medicines: []Medicine{NewMedicine()}}
}

// Clone deep-copies the draft so edits never alias a stored copy
func (d Draft) Clone() Draft {
	out := Draft{PatientName: d.PatientName, Medicines: make([]Medicine, len(d.Medicines))}
	for i, m := range d.Medicines {
		m.SelectedDays = append([]string{}, m.SelectedDays...)
		m.DoseTimes = append([]string{}, m.DoseTimes...)
		out.Medicines[i] = m
	}
	return out
}

func (d *Draft) medicine(i int) *Medicine {
	if i < 0 || i >= len(d.Medicines) {
		return nil
	}
	return &d.Medicines[i]
}

func (d *Draft) AddMedicine() {
	d.Medicines = append(d.Medicines, NewMedicine())
}

// RemoveMedicine drops medicine i; the last remaining medicine is kept.
func (d *Draft) RemoveMedicine(i int) {
	if len(d.Medicines) <= 1 || d.medicine(i) == nil {
		return
	}
	d.Medicines = append(d.Medicines[:i], d.Medicines[i+1:]...)
}

// SetSchedulingMethod switches medicine i to method and clears the field
// belonging to the other method.
func (d *Draft) SetSchedulingMethod(i int, method Method) {
	m := d.medicine(i)
	if m == nil {
		return
	}
	m.SchedulingMethod = method
	if method != MethodDaysPerWeek {
		m.SelectedDays = []string{}
	}
	if method != MethodDaysGap {
		m.DaysGap = 0
	}
}

func (d *Draft) ToggleDay(i int, day string) {
	m := d.medicine(i)
	if m == nil {
		return
	}
	for j, existing := range m.SelectedDays {
		if existing == day {
			m.SelectedDays = append(m.SelectedDays[:j], m.SelectedDays[j+1:]...)
			return
		}
	}
	m.SelectedDays = append(m.SelectedDays, day)
}

// SetTimesPerDay sets the dose count and refills the dose times with an even
// split of the medicine's window.
func (d *Draft) SetTimesPerDay(i int, n int) {
	m := d.medicine(i)
	if m == nil {
		return
	}
	m.TimesPerDay = Count(n)
	m.refillDoseTimes()
}

// SetDoseWindow changes the suggestion window and refills the dose times
func (d *Draft) SetDoseWindow(i int, start, end string) {
	m := d.medicine(i)
	if m == nil {
		return
	}
	m.DoseTimeRangeStart = start
	m.DoseTimeRangeEnd = end
	m.refillDoseTimes()
}

func (m *Medicine) refillDoseTimes() {
	if m.TimesPerDay < 1 {
		m.DoseTimes = []string{""}
		return
	}
	start := m.DoseTimeRangeStart
	if start == "" {
		start = dosetime.DefaultWindowStart
	}
	end := m.DoseTimeRangeEnd
	if end == "" {
		end = dosetime.DefaultWindowEnd
	}
	m.DoseTimes = dosetime.EvenSplit(int(m.TimesPerDay), start, end)
}

func (d *Draft) AddDoseTime(i int) {
	if m := d.medicine(i); m != nil {
		m.DoseTimes = append(m.DoseTimes, "")
	}
}

// RemoveDoseTime drops dose time j of medicine i, keeping at least one slot.
func (d *Draft) RemoveDoseTime(i, j int) {
	m := d.medicine(i)
	if m == nil || len(m.DoseTimes) <= 1 || j < 0 || j >= len(m.DoseTimes) {
		return
	}
	m.DoseTimes = append(m.DoseTimes[:j], m.DoseTimes[j+1:]...)
}

func (d *Draft) SetDoseTime(i, j int, value string) {
	m := d.medicine(i)
	if m == nil || j < 0 || j >= len(m.DoseTimes) {
		return
	}
	m.DoseTimes[j] = value
}

// Commit turns a valid draft into a Schedule. Dose times are normalized to
// 24-hour form. Callers validate first.
func Commit(d Draft, id string, now time.Time) Schedule {
	c := d.Clone()
	for i := range c.Medicines {
		for j, t := range c.Medicines[i].DoseTimes {
			c.Medicines[i].DoseTimes[j] = dosetime.ParseInput(strings.TrimSpace(t))
		}
	}
	return Schedule{
		ID:          id,
		PatientName: c.PatientName,
		Medicines:   c.Medicines,
		CreatedAt:   now,
	}
}
