package schedule

import (
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gmsas95/meditime/internal/errors"
)

func validDraft() Draft {
	d := NewDraft()
	d.PatientName = "Alice"
	d.Medicines[0].MedicineName = "Aspirin"
	d.SetSchedulingMethod(0, MethodDaysPerWeek)
	d.ToggleDay(0, "Monday")
	d.SetTimesPerDay(0, 2)
	return d
}

// Validation Tests

func TestValidate_ValidDraft(t *testing.T) {
	errs := Validate(validDraft())
	assert.True(t, errs.Valid(), "unexpected errors: %v", errs)
	assert.NoError(t, errs.Err())
}

func TestValidate_EmptyDraft(t *testing.T) {
	errs := Validate(NewDraft())

	assert.Equal(t, MsgPatientRequired, errs["patientName"])
	assert.Equal(t, MsgMedicineRequired, errs["medicines[0].medicineName"])
	assert.Equal(t, MsgMethodRequired, errs["medicines[0].schedulingMethod"])
	assert.Equal(t, MsgTimesPerDay, errs["medicines[0].timesPerDay"])
	assert.NotContains(t, errs, "medicines[0].doseTime0")
}

func TestValidate_NoMedicines(t *testing.T) {
	for _, meds := range [][]Medicine{nil, {}} {
		errs := Validate(Draft{PatientName: "Bob", Medicines: meds})
		assert.Equal(t, MsgMedicinesEmpty, errs["medicines"])
		assert.ErrorIs(t, errs.Err(), apperrors.ErrValidation)
	}
}

func TestValidate_DaysPerWeekRequiresDays(t *testing.T) {
	d := validDraft()
	d.ToggleDay(0, "Monday")

	errs := Validate(d)
	assert.Equal(t, MsgDaysRequired, errs["medicines[0].selectedDays"])

	err := errs.Err()
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrValidation))
	assert.Equal(t, MsgDaysRequired, apperrors.FieldErrors(err)["medicines[0].selectedDays"])
}

func TestValidate_DaysGap(t *testing.T) {
	d := validDraft()
	d.SetSchedulingMethod(0, MethodDaysGap)
	assert.Empty(t, d.Medicines[0].SelectedDays)

	errs := Validate(d)
	assert.Equal(t, MsgGapInvalid, errs["medicines[0].daysGap"])

	d.Medicines[0].DaysGap = 2
	assert.True(t, Validate(d).Valid())
}

func TestValidate_DoseTimeFormat(t *testing.T) {
	d := validDraft()
	d.Medicines[0].DoseTimes = []string{"08:00", "8:00 pm", "25:00", "soon"}

	errs := Validate(d)
	assert.NotContains(t, errs, "medicines[0].doseTime0")
	assert.NotContains(t, errs, "medicines[0].doseTime1")
	assert.Equal(t, MsgDoseTimeFormat, errs["medicines[0].doseTime2"])
	assert.Equal(t, MsgDoseTimeFormat, errs["medicines[0].doseTime3"])
}

func TestValidate_SecondMedicinePaths(t *testing.T) {
	d := validDraft()
	d.AddMedicine()

	errs := Validate(d)
	assert.Contains(t, errs, "medicines[1].medicineName")
	assert.NotContains(t, errs, "medicines[0].medicineName")
}

// Draft Tests

func TestDraft_MedicineListKeepsOne(t *testing.T) {
	d := NewDraft()
	d.RemoveMedicine(0)
	assert.Len(t, d.Medicines, 1)

	d.AddMedicine()
	d.Medicines[1].MedicineName = "Second"
	d.RemoveMedicine(0)
	require.Len(t, d.Medicines, 1)
	assert.Equal(t, "Second", d.Medicines[0].MedicineName)
}

func TestDraft_SetTimesPerDay(t *testing.T) {
	d := NewDraft()

	d.SetTimesPerDay(0, 3)
	assert.Equal(t, []string{"08:00", "15:00", "22:00"}, d.Medicines[0].DoseTimes)

	d.SetTimesPerDay(0, 1)
	assert.Equal(t, []string{"10:00"}, d.Medicines[0].DoseTimes)

	d.SetTimesPerDay(0, 0)
	assert.Equal(t, []string{""}, d.Medicines[0].DoseTimes)
}

func TestDraft_SetDoseWindow(t *testing.T) {
	d := NewDraft()
	d.SetTimesPerDay(0, 3)
	d.SetDoseWindow(0, "06:00", "18:00")

	assert.Equal(t, []string{"06:00", "12:00", "18:00"}, d.Medicines[0].DoseTimes)
	assert.Equal(t, "06:00", d.Medicines[0].DoseTimeRangeStart)
}

func TestDraft_DoseTimeSlots(t *testing.T) {
	d := NewDraft()
	d.RemoveDoseTime(0, 0)
	assert.Len(t, d.Medicines[0].DoseTimes, 1)

	d.AddDoseTime(0)
	d.SetDoseTime(0, 1, "21:00")
	assert.Equal(t, []string{"", "21:00"}, d.Medicines[0].DoseTimes)

	d.RemoveDoseTime(0, 0)
	assert.Equal(t, []string{"21:00"}, d.Medicines[0].DoseTimes)
}

func TestDraft_ToggleDay(t *testing.T) {
	d := NewDraft()
	d.ToggleDay(0, "Monday")
	d.ToggleDay(0, "Friday")
	d.ToggleDay(0, "Monday")
	assert.Equal(t, []string{"Friday"}, d.Medicines[0].SelectedDays)
}

func TestDraft_CloneDoesNotAlias(t *testing.T) {
	d := validDraft()
	c := d.Clone()
	c.SetDoseTime(0, 0, "07:00")
	assert.NotEqual(t, "07:00", d.Medicines[0].DoseTimes[0])
}

func TestCommit_NormalizesDoseTimes(t *testing.T) {
	d := validDraft()
	d.Medicines[0].DoseTimes = []string{"8:30 PM", "07:15"}
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	s := Commit(d, "sched-1", now)

	assert.Equal(t, "sched-1", s.ID)
	assert.Equal(t, "Alice", s.PatientName)
	assert.Equal(t, now, s.CreatedAt)
	assert.Equal(t, []string{"20:30", "07:15"}, s.Medicines[0].DoseTimes)
	assert.Equal(t, "8:30 PM", d.Medicines[0].DoseTimes[0])
}

// Record Tests

func TestDecodeRecord_Legacy(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"id":"1700000000000","patientName":"Bob","medicineName":"Metformin","doseTime":"09:30"}`))
	require.NoError(t, err)
	assert.Equal(t, KindLegacySingle, rec.Kind)

	s := rec.Normalize()
	assert.Equal(t, "1700000000000", s.ID)
	assert.Equal(t, "Bob", s.PatientName)
	require.Len(t, s.Medicines, 1)
	assert.Equal(t, "Metformin", s.Medicines[0].MedicineName)
	assert.Equal(t, Count(1), s.Medicines[0].TimesPerDay)
	assert.Equal(t, []string{"09:30"}, s.Medicines[0].DoseTimes)
}

func TestDecodeRecord_MultiWithStringCounts(t *testing.T) {
	data := `{"id":"1","patientName":"Ann","medicines":[{"medicineName":"A","schedulingMethod":"daysGap","selectedDays":[],"daysGap":"2","timesPerDay":"","doseTimes":["08:00"]}]}`

	rec, err := DecodeRecord([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, KindMultiMedicine, rec.Kind)
	assert.Equal(t, Count(2), rec.Multi.Medicines[0].DaysGap)
	assert.Equal(t, Count(0), rec.Multi.Medicines[0].TimesPerDay)
}

func TestSchedule_UnmarshalJSONNormalizes(t *testing.T) {
	var list []Schedule
	err := json.Unmarshal([]byte(`[{"patientName":"Bob","medicineName":"X","doseTime":"08:00"},{"patientName":"Ann","medicines":[]}]`), &list)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "X", list[0].Medicines[0].MedicineName)
	assert.Equal(t, "Ann", list[1].PatientName)
}

// Calendar Tests

func TestMedicine_ActiveOn(t *testing.T) {
	monday := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	tuesday := monday.AddDate(0, 0, 1)

	weekly := Medicine{SchedulingMethod: MethodDaysPerWeek, SelectedDays: []string{"Monday"}}
	assert.True(t, weekly.ActiveOn(monday))
	assert.False(t, weekly.ActiveOn(tuesday))

	gap := Medicine{SchedulingMethod: MethodDaysGap, DaysGap: 2, StartDate: "2024-03-02"}
	assert.True(t, gap.ActiveOn(monday))
	assert.False(t, gap.ActiveOn(tuesday))

	bounded := Medicine{StartDate: "2024-03-05", EndDate: "2024-03-10"}
	assert.False(t, bounded.ActiveOn(monday))
	assert.True(t, bounded.ActiveOn(tuesday))
	assert.False(t, bounded.ActiveOn(monday.AddDate(0, 0, 7)))

	assert.True(t, Medicine{}.ActiveOn(monday))
}

func TestGroup(t *testing.T) {
	groups := Group([]Schedule{
		{ID: "1", PatientName: "Ann"},
		{ID: "2", PatientName: ""},
		{ID: "3", PatientName: "Ann"},
	})

	require.Len(t, groups, 2)
	assert.Equal(t, "Ann", groups[0].PatientName)
	assert.Len(t, groups[0].Schedules, 2)
	assert.Equal(t, UnnamedPatient, groups[1].PatientName)
}
