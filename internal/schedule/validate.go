package schedule

import (
	"fmt"
	"strings"

	"github.com/gmsas95/meditime/internal/dosetime"
	apperrors "github.com/gmsas95/meditime/internal/errors"
)

const (
	MsgPatientRequired  = "Patient name is required"
	MsgMedicineRequired = "Medicine name is required"
	MsgMethodRequired   = "Please select a scheduling method"
	MsgDaysRequired     = "Please select at least one day"
	MsgGapInvalid       = "Please enter a valid gap in days"
	MsgTimesPerDay      = "Times per day must be at least 1"
	MsgDoseTimeFormat   = "Please enter time in HH:MM AM/PM format (e.g., 08:00 AM)"
	MsgMedicinesEmpty   = "At least one medicine is required"
)

// ValidationErrors maps a field path to its message. Paths are
// "patientName" and "medicines[i].<field>", with dose times reported as
// "medicines[i].doseTime<j>".
type ValidationErrors map[string]string

// Valid reports whether no field failed
func (v ValidationErrors) Valid() bool {
	return len(v) == 0
}

// Err returns a VALID_001 error carrying the fields, or nil when valid
func (v ValidationErrors) Err() error {
	if v.Valid() {
		return nil
	}
	return apperrors.Validation(v)
}

// MedicineField builds the error key for a field of medicine i
func MedicineField(i int, field string) string {
	return fmt.Sprintf("medicines[%d].%s", i, field)
}

// Validate checks a draft before it may be committed
func Validate(d Draft) ValidationErrors {
	errs := ValidationErrors{}

	if strings.TrimSpace(d.PatientName) == "" {
		errs["patientName"] = MsgPatientRequired
	}
	if len(d.Medicines) == 0 {
		errs["medicines"] = MsgMedicinesEmpty
	}

	for i, m := range d.Medicines {
		if strings.TrimSpace(m.MedicineName) == "" {
			errs[MedicineField(i, "medicineName")] = MsgMedicineRequired
		}

		switch m.SchedulingMethod {
		case MethodDaysPerWeek:
			if len(m.SelectedDays) == 0 {
				errs[MedicineField(i, "selectedDays")] = MsgDaysRequired
			}
		case MethodDaysGap:
			if m.DaysGap < 1 {
				errs[MedicineField(i, "daysGap")] = MsgGapInvalid
			}
		default:
			errs[MedicineField(i, "schedulingMethod")] = MsgMethodRequired
		}

		if m.TimesPerDay < 1 {
			errs[MedicineField(i, "timesPerDay")] = MsgTimesPerDay
		}

		for j, t := range m.DoseTimes {
			t = strings.TrimSpace(t)
			if t != "" && !dosetime.Is24Hour(t) && !dosetime.Matches12Hour(t) {
				errs[MedicineField(i, fmt.Sprintf("doseTime%d", j))] = MsgDoseTimeFormat
			}
		}
	}

	return errs
}
