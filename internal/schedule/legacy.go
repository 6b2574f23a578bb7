package schedule

import (
	"encoding/json"
	"fmt"
)

// RecordKind tags a stored schedule with the shape it was written in
type RecordKind int

const (
	KindMultiMedicine RecordKind = iota
	// KindLegacySingle is the single-medicine layout written by the mobile
	// client: {patientName, medicineName, doseTime}.
	KindLegacySingle
)

// LegacySingle is the single-medicine record shape
type LegacySingle struct {
	ID           string `json:"id"`
	PatientName  string `json:"patientName"`
	MedicineName string `json:"medicineName"`
	DoseTime     string `json:"doseTime"`
}

// Record is a decoded stored schedule in either shape
type Record struct {
	Kind   RecordKind
	Legacy LegacySingle
	Multi  Schedule
}

// probe carries the fields that tell the two shapes apart
type probe struct {
	Medicines    json.RawMessage `json:"medicines"`
	MedicineName *string         `json:"medicineName"`
}

// DecodeRecord decodes a stored schedule and classifies its shape
func DecodeRecord(data []byte) (Record, error) {
	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return Record{}, fmt.Errorf("decode schedule: %w", err)
	}

	if len(p.Medicines) == 0 && p.MedicineName != nil {
		var legacy LegacySingle
		if err := json.Unmarshal(data, &legacy); err != nil {
			return Record{}, fmt.Errorf("decode legacy schedule: %w", err)
		}
		return Record{Kind: KindLegacySingle, Legacy: legacy}, nil
	}

	var s scheduleJSON
	if err := json.Unmarshal(data, &s); err != nil {
		return Record{}, fmt.Errorf("decode schedule: %w", err)
	}
	return Record{Kind: KindMultiMedicine, Multi: Schedule(s)}, nil
}

// Normalize returns the record in the multi-medicine shape
func (r Record) Normalize() Schedule {
	if r.Kind != KindLegacySingle {
		return r.Multi
	}
	return Schedule{
		ID:          r.Legacy.ID,
		PatientName: r.Legacy.PatientName,
		Medicines: []Medicine{{
			MedicineName: r.Legacy.MedicineName,
			TimesPerDay:  1,
			DoseTimes:    []string{r.Legacy.DoseTime},
		}},
	}
}

// scheduleJSON breaks the UnmarshalJSON recursion
type scheduleJSON Schedule

// UnmarshalJSON accepts both stored shapes and normalizes legacy records
func (s *Schedule) UnmarshalJSON(data []byte) error {
	rec, err := DecodeRecord(data)
	if err != nil {
		return err
	}
	*s = rec.Normalize()
	return nil
}
