package schedule

// PatientGroup is the schedules of one patient in list order
type PatientGroup struct {
	PatientName string     `json:"patientName"`
	Schedules   []Schedule `json:"schedules"`
}

// Group buckets schedules by patient, preserving first-appearance order
func Group(schedules []Schedule) []PatientGroup {
	var groups []PatientGroup
	index := make(map[string]int)

	for _, s := range schedules {
		name := s.DisplayName()
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, PatientGroup{PatientName: name})
		}
		groups[i].Schedules = append(groups[i].Schedules, s)
	}
	return groups
}
