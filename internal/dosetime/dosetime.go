// Package dosetime converts dose-time strings between the 24-hour form used
// for storage and the 12-hour form people type and read.
//
// Every function is total: input that does not match the expected shape is
// handed back unchanged instead of producing an error.
package dosetime

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	DefaultWindowStart = "08:00"
	DefaultWindowEnd   = "22:00"

	// SingleDose is the suggestion used when only one dose per day is wanted.
	SingleDose = "10:00"
)

var (
	pattern24 = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)
	pattern12 = regexp.MustCompile(`(?i)^(\d{1,2}):(\d{2})\s*(AM|PM)$`)
)

// Is24Hour reports whether s is a valid "H:MM" or "HH:MM" 24-hour time.
func Is24Hour(s string) bool {
	return pattern24.MatchString(s)
}

// Matches12Hour reports whether s has the "hh:mm AM" shape. It does not check
// that the hour is in range; see IsValid12Hour.
func Matches12Hour(s string) bool {
	return pattern12.MatchString(s)
}

// To12Hour renders a 24-hour time as zero-padded "hh:mm AM".
func To12Hour(time24 string) string {
	h, m, ok := Parse24(time24)
	if !ok {
		return time24
	}

	period := "AM"
	if h >= 12 {
		period = "PM"
	}
	display := h
	switch {
	case h == 0:
		display = 12
	case h > 12:
		display = h - 12
	}
	return fmt.Sprintf("%02d:%02d %s", display, m, period)
}

// To24Hour converts "h:mm AM" / "hh:mm pm" to "HH:MM".
func To24Hour(time12 string) string {
	match := pattern12.FindStringSubmatch(time12)
	if match == nil {
		return time12
	}

	h, _ := strconv.Atoi(match[1])
	m, _ := strconv.Atoi(match[2])
	period := strings.ToUpper(match[3])

	if period == "PM" && h != 12 {
		h += 12
	} else if period == "AM" && h == 12 {
		h = 0
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

// IsValid12Hour accepts the empty string and "hh:mm AM" with hour 1-12.
func IsValid12Hour(s string) bool {
	if s == "" {
		return true
	}
	match := pattern12.FindStringSubmatch(s)
	if match == nil {
		return false
	}
	h, _ := strconv.Atoi(match[1])
	m, _ := strconv.Atoi(match[2])
	return h >= 1 && h <= 12 && m >= 0 && m <= 59
}

// ParseInput normalizes user input for storage: 24-hour input passes through,
// valid 12-hour input is converted, anything else is returned as is.
func ParseInput(s string) string {
	if s == "" || Is24Hour(s) {
		return s
	}
	if IsValid12Hour(s) {
		return To24Hour(s)
	}
	return s
}

// Parse24 splits a valid 24-hour time into hour and minute.
func Parse24(s string) (hour, minute int, ok bool) {
	if !Is24Hour(s) {
		return 0, 0, false
	}
	hh, mm, _ := strings.Cut(s, ":")
	hour, _ = strconv.Atoi(hh)
	minute, _ = strconv.Atoi(mm)
	return hour, minute, true
}

// EvenSplit suggests count dose times spread evenly from start to end
// inclusive. A single dose is always SingleDose. Unparseable hour or minute
// components of the window fall back to the 08:00-22:00 defaults.
func EvenSplit(count int, start, end string) []string {
	if count < 1 {
		return nil
	}
	if count == 1 {
		return []string{SingleDose}
	}

	from := windowMinutes(start, 8)
	to := windowMinutes(end, 22)
	interval := float64(to-from) / float64(count-1)

	times := make([]string, 0, count)
	for i := 0; i < count; i++ {
		minutes := int(math.Floor(float64(from) + float64(i)*interval + 0.5))
		times = append(times, fmt.Sprintf("%02d:%02d", minutes/60, minutes%60))
	}
	return times
}

func windowMinutes(s string, fallbackHour int) int {
	hh, mm, _ := strings.Cut(s, ":")
	h, err := strconv.Atoi(hh)
	if err != nil {
		h = fallbackHour
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		m = 0
	}
	return h*60 + m
}
