package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Weekday names as stored in the teacher_availability collection.
var WeekdayNames = []string{
	"Monday",
	"Tuesday",
	"Wednesday",
	"Thursday",
	"Friday",
	"Saturday",
	"Sunday",
}

// WeekdayName maps a time.Weekday to the stored Monday-first name.
func WeekdayName(d time.Weekday) string {
	// time.Sunday is 0; the stored week starts on Monday.
	idx := (int(d) + 6) % 7
	return WeekdayNames[idx]
}

// WeekdayIndex returns the Monday-first position of a stored weekday name,
// or -1 for an unknown name.
func WeekdayIndex(name string) int {
	for i, n := range WeekdayNames {
		if n == name {
			return i
		}
	}
	return -1
}

// AvailabilityWindow is one tutoring slot of a teacher's weekly schedule.
// Times are stored as clock strings, "15:04" or "15:04:05".
type AvailabilityWindow struct {
	ID        string `json:"id"`
	TeacherID string `json:"teacher_id"`
	DayOfWeek string `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Slot renders the window as "09:30-11:00" for chat and dashboard output.
func (w AvailabilityWindow) Slot() string {
	return fmt.Sprintf("%s-%s", clockLabel(w.StartTime), clockLabel(w.EndTime))
}

// Validate checks the window is well formed: known weekday, parseable
// clocks, start before end.
func (w AvailabilityWindow) Validate() error {
	if WeekdayIndex(w.DayOfWeek) < 0 {
		return fmt.Errorf("unknown weekday %q", w.DayOfWeek)
	}
	start, ok := clockMinutes(w.StartTime)
	if !ok {
		return fmt.Errorf("invalid start time %q", w.StartTime)
	}
	end, ok := clockMinutes(w.EndTime)
	if !ok {
		return fmt.Errorf("invalid end time %q", w.EndTime)
	}
	if start >= end {
		return fmt.Errorf("window %s ends before it starts", w.Slot())
	}
	return nil
}

// Matches reports whether now falls on this window's weekday with the clock
// inside [start, end).
func (w AvailabilityWindow) Matches(now time.Time) bool {
	if w.DayOfWeek != WeekdayName(now.Weekday()) {
		return false
	}
	start, okStart := clockMinutes(w.StartTime)
	end, okEnd := clockMinutes(w.EndTime)
	if !okStart || !okEnd {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	return start <= minute && minute < end
}

// UpcomingWindow is the nearest future window, DaysAhead days from now
// (0 = later today, 7 = same weekday next week).
type UpcomingWindow struct {
	Window    AvailabilityWindow
	DaysAhead int
}

// Availability summarizes a teacher's schedule relative to a moment.
type Availability struct {
	OpenNow bool
	Today   []AvailabilityWindow
	Next    *UpcomingWindow
}

// EvaluateAvailability checks the configured windows against now. Callers
// turn the result into user-facing wording; this only decides.
func EvaluateAvailability(windows []AvailabilityWindow, now time.Time) Availability {
	result := Availability{}
	minute := now.Hour()*60 + now.Minute()
	todayIdx := WeekdayIndex(WeekdayName(now.Weekday()))

	for _, w := range windows {
		if w.DayOfWeek == WeekdayName(now.Weekday()) {
			result.Today = append(result.Today, w)
		}
		if w.Matches(now) {
			result.OpenNow = true
		}
	}
	if result.OpenNow {
		return result
	}

	for _, w := range windows {
		dayIdx := WeekdayIndex(w.DayOfWeek)
		if dayIdx < 0 {
			continue
		}
		start, ok := clockMinutes(w.StartTime)
		if !ok {
			continue
		}
		delta := (dayIdx - todayIdx + 7) % 7
		if delta == 0 && start <= minute {
			delta = 7
		}
		candidate := &UpcomingWindow{Window: w, DaysAhead: delta}
		if result.Next == nil {
			result.Next = candidate
			continue
		}
		bestStart, _ := clockMinutes(result.Next.Window.StartTime)
		if delta < result.Next.DaysAhead ||
			(delta == result.Next.DaysAhead && start < bestStart) {
			result.Next = candidate
		}
	}
	return result
}

// clockMinutes parses "15:04" or "15:04:05" into minutes since midnight.
func clockMinutes(s string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}

func clockLabel(s string) string {
	if minutes, ok := clockMinutes(s); ok {
		return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
	}
	return s
}
