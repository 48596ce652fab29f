package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday 2025-03-12, 10:30 local time.
var wednesdayMorning = time.Date(2025, 3, 12, 10, 30, 0, 0, time.Local)

func TestAvailabilityWindow_Matches(t *testing.T) {
	window := AvailabilityWindow{DayOfWeek: "Wednesday", StartTime: "10:00", EndTime: "12:00"}

	assert.True(t, window.Matches(wednesdayMorning))
	assert.True(t, window.Matches(time.Date(2025, 3, 12, 10, 0, 0, 0, time.Local)), "start is inclusive")
	assert.False(t, window.Matches(time.Date(2025, 3, 12, 12, 0, 0, 0, time.Local)), "end is exclusive")
	assert.False(t, window.Matches(time.Date(2025, 3, 13, 10, 30, 0, 0, time.Local)), "wrong weekday")
}

func TestAvailabilityWindow_MatchesSecondsFormat(t *testing.T) {
	window := AvailabilityWindow{DayOfWeek: "Wednesday", StartTime: "09:30:00", EndTime: "11:00:00"}

	assert.True(t, window.Matches(wednesdayMorning))
	assert.Equal(t, "09:30-11:00", window.Slot())
}

func TestEvaluateAvailability_OpenNow(t *testing.T) {
	windows := []AvailabilityWindow{
		{DayOfWeek: "Monday", StartTime: "09:00", EndTime: "10:00"},
		{DayOfWeek: "Wednesday", StartTime: "10:00", EndTime: "12:00"},
	}

	result := EvaluateAvailability(windows, wednesdayMorning)
	assert.True(t, result.OpenNow)
	require.Len(t, result.Today, 1)
	assert.Equal(t, "Wednesday", result.Today[0].DayOfWeek)
}

func TestEvaluateAvailability_LaterToday(t *testing.T) {
	windows := []AvailabilityWindow{
		{DayOfWeek: "Wednesday", StartTime: "16:00", EndTime: "18:00"},
	}

	result := EvaluateAvailability(windows, wednesdayMorning)
	assert.False(t, result.OpenNow)
	require.NotNil(t, result.Next)
	assert.Equal(t, 0, result.Next.DaysAhead)
	assert.Equal(t, "16:00-18:00", result.Next.Window.Slot())
}

func TestEvaluateAvailability_NextWindowAcrossWeek(t *testing.T) {
	windows := []AvailabilityWindow{
		// Already over today: pushed to next week.
		{DayOfWeek: "Wednesday", StartTime: "08:00", EndTime: "09:00"},
		{DayOfWeek: "Monday", StartTime: "09:00", EndTime: "10:00"},
	}

	result := EvaluateAvailability(windows, wednesdayMorning)
	assert.False(t, result.OpenNow)
	require.NotNil(t, result.Next)
	assert.Equal(t, "Monday", result.Next.Window.DayOfWeek)
	assert.Equal(t, 5, result.Next.DaysAhead)
}

func TestEvaluateAvailability_SameDayPrefersEarlierStart(t *testing.T) {
	windows := []AvailabilityWindow{
		{DayOfWeek: "Thursday", StartTime: "15:00", EndTime: "16:00"},
		{DayOfWeek: "Thursday", StartTime: "09:00", EndTime: "10:00"},
	}

	result := EvaluateAvailability(windows, wednesdayMorning)
	require.NotNil(t, result.Next)
	assert.Equal(t, 1, result.Next.DaysAhead)
	assert.Equal(t, "09:00", result.Next.Window.StartTime)
}

func TestEvaluateAvailability_NoWindows(t *testing.T) {
	result := EvaluateAvailability(nil, wednesdayMorning)
	assert.False(t, result.OpenNow)
	assert.Empty(t, result.Today)
	assert.Nil(t, result.Next)
}

func TestNormalizeMXID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ana", "@ana:ugr.es"},
		{"@ana", "@ana:ugr.es"},
		{"@ana:", "@ana:ugr.es"},
		{"ana:otro.org", "@ana:otro.org"},
		{"@ana:ugr.es", "@ana:ugr.es"},
		{"@ana:otro.org", "@ana:otro.org"},
		{"  ana  ", "@ana:ugr.es"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeMXID(tc.in, "ugr.es"), "input %q", tc.in)
	}
}

func TestLocalpart(t *testing.T) {
	assert.Equal(t, "ana", Localpart("@ana:ugr.es"))
	assert.Equal(t, "ana", Localpart("ana"))
	assert.Equal(t, "ana", Localpart("@ana"))
}

func TestQuestion_OpenAt(t *testing.T) {
	start := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	q := Question{QType: QuestionTypeMultipleChoice, StartAt: start, EndAt: end,
		Options: map[string]string{"a": "Verdadero", "b": "Falso"}}

	assert.False(t, q.OpenAt(start.Add(-time.Minute)))
	assert.True(t, q.OpenAt(start))
	assert.True(t, q.OpenAt(start.Add(time.Hour)))
	assert.False(t, q.OpenAt(end))

	assert.True(t, q.HasOption("a"))
	assert.False(t, q.HasOption("z"))

	open := Question{StartAt: start}
	assert.True(t, open.OpenAt(start.Add(240*time.Hour)), "zero EndAt never closes")
}

func TestWeekdayName(t *testing.T) {
	assert.Equal(t, "Monday", WeekdayName(time.Monday))
	assert.Equal(t, "Sunday", WeekdayName(time.Sunday))
	assert.Equal(t, "Wednesday", WeekdayName(wednesdayMorning.Weekday()))
}
