package timewin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minh/wayloop/internal/model"
)

// 2026-02-05 is a Thursday.
func thu(hour, min int) time.Time {
	return time.Date(2026, 2, 5, hour, min, 0, 0, time.UTC)
}

func weekdays(open, close string) model.OpenHours {
	days := []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
	hours := make(model.OpenHours, 0, len(days))
	for _, d := range days {
		hours = append(hours, model.DayHours{
			Day:   d,
			Hours: []model.TimeRange{{Start: open, End: close}},
		})
	}
	return hours
}

func TestParseHHMM(t *testing.T) {
	m, err := ParseHHMM("08:30")
	require.NoError(t, err)
	assert.Equal(t, 510, m)

	_, err = ParseHHMM("25:00")
	assert.Error(t, err)
	_, err = ParseHHMM("8am")
	assert.Error(t, err)
}

func TestIsOpenAt_SimpleInterval(t *testing.T) {
	hours := weekdays("08:00", "17:00")

	assert.True(t, IsOpenAt(hours, thu(12, 0)))
	assert.True(t, IsOpenAt(hours, thu(8, 0)), "boundary start is open")
	assert.True(t, IsOpenAt(hours, thu(17, 0)), "boundary end is open")
	assert.False(t, IsOpenAt(hours, thu(7, 30)))
	assert.False(t, IsOpenAt(hours, thu(17, 1)))
}

func TestIsOpenAt_AbsentHoursAlwaysOpen(t *testing.T) {
	assert.True(t, IsOpenAt(nil, thu(3, 0)))
	assert.True(t, IsOpenAt(model.OpenHours{}, thu(3, 0)))
}

func TestIsOpenAt_MalformedHoursAlwaysOpen(t *testing.T) {
	hours := weekdays("late", "later")
	assert.True(t, IsOpenAt(hours, thu(3, 0)))
}

func TestIsOpenAt_ClosedDay(t *testing.T) {
	hours := model.OpenHours{
		{Day: "Monday", Hours: nil},
		{Day: "Tuesday", Hours: nil},
		{Day: "Wednesday", Hours: nil},
		{Day: "Thursday", Hours: nil},
		{Day: "Friday", Hours: nil},
		{Day: "Saturday", Hours: nil},
		{Day: "Sunday", Hours: nil},
	}
	assert.False(t, IsOpenAt(hours, thu(12, 0)))
}

func TestIsOpenAt_OvernightInterval(t *testing.T) {
	// Bar open Wednesday 20:00 into Thursday 02:00.
	hours := weekdays("20:00", "02:00")

	assert.True(t, IsOpenAt(hours, thu(1, 30)), "early-hours probe hits Wednesday's overnight interval")
	assert.True(t, IsOpenAt(hours, thu(21, 0)), "evening probe hits Thursday's own interval")
	assert.False(t, IsOpenAt(hours, thu(12, 0)))
	assert.False(t, IsOpenAt(hours, thu(2, 30)))
}

func TestIsOpenAt_TwentyFourHours(t *testing.T) {
	hours := weekdays("00:00", "23:59")
	assert.True(t, IsOpenAt(hours, thu(0, 0)))
	assert.True(t, IsOpenAt(hours, thu(23, 59)))
	assert.True(t, IsOpenAt(hours, thu(12, 0)))
}

func TestHasEnoughStay(t *testing.T) {
	hours := weekdays("08:00", "17:00")

	assert.True(t, HasEnoughStay(hours, thu(12, 0), 30))
	assert.False(t, HasEnoughStay(hours, thu(16, 45), 30), "departure after close")
	assert.True(t, HasEnoughStay(nil, thu(16, 45), 30))
}

func TestOverlapsWindow(t *testing.T) {
	hours := weekdays("08:00", "17:00")

	assert.True(t, OverlapsWindow(hours, thu(16, 0), thu(19, 0)))
	assert.False(t, OverlapsWindow(hours, thu(18, 0), thu(20, 0)))
	assert.True(t, OverlapsWindow(nil, thu(18, 0), thu(20, 0)), "absent hours always overlap")
}

func TestOverlapsWindow_OvernightSpill(t *testing.T) {
	hours := weekdays("22:00", "03:00")

	// Thursday 01:00-02:00 is inside Wednesday's 22:00→03:00 interval.
	assert.True(t, OverlapsWindow(hours, thu(1, 0), thu(2, 0)))
	assert.False(t, OverlapsWindow(hours, thu(10, 0), thu(12, 0)))
}

func TestClockWindowOverlap(t *testing.T) {
	// Lunch window 11:30-13:30.
	assert.True(t, ClockWindowOverlap(thu(11, 0), thu(14, 0), "11:30", "13:30"))
	assert.True(t, ClockWindowOverlap(thu(13, 0), thu(18, 0), "11:30", "13:30"))
	assert.False(t, ClockWindowOverlap(thu(14, 0), thu(17, 0), "11:30", "13:30"))

	// A window spanning midnight into the next day still catches the next
	// day's occurrence.
	assert.True(t, ClockWindowOverlap(thu(23, 0), thu(23, 0).Add(14*time.Hour), "11:30", "13:30"))
}

func TestClockWindowOverlap_BoundaryContact(t *testing.T) {
	// Ending exactly when the window opens, or starting exactly when it
	// closes, still counts as overlap.
	assert.True(t, ClockWindowOverlap(thu(9, 0), thu(11, 30), "11:30", "13:30"))
	assert.True(t, ClockWindowOverlap(thu(13, 30), thu(15, 0), "11:30", "13:30"))
	assert.False(t, ClockWindowOverlap(thu(9, 0), thu(11, 29), "11:30", "13:30"))
}

func TestSummaryForDate(t *testing.T) {
	hours := weekdays("08:00", "17:00")

	s := SummaryForDate(hours, thu(7, 30))
	assert.Equal(t, "Thursday", s.Day)
	assert.Equal(t, "2026-02-05", s.Date)
	assert.False(t, s.IsOpen)
	require.Len(t, s.Hours, 1)
	assert.Equal(t, "08:00", s.Hours[0].Start)

	s = SummaryForDate(nil, thu(7, 30))
	assert.True(t, s.IsOpen)
	assert.NotEmpty(t, s.Note)
}
