// Package timewin evaluates POI opening-hours records against instants and
// windows of wall-clock time.
//
// Policy: a POI whose opening-hours record is absent or malformed is treated
// as always open. An interval whose end is not after its start crosses
// midnight into the following day; probes in the early hours therefore also
// consult the previous day's intervals.
package timewin

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/minh/wayloop/internal/model"
)

const minutesPerDay = 24 * 60

// ─── Parsing ────────────────────────────────────────────────

// ParseHHMM converts an "HH:MM" string to minutes after midnight.
func ParseHHMM(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("malformed hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("malformed minute in %q", s)
	}
	return h*60 + m, nil
}

func minuteOf(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func dayName(t time.Time) string {
	return t.Weekday().String()
}

func hoursForDay(hours model.OpenHours, day string) ([]model.TimeRange, bool) {
	for _, dh := range hours {
		if strings.EqualFold(dh.Day, day) {
			return dh.Hours, true
		}
	}
	return nil, false
}

// ─── Point queries ──────────────────────────────────────────

// IsOpenAt reports whether the POI is open at instant t. An absent or
// malformed record yields true.
func IsOpenAt(hours model.OpenHours, t time.Time) bool {
	if len(hours) == 0 {
		return true
	}
	probe := minuteOf(t)

	today, todayKnown := hoursForDay(hours, dayName(t))
	if !todayKnown {
		// Record present but missing this day entirely: malformed, open.
		return true
	}
	for _, r := range today {
		start, err1 := ParseHHMM(r.Start)
		end, err2 := ParseHHMM(r.End)
		if err1 != nil || err2 != nil {
			return true
		}
		if end > start {
			if probe >= start && probe <= end {
				return true
			}
		} else if probe >= start {
			// Overnight interval, still on the opening day.
			return true
		}
	}

	// Overnight spill from the previous day into this morning.
	yesterday, ok := hoursForDay(hours, dayName(t.AddDate(0, 0, -1)))
	if ok {
		for _, r := range yesterday {
			start, err1 := ParseHHMM(r.Start)
			end, err2 := ParseHHMM(r.End)
			if err1 != nil || err2 != nil {
				return true
			}
			if end <= start && probe <= end {
				return true
			}
		}
	}
	return false
}

// HasEnoughStay reports whether the POI is open for the whole visit
// [arrival, arrival+stay]. Stricter than IsOpenAt: arriving five minutes
// before closing does not leave room for the stay.
func HasEnoughStay(hours model.OpenHours, arrival time.Time, stayMinutes float64) bool {
	if len(hours) == 0 {
		return true
	}
	departure := arrival.Add(time.Duration(stayMinutes * float64(time.Minute)))
	return IsOpenAt(hours, arrival) && IsOpenAt(hours, departure)
}

// ─── Window queries ─────────────────────────────────────────

// OverlapsWindow reports whether any open interval intersects [a, b].
// Requires a <= b. An absent or malformed record yields true.
func OverlapsWindow(hours model.OpenHours, a, b time.Time) bool {
	if len(hours) == 0 {
		return true
	}
	if b.Before(a) {
		a, b = b, a
	}

	// Walk each calendar day the window touches, plus the day before a for
	// overnight intervals that start the previous evening.
	day := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, a.Location()).AddDate(0, 0, -1)
	last := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, b.Location())

	for !day.After(last) {
		ranges, known := hoursForDay(hours, dayName(day))
		if !known {
			return true
		}
		for _, r := range ranges {
			start, err1 := ParseHHMM(r.Start)
			end, err2 := ParseHHMM(r.End)
			if err1 != nil || err2 != nil {
				return true
			}
			open := day.Add(time.Duration(start) * time.Minute)
			closeMin := end
			if end <= start {
				closeMin = end + minutesPerDay
			}
			close := day.Add(time.Duration(closeMin) * time.Minute)
			if open.Before(b) && close.After(a) {
				return true
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return false
}

// ClockWindowOverlap reports whether [a, b] intersects the recurring daily
// clock window [startHM, endHM] (e.g. a lunch window "11:30"–"13:30") on any
// day the window touches. Both intervals are closed: touching a boundary
// instant counts as overlap.
func ClockWindowOverlap(a, b time.Time, startHM, endHM string) bool {
	start, err1 := ParseHHMM(startHM)
	end, err2 := ParseHHMM(endHM)
	if err1 != nil || err2 != nil {
		return false
	}
	if b.Before(a) {
		a, b = b, a
	}

	day := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, a.Location())
	last := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, b.Location())
	for !day.After(last) {
		open := day.Add(time.Duration(start) * time.Minute)
		close := day.Add(time.Duration(end) * time.Minute)
		if !open.After(b) && !close.Before(a) {
			return true
		}
		day = day.AddDate(0, 0, 1)
	}
	return false
}

// ─── Summaries ──────────────────────────────────────────────

// SummaryForDate annotates a date with that day's schedule, for response
// payloads alongside projected arrival times.
func SummaryForDate(hours model.OpenHours, date time.Time) model.DaySummary {
	s := model.DaySummary{
		Day:  dayName(date),
		Date: date.Format("2006-01-02"),
	}
	if len(hours) == 0 {
		s.IsOpen = true
		s.Note = "opening hours unavailable, assumed open"
		return s
	}
	ranges, known := hoursForDay(hours, s.Day)
	if !known {
		s.IsOpen = true
		s.Note = "opening hours unavailable, assumed open"
		return s
	}
	s.Hours = ranges
	s.IsOpen = IsOpenAt(hours, date)
	if len(ranges) == 0 {
		s.Note = "closed all day"
	}
	return s
}
