package routing

import (
	"fmt"
	"time"

	"github.com/minh/wayloop/internal/model"
	"github.com/minh/wayloop/internal/timewin"
)

// Validate walks a built route from start, projecting an arrival time for
// each stop and annotating it with the day's opening-hours summary. Stops
// closed at arrival produce a warning and mark the route invalid; the route
// is still returned so the traveler can judge.
func Validate(rt *model.Route, start time.Time) {
	t := start
	closed := 0
	for i := range rt.Stops {
		s := &rt.Stops[i]
		t = t.Add(minutesDur(s.TravelMinutes))
		arrival := t
		s.ArrivalTime = &arrival

		summary := timewin.SummaryForDate(s.OpenHours, arrival)
		s.OpenSummary = &summary

		if !timewin.IsOpenAt(s.OpenHours, arrival) {
			rt.Warnings = append(rt.Warnings, fmt.Sprintf(
				"POI '%s' is closed at %s %s",
				s.Name, arrival.Weekday().String(), arrival.Format("15:04")))
			closed++
		}
		t = t.Add(minutesDur(s.StayMinutes))
	}
	rt.ValidTiming = closed == 0
}

// ValidateAll runs Validate over every route.
func ValidateAll(routes []model.Route, start time.Time) {
	for i := range routes {
		Validate(&routes[i], start)
	}
}
