// Package timerange computes visible calendar windows and navigation steps.
//
// All arithmetic is done on local wall-clock fields in a single location
// (the workspace timezone). Days are built with time.Date so that clock
// shifts never move a boundary off midnight.
package timerange

import (
	"time"

	"workcal/internal/model"
)

// DayKeyLayout is the format of a day key: a calendar date, no time.
const DayKeyLayout = "2006-01-02"

// AgendaDays is the width of the agenda window and its navigation step.
const AgendaDays = 30

const endOfDayNanos = 999 * int(time.Millisecond)

// Compute returns the inclusive window for view anchored at anchor. An
// unrecognized view falls back to the day window.
func Compute(anchor time.Time, view model.ViewMode, loc *time.Location) model.TimeRange {
	if loc == nil {
		loc = time.Local
	}
	a := anchor.In(loc)
	y, m, d := a.Date()

	switch view {
	case model.ViewWeek:
		// Week start is fixed to Sunday.
		offset := int(a.Weekday())
		return model.TimeRange{
			Start: startOfDay(y, m, d-offset, loc),
			End:   endOfDay(y, m, d-offset+6, loc),
		}
	case model.ViewMonth:
		// Day 0 of the following month is the last day of this one.
		return model.TimeRange{
			Start: startOfDay(y, m, 1, loc),
			End:   endOfDay(y, m+1, 0, loc),
		}
	case model.ViewAgenda:
		return model.TimeRange{
			Start: startOfDay(y, m, d, loc),
			End:   endOfDay(y, m, d+AgendaDays, loc),
		}
	default:
		return model.TimeRange{
			Start: startOfDay(y, m, d, loc),
			End:   endOfDay(y, m, d, loc),
		}
	}
}

// Shift moves anchor one navigation step in dir for view. Month steps
// are calendar-aware and clamp the day-of-month to the target month's
// length (Jan 31 + 1 month = Feb 28/29). The time of day is kept.
func Shift(anchor time.Time, view model.ViewMode, dir model.Direction, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	sign := 1
	if dir == model.Previous {
		sign = -1
	}

	a := anchor.In(loc)
	y, m, d := a.Date()
	hh, mm, ss := a.Clock()
	ns := a.Nanosecond()

	switch view {
	case model.ViewWeek:
		return time.Date(y, m, d+7*sign, hh, mm, ss, ns, loc)
	case model.ViewMonth:
		target := m + time.Month(sign)
		if last := DaysIn(y, target, loc); d > last {
			d = last
		}
		return time.Date(y, target, d, hh, mm, ss, ns, loc)
	case model.ViewAgenda:
		return time.Date(y, m, d+AgendaDays*sign, hh, mm, ss, ns, loc)
	default:
		return time.Date(y, m, d+sign, hh, mm, ss, ns, loc)
	}
}

// DaysIn returns the number of days in month m of year y. Months outside
// 1..12 are normalized the way time.Date normalizes them.
func DaysIn(y int, m time.Month, loc *time.Location) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
}

// DayKey returns the calendar date of t in loc, formatted as YYYY-MM-DD.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DayKeyLayout)
}

// StartOfDay returns midnight of t's calendar date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return startOfDay(y, m, d, loc)
}

func startOfDay(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func endOfDay(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, 23, 59, 59, endOfDayNanos, loc)
}
