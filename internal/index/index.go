// Package index buckets calendar events by the local days they touch.
package index

import (
	"sort"
	"time"

	"workcal/internal/model"
	"workcal/internal/timerange"
)

// Days maps a day key (YYYY-MM-DD) to the events touching that day, in
// input order.
type Days map[string][]model.CalendarEvent

// ByDay indexes events by day key in loc.
//
// A timed event whose start and end fall on the same local date lands in
// that one bucket. All-day events, and events whose end date differs from
// their start date, land in every bucket from the start date through the
// end date inclusive. Each event appears at most once per bucket; ordering
// within a bucket follows the input.
func ByDay(events []model.CalendarEvent, loc *time.Location) Days {
	if loc == nil {
		loc = time.Local
	}
	out := make(Days)
	seen := make(map[string]map[string]struct{})

	add := func(key string, ev model.CalendarEvent) {
		ids, ok := seen[key]
		if !ok {
			ids = make(map[string]struct{})
			seen[key] = ids
		}
		if _, dup := ids[ev.ID]; dup {
			return
		}
		ids[ev.ID] = struct{}{}
		out[key] = append(out[key], ev.Clone())
	}

	for _, ev := range events {
		startKey := timerange.DayKey(ev.StartTime, loc)
		endKey := timerange.DayKey(ev.EndTime, loc)

		if !ev.AllDay && startKey == endKey {
			add(startKey, ev)
			continue
		}

		for _, key := range spanKeys(ev.StartTime, ev.EndTime, loc) {
			add(key, ev)
		}
	}
	return out
}

// spanKeys lists every day key from start's date through end's date. An
// end before start yields only start's key.
func spanKeys(start, end time.Time, loc *time.Location) []string {
	day := timerange.StartOfDay(start, loc)
	last := timerange.StartOfDay(end, loc)
	if last.Before(day) {
		last = day
	}

	keys := make([]string, 0, 1)
	for !day.After(last) {
		keys = append(keys, day.Format(timerange.DayKeyLayout))
		y, m, d := day.Date()
		day = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	}
	return keys
}

// Keys returns the day keys of d in ascending order.
func (d Days) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Count returns the number of (day, event) placements in d.
func (d Days) Count() int {
	n := 0
	for _, evs := range d {
		n += len(evs)
	}
	return n
}
