// Package filter narrows an event set by attendee, type and RSVP state.
package filter

import "workcal/internal/model"

// Apply returns the events matching c, in input order.
func Apply(events []model.CalendarEvent, c model.FilterCriteria) []model.CalendarEvent {
	attendees := toSet(c.AttendeeIDs)
	types := toSet(c.EventTypes)

	out := make([]model.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if match(ev, attendees, types, c.HideDeclined) {
			out = append(out, ev.Clone())
		}
	}
	return out
}

// Match reports whether a single event passes c.
func Match(ev model.CalendarEvent, c model.FilterCriteria) bool {
	return match(ev, toSet(c.AttendeeIDs), toSet(c.EventTypes), c.HideDeclined)
}

func match(ev model.CalendarEvent, attendees, types map[string]struct{}, hideDeclined bool) bool {
	if len(attendees) > 0 && !anyAttendee(ev, attendees) {
		return false
	}
	// Any declined attendee hides the event, not only the viewer's RSVP.
	if hideDeclined && anyDeclined(ev) {
		return false
	}
	if len(types) > 0 {
		if _, ok := types[ev.Type]; !ok {
			return false
		}
	}
	return true
}

func anyAttendee(ev model.CalendarEvent, ids map[string]struct{}) bool {
	for _, a := range ev.Attendees {
		if _, ok := ids[a.ID]; ok {
			return true
		}
	}
	return false
}

func anyDeclined(ev model.CalendarEvent) bool {
	for _, a := range ev.Attendees {
		if a.Status == model.StatusDeclined {
			return true
		}
	}
	return false
}

func toSet(vals []string) map[string]struct{} {
	if len(vals) == 0 {
		return nil
	}
	s := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		s[v] = struct{}{}
	}
	return s
}
