package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "workcal/internal/log"
	"workcal/internal/model"
	"workcal/internal/recurrence"
)

const dateLayout = "20060102"

// Parse reads an iCalendar payload into calendar events, with times in
// loc. VEVENTs that cannot be read are logged and skipped.
//
//   - UID becomes the event id; attendees are keyed by email.
//   - All-day events (VALUE=DATE or no time part) get an exclusive DTEND
//     turned into the last covered day at 23:59:59.999.
//   - RRULE is kept as a stored pattern; it is not expanded.
//   - The first CATEGORIES value becomes the event type.
func Parse(body []byte, loc *time.Location) ([]model.CalendarEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err)
		return nil, err
	}

	events := make([]model.CalendarEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp, loc)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Error("ics vevent parse failed", perr)
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (model.CalendarEvent, error) {
	var out model.CalendarEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.ID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil {
		out.Type = strings.TrimSpace(strings.Split(p.Value, ",")[0])
	}
	if p := ve.GetProperty(propertyColor); p != nil {
		out.Color = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	out.AllDay = isDateValue(dtStart)

	if out.AllDay {
		start, err := time.ParseInLocation(dateLayout, strings.TrimSpace(dtStart.Value), loc)
		if err != nil {
			return out, err
		}
		out.StartTime = start
		// DTEND is exclusive for dates; default is a single day.
		endExclusive := start.AddDate(0, 0, 1)
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(dtEnd.Value), loc); err == nil && t.After(start) {
				endExclusive = t
			}
		}
		out.EndTime = endExclusive.Add(-time.Millisecond)
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return out, err
		}
		out.StartTime = start.In(loc)
		end, err := ve.GetEndAt()
		if err != nil || end.Before(start) {
			end = start
		}
		out.EndTime = end.In(loc)
	}

	out.Attendees = parseAttendees(ve)

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.IsRecurring = true
		p, err := recurrence.Parse(rruleProp.Value)
		if err != nil {
			appLog.Error("ics rrule not representable; keeping event without pattern", err, "uid", out.ID, "rrule", rruleProp.Value)
		} else {
			out.RecurrencePattern = p
		}
	}

	return out, nil
}

func isDateValue(p *ical.IANAProperty) bool {
	if params := p.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(p.Value, "T")
}

func parseAttendees(ve *ical.VEvent) []model.EventAttendee {
	organizer := ""
	if p := ve.GetProperty(ical.ComponentPropertyOrganizer); p != nil {
		organizer = strings.ToLower(stripMailto(p.Value))
	}

	seen := make(map[string]struct{})
	out := make([]model.EventAttendee, 0)
	for _, p := range ve.GetProperties(ical.ComponentPropertyAttendee) {
		email := stripMailto(p.Value)
		if email == "" {
			continue
		}
		key := strings.ToLower(email)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		a := model.EventAttendee{
			ID:          key,
			Email:       email,
			Status:      model.StatusPending,
			IsOrganizer: key == organizer,
		}
		if cn := firstParam(p, "CN"); cn != "" {
			a.Name = cn
		}
		switch strings.ToUpper(firstParam(p, "PARTSTAT")) {
		case string(ical.ParticipationStatusAccepted):
			a.Status = model.StatusAccepted
		case string(ical.ParticipationStatusDeclined):
			a.Status = model.StatusDeclined
		case string(ical.ParticipationStatusTentative):
			a.Status = model.StatusTentative
		}
		out = append(out, a)
	}
	return out
}

func firstParam(p *ical.IANAProperty, key string) string {
	if vs, ok := p.ICalParameters[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func stripMailto(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 7 && strings.EqualFold(v[:7], "mailto:") {
		return v[7:]
	}
	return v
}
