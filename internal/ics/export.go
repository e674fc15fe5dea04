// Package ics converts calendar events to and from iCalendar (RFC 5545).
package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "workcal/internal/log"
	"workcal/internal/model"
	"workcal/internal/recurrence"
)

const (
	propertyColor        = ical.ComponentProperty("COLOR")
	propertyLastModified = ical.ComponentProperty("LAST-MODIFIED")
	utcLayout            = "20060102T150405Z"
)

// ExportOptions describes the calendar wrapper of an export.
type ExportOptions struct {
	ProductID string
	Name      string
	// Location is the workspace timezone; all-day dates are taken from it.
	Location *time.Location
	// Now stamps DTSTAMP on events that were never modified.
	Now time.Time
}

// Export renders events as a single VCALENDAR.
func Export(events []model.CalendarEvent, opts ExportOptions) string {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	if opts.ProductID == "" {
		opts.ProductID = "-//workcal//EN"
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(opts.ProductID)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	cal.SetXWRTimezone(loc.String())

	for _, ev := range events {
		addEvent(cal, ev, loc, opts.Now)
	}

	appLog.Debug("ics export completed", "event_count", len(events))
	return cal.Serialize()
}

func addEvent(cal *ical.Calendar, ev model.CalendarEvent, loc *time.Location, now time.Time) {
	ve := cal.AddEvent(ev.ID)

	stamp := ev.LastModified
	if stamp.IsZero() {
		stamp = now
	}
	ve.SetDtStampTime(stamp)
	if !ev.LastModified.IsZero() {
		ve.SetProperty(propertyLastModified, ev.LastModified.UTC().Format(utcLayout))
	}

	ve.SetSummary(ev.Title)
	if ev.Description != "" {
		ve.SetDescription(ev.Description)
	}
	if ev.Location != "" {
		ve.SetLocation(ev.Location)
	}
	if ev.Type != "" {
		ve.SetProperty(ical.ComponentPropertyCategories, ev.Type)
	}
	if ev.Color != "" {
		ve.SetProperty(propertyColor, ev.Color)
	}

	if ev.AllDay {
		start := ev.StartTime.In(loc)
		end := ev.EndTime.In(loc)
		// DTEND of a date is exclusive: the day after the last covered one.
		y, m, d := end.Date()
		ve.SetAllDayStartAt(start)
		ve.SetAllDayEndAt(time.Date(y, m, d+1, 0, 0, 0, 0, loc))
	} else {
		ve.SetStartAt(ev.StartTime)
		ve.SetEndAt(ev.EndTime)
	}

	for _, a := range ev.Attendees {
		if a.Email == "" {
			continue
		}
		props := []ical.PropertyParameter{partStat(a.Status)}
		if a.Name != "" {
			props = append(props, ical.WithCN(a.Name))
		}
		ve.AddAttendee(a.Email, props...)
		if a.IsOrganizer {
			var orgProps []ical.PropertyParameter
			if a.Name != "" {
				orgProps = append(orgProps, ical.WithCN(a.Name))
			}
			ve.SetOrganizer("mailto:"+a.Email, orgProps...)
		}
	}

	if ev.RecurrencePattern != nil {
		rule, err := recurrence.RuleString(*ev.RecurrencePattern)
		if err != nil {
			appLog.Error("ics export: skipping invalid recurrence", err, "id", ev.ID)
		} else {
			ve.SetProperty(ical.ComponentPropertyRrule, rule)
		}
	}
}

func partStat(s model.AttendeeStatus) ical.ParticipationStatus {
	switch s {
	case model.StatusAccepted:
		return ical.ParticipationStatusAccepted
	case model.StatusDeclined:
		return ical.ParticipationStatusDeclined
	case model.StatusTentative:
		return ical.ParticipationStatusTentative
	default:
		return ical.ParticipationStatusNeedsAction
	}
}
