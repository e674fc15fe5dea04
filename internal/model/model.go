// Package model holds the calendar domain types shared by every other
// package: events, attendees, recurrence patterns, ranges, filters and
// the inputs and patches that mutate events.
package model

import "time"

// ViewMode selects the width of the visible window and the navigation step.
type ViewMode string

const (
	ViewDay    ViewMode = "day"
	ViewWeek   ViewMode = "week"
	ViewMonth  ViewMode = "month"
	ViewAgenda ViewMode = "agenda"
)

// Valid reports whether v is one of the four known view modes.
func (v ViewMode) Valid() bool {
	switch v {
	case ViewDay, ViewWeek, ViewMonth, ViewAgenda:
		return true
	}
	return false
}

// Direction is the navigation direction relative to the current anchor.
type Direction string

const (
	Next     Direction = "next"
	Previous Direction = "previous"
)

// Action names the kind of mutation that happened to an event. It is used
// both for persistence notifications and for external sync updates.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// AttendeeStatus is an attendee's RSVP state.
type AttendeeStatus string

const (
	StatusAccepted  AttendeeStatus = "accepted"
	StatusDeclined  AttendeeStatus = "declined"
	StatusTentative AttendeeStatus = "tentative"
	StatusPending   AttendeeStatus = "pending"
)

// EventAttendee is a participant of a single event.
type EventAttendee struct {
	ID          string         `json:"id" validate:"required"`
	Email       string         `json:"email"`
	Name        string         `json:"name"`
	Status      AttendeeStatus `json:"status" validate:"oneof=accepted declined tentative pending"`
	IsOrganizer bool           `json:"is_organizer,omitempty"`
}

// Frequency of a recurrence pattern.
type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
)

// RecurrencePattern is stored with an event but never expanded into
// instances by this module.
type RecurrencePattern struct {
	Type     Frequency `json:"type"`
	Interval int       `json:"interval"`
	// DaysOfWeek uses 0 = Sunday .. 6 = Saturday.
	DaysOfWeek []int      `json:"days_of_week,omitempty"`
	DayOfMonth int        `json:"day_of_month,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	Count      int        `json:"count,omitempty"`
}

// Clone returns a deep copy of p. A nil pattern clones to nil.
func (p *RecurrencePattern) Clone() *RecurrencePattern {
	if p == nil {
		return nil
	}
	out := *p
	if p.DaysOfWeek != nil {
		out.DaysOfWeek = append([]int(nil), p.DaysOfWeek...)
	}
	if p.EndDate != nil {
		t := *p.EndDate
		out.EndDate = &t
	}
	return &out
}

// CalendarEvent is a single scheduled event owned by a workspace calendar.
type CalendarEvent struct {
	ID          string `json:"id"`
	Title       string `json:"title" validate:"notblank"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`

	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required,gtefield=StartTime"`
	AllDay    bool      `json:"all_day"`

	Attendees []EventAttendee `json:"attendees" validate:"unique=ID,dive"`

	WorkspaceID string `json:"workspace_id"`
	CreatedBy   string `json:"created_by"`
	Color       string `json:"color,omitempty"`

	IsRecurring       bool               `json:"is_recurring"`
	RecurrencePattern *RecurrencePattern `json:"recurrence_pattern,omitempty"`

	LastModified   time.Time `json:"last_modified"`
	LastModifiedBy string    `json:"last_modified_by"`
}

// Clone returns a deep copy of e so that callers never share slices or
// pointers with the owning store.
func (e CalendarEvent) Clone() CalendarEvent {
	out := e
	if e.Attendees != nil {
		out.Attendees = append([]EventAttendee(nil), e.Attendees...)
	}
	out.RecurrencePattern = e.RecurrencePattern.Clone()
	return out
}

// Duration is EndTime - StartTime.
func (e CalendarEvent) Duration() time.Duration {
	return e.EndTime.Sub(e.StartTime)
}

// TimeRange is an inclusive [Start, End] window.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies within the inclusive range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Overlaps reports whether [start, end] touches the range at all.
func (r TimeRange) Overlaps(start, end time.Time) bool {
	if end.Before(r.Start) {
		return false
	}
	if start.After(r.End) {
		return false
	}
	return true
}

// FilterCriteria restricts which events are visible. Empty sets impose no
// constraint.
type FilterCriteria struct {
	AttendeeIDs  []string `json:"attendee_ids"`
	EventTypes   []string `json:"event_types"`
	HideDeclined bool     `json:"hide_declined"`
}

// Clone returns a deep copy of c.
func (c FilterCriteria) Clone() FilterCriteria {
	out := c
	if c.AttendeeIDs != nil {
		out.AttendeeIDs = append([]string(nil), c.AttendeeIDs...)
	}
	if c.EventTypes != nil {
		out.EventTypes = append([]string(nil), c.EventTypes...)
	}
	return out
}

// AttendeeInput describes an attendee on creation; id and status are
// assigned by the calendar.
type AttendeeInput struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	IsOrganizer bool   `json:"is_organizer,omitempty"`
}

// CreateEventInput carries the caller-supplied fields of a new event.
type CreateEventInput struct {
	Title             string             `json:"title"`
	Type              string             `json:"type"`
	Description       string             `json:"description,omitempty"`
	Location          string             `json:"location,omitempty"`
	StartTime         time.Time          `json:"start_time"`
	EndTime           time.Time          `json:"end_time"`
	AllDay            bool               `json:"all_day"`
	Attendees         []AttendeeInput    `json:"attendees,omitempty"`
	Color             string             `json:"color,omitempty"`
	IsRecurring       bool               `json:"is_recurring"`
	RecurrencePattern *RecurrencePattern `json:"recurrence_pattern,omitempty"`
}

// EventPatch is a typed partial update. Nil fields keep their prior value.
// ID, WorkspaceID and CreatedBy are immutable after creation and have no
// patch field.
type EventPatch struct {
	Title             *string            `json:"title,omitempty"`
	Type              *string            `json:"type,omitempty"`
	Description       *string            `json:"description,omitempty"`
	Location          *string            `json:"location,omitempty"`
	StartTime         *time.Time         `json:"start_time,omitempty"`
	EndTime           *time.Time         `json:"end_time,omitempty"`
	AllDay            *bool              `json:"all_day,omitempty"`
	Attendees         *[]EventAttendee   `json:"attendees,omitempty"`
	Color             *string            `json:"color,omitempty"`
	IsRecurring       *bool              `json:"is_recurring,omitempty"`
	RecurrencePattern *RecurrencePattern `json:"recurrence_pattern,omitempty"`
	// ClearRecurrence removes a stored pattern; it wins over RecurrencePattern.
	ClearRecurrence bool `json:"clear_recurrence,omitempty"`
}

// Apply merges the non-nil fields of p into a copy of e and returns it.
func (p EventPatch) Apply(e CalendarEvent) CalendarEvent {
	out := e.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Type != nil {
		out.Type = *p.Type
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Location != nil {
		out.Location = *p.Location
	}
	if p.StartTime != nil {
		out.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		out.EndTime = *p.EndTime
	}
	if p.AllDay != nil {
		out.AllDay = *p.AllDay
	}
	if p.Attendees != nil {
		out.Attendees = append([]EventAttendee{}, (*p.Attendees)...)
	}
	if p.Color != nil {
		out.Color = *p.Color
	}
	if p.IsRecurring != nil {
		out.IsRecurring = *p.IsRecurring
	}
	if p.RecurrencePattern != nil {
		out.RecurrencePattern = p.RecurrencePattern.Clone()
	}
	if p.ClearRecurrence {
		out.RecurrencePattern = nil
	}
	return out
}

// EventUpdate pairs a patch with the id it targets, for bulk updates.
type EventUpdate struct {
	ID    string     `json:"id"`
	Patch EventPatch `json:"patch"`
}
