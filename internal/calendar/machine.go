// Package calendar holds the stateful calendar store: the current view,
// anchor date, event set, filter and selection of one workspace calendar.
//
// A Machine is not safe for concurrent use. Each operation runs to
// completion and either fully applies or leaves the state untouched;
// callers sharing a Machine across goroutines must serialize access.
package calendar

import (
	"time"

	"github.com/google/uuid"

	"workcal/internal/filter"
	"workcal/internal/index"
	appLog "workcal/internal/log"
	"workcal/internal/model"
	"workcal/internal/timerange"
)

// DefaultEventType is assigned when an event is created without a type.
const DefaultEventType = "default"

const copySuffix = " (Copy)"

// Options configures a Machine. Zero values get defaults: the local
// timezone, month view, an anchor of Now(), time.Now, random UUIDs and a
// NopHook.
type Options struct {
	// WorkspaceID and UserID are stamped on created and modified events.
	WorkspaceID string
	UserID      string

	Location *time.Location
	View     model.ViewMode
	Anchor   time.Time

	Now   func() time.Time
	NewID func() string
	Hook  Hook
}

// Machine owns one calendar's state.
type Machine struct {
	workspaceID string
	userID      string
	loc         *time.Location
	now         func() time.Time
	newID       func() string
	hook        Hook

	view     model.ViewMode
	anchor   time.Time
	rng      model.TimeRange
	events   []model.CalendarEvent
	criteria model.FilterCriteria
	selected string

	lastStamp time.Time
}

// New builds a Machine from opts.
func New(opts Options) *Machine {
	m := &Machine{
		workspaceID: opts.WorkspaceID,
		userID:      opts.UserID,
		loc:         opts.Location,
		now:         opts.Now,
		newID:       opts.NewID,
		hook:        opts.Hook,
		view:        opts.View,
	}
	if m.loc == nil {
		m.loc = time.Local
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	if m.hook == nil {
		m.hook = NopHook{}
	}
	if !m.view.Valid() {
		m.view = model.ViewMonth
	}
	anchor := opts.Anchor
	if anchor.IsZero() {
		anchor = m.now()
	}
	m.anchor = anchor.In(m.loc)
	m.recompute()
	return m
}

// WorkspaceID returns the workspace this calendar belongs to.
func (m *Machine) WorkspaceID() string { return m.workspaceID }

// Location returns the workspace timezone.
func (m *Machine) Location() *time.Location { return m.loc }

// View returns the current view mode.
func (m *Machine) View() model.ViewMode { return m.view }

// Anchor returns the current anchor date.
func (m *Machine) Anchor() time.Time { return m.anchor }

// Range returns the visible window for the current view and anchor.
func (m *Machine) Range() model.TimeRange { return m.rng }

// Filter returns a copy of the current filter criteria.
func (m *Machine) Filter() model.FilterCriteria { return m.criteria.Clone() }

// SelectedEventID returns the selected event id, or "" when none is.
func (m *Machine) SelectedEventID() string { return m.selected }

// SetView switches the view mode and recomputes the range, even when the
// mode is unchanged.
func (m *Machine) SetView(v model.ViewMode) error {
	if !v.Valid() {
		return invalid("view", "unknown view mode "+string(v))
	}
	m.view = v
	m.recompute()
	return nil
}

// Navigate moves the anchor one view-dependent step.
func (m *Machine) Navigate(dir model.Direction) error {
	if dir != model.Next && dir != model.Previous {
		return invalid("direction", "must be next or previous")
	}
	m.NavigateToDate(timerange.Shift(m.anchor, m.view, dir, m.loc))
	return nil
}

// NavigateToDate sets the anchor to t, keeping the view mode.
func (m *Machine) NavigateToDate(t time.Time) {
	m.anchor = t.In(m.loc)
	m.recompute()
}

// GoToToday anchors the calendar on the current date.
func (m *Machine) GoToToday() {
	m.NavigateToDate(m.now())
}

// SetFilter replaces the filter criteria wholesale.
func (m *Machine) SetFilter(c model.FilterCriteria) {
	m.criteria = c.Clone()
}

// SelectEvent marks id as the selected event.
func (m *Machine) SelectEvent(id string) error {
	if m.find(id) < 0 {
		return eventNotFound(id)
	}
	m.selected = id
	return nil
}

// ClearSelection drops the current selection.
func (m *Machine) ClearSelection() { m.selected = "" }

// Event returns a copy of the event with id.
func (m *Machine) Event(id string) (model.CalendarEvent, error) {
	i := m.find(id)
	if i < 0 {
		return model.CalendarEvent{}, eventNotFound(id)
	}
	return m.events[i].Clone(), nil
}

// Events returns copies of all events in insertion order.
func (m *Machine) Events() []model.CalendarEvent {
	return cloneAll(m.events)
}

// FilteredEvents applies the current filter to the whole event set,
// ignoring the visible range.
func (m *Machine) FilteredEvents() []model.CalendarEvent {
	return filter.Apply(m.events, m.criteria)
}

// VisibleEvents filters the event set, drops events entirely outside the
// current range and indexes the rest by day.
func (m *Machine) VisibleEvents() index.Days {
	scoped := make([]model.CalendarEvent, 0, len(m.events))
	for _, ev := range m.events {
		if m.rng.Overlaps(ev.StartTime, ev.EndTime) && filter.Match(ev, m.criteria) {
			scoped = append(scoped, ev)
		}
	}
	return index.ByDay(scoped, m.loc)
}

// CreateEvent validates in and appends a new event with a fresh id. Every
// attendee starts out pending.
func (m *Machine) CreateEvent(in model.CreateEventInput) (model.CalendarEvent, error) {
	typ := in.Type
	if typ == "" {
		typ = DefaultEventType
	}

	ev := model.CalendarEvent{
		ID:                m.newID(),
		Title:             in.Title,
		Type:              typ,
		Description:       in.Description,
		Location:          in.Location,
		StartTime:         in.StartTime,
		EndTime:           in.EndTime,
		AllDay:            in.AllDay,
		Attendees:         make([]model.EventAttendee, 0, len(in.Attendees)),
		WorkspaceID:       m.workspaceID,
		CreatedBy:         m.userID,
		Color:             in.Color,
		IsRecurring:       in.IsRecurring,
		RecurrencePattern: in.RecurrencePattern.Clone(),
	}
	for _, a := range in.Attendees {
		ev.Attendees = append(ev.Attendees, model.EventAttendee{
			ID:          m.newID(),
			Email:       a.Email,
			Name:        a.Name,
			Status:      model.StatusPending,
			IsOrganizer: a.IsOrganizer,
		})
	}
	if err := validateEvent(ev); err != nil {
		return model.CalendarEvent{}, err
	}

	m.touch(&ev, m.userID)
	m.events = append(m.events, ev)

	appLog.Debug("event created", "id", ev.ID, "title", ev.Title, "workspace", m.workspaceID)
	notify(m.hook, ev, model.ActionCreated)
	return ev.Clone(), nil
}

// UpdateEvent merges patch into the event with id. The result is
// re-validated, and LastModified/LastModifiedBy are stamped even when the
// patch changes nothing.
func (m *Machine) UpdateEvent(id string, patch model.EventPatch) (model.CalendarEvent, error) {
	i := m.find(id)
	if i < 0 {
		return model.CalendarEvent{}, eventNotFound(id)
	}

	merged := patch.Apply(m.events[i])
	if patch.Attendees != nil {
		merged.Attendees = m.normalizeAttendees(merged.Attendees)
	}
	if err := validateEvent(merged); err != nil {
		return model.CalendarEvent{}, err
	}

	m.touch(&merged, m.userID)
	m.events[i] = merged

	appLog.Debug("event updated", "id", id)
	notify(m.hook, merged, model.ActionUpdated)
	return merged.Clone(), nil
}

// MoveEvent changes only the start and end of the event with id.
func (m *Machine) MoveEvent(id string, start, end time.Time) (model.CalendarEvent, error) {
	return m.UpdateEvent(id, model.EventPatch{StartTime: &start, EndTime: &end})
}

// DeleteEvent removes the event with id and clears the selection if it
// pointed at it.
func (m *Machine) DeleteEvent(id string) error {
	i := m.find(id)
	if i < 0 {
		return eventNotFound(id)
	}
	removed := m.events[i]
	m.events = append(m.events[:i], m.events[i+1:]...)
	if m.selected == id {
		m.selected = ""
	}

	appLog.Debug("event deleted", "id", id)
	notify(m.hook, removed, model.ActionDeleted)
	return nil
}

// DuplicateEvent creates a copy of the event with id starting at
// newStart, or at the original start when newStart is nil. The duration
// is preserved; attendees get fresh ids and pending status.
func (m *Machine) DuplicateEvent(id string, newStart *time.Time) (model.CalendarEvent, error) {
	i := m.find(id)
	if i < 0 {
		return model.CalendarEvent{}, eventNotFound(id)
	}
	orig := m.events[i]

	start := orig.StartTime
	if newStart != nil {
		start = *newStart
	}

	attendees := make([]model.AttendeeInput, 0, len(orig.Attendees))
	for _, a := range orig.Attendees {
		attendees = append(attendees, model.AttendeeInput{
			Email:       a.Email,
			Name:        a.Name,
			IsOrganizer: a.IsOrganizer,
		})
	}

	return m.CreateEvent(model.CreateEventInput{
		Title:       orig.Title + copySuffix,
		Type:        orig.Type,
		Description: orig.Description,
		Location:    orig.Location,
		StartTime:   start,
		EndTime:     start.Add(orig.Duration()),
		AllDay:      orig.AllDay,
		Attendees:   attendees,
		Color:       orig.Color,
	})
}

// BulkUpdate applies several patches as one unit. Every id must exist and
// every merged event must validate before any change is stored.
func (m *Machine) BulkUpdate(updates []model.EventUpdate) ([]model.CalendarEvent, error) {
	staged := make(map[int]model.CalendarEvent, len(updates))
	order := make([]int, 0, len(updates))

	for _, u := range updates {
		i := m.find(u.ID)
		if i < 0 {
			return nil, eventNotFound(u.ID)
		}
		base, ok := staged[i]
		if !ok {
			base = m.events[i]
			order = append(order, i)
		}
		merged := u.Patch.Apply(base)
		if u.Patch.Attendees != nil {
			merged.Attendees = m.normalizeAttendees(merged.Attendees)
		}
		if err := validateEvent(merged); err != nil {
			return nil, err
		}
		staged[i] = merged
	}

	out := make([]model.CalendarEvent, 0, len(order))
	for _, i := range order {
		ev := staged[i]
		m.touch(&ev, m.userID)
		m.events[i] = ev
		out = append(out, ev.Clone())
	}
	for _, ev := range out {
		notify(m.hook, ev, model.ActionUpdated)
	}
	appLog.Debug("bulk update applied", "count", len(out))
	return out, nil
}

// SetEvents replaces the whole event set, typically when loading from
// storage. Nothing is replaced if any event fails validation or ids
// collide. The persistence hook is not called. Later stamps are ordered
// after the newest restored LastModified.
func (m *Machine) SetEvents(events []model.CalendarEvent) error {
	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if ev.ID == "" {
			return invalid("id", "must not be empty")
		}
		if _, dup := seen[ev.ID]; dup {
			return invalid("id", "duplicate event id "+ev.ID)
		}
		seen[ev.ID] = struct{}{}
		if err := validateEvent(ev); err != nil {
			return err
		}
	}
	m.events = cloneAll(events)
	for _, ev := range m.events {
		if ev.LastModified.After(m.lastStamp) {
			m.lastStamp = ev.LastModified.Round(0)
		}
	}
	if _, ok := seen[m.selected]; !ok {
		m.selected = ""
	}
	return nil
}

// ClearEvents empties the event set and the selection.
func (m *Machine) ClearEvents() {
	m.events = nil
	m.selected = ""
}

func (m *Machine) recompute() {
	m.rng = timerange.Compute(m.anchor, m.view, m.loc)
}

func (m *Machine) find(id string) int {
	for i := range m.events {
		if m.events[i].ID == id {
			return i
		}
	}
	return -1
}

// touch stamps a strictly increasing LastModified.
func (m *Machine) touch(ev *model.CalendarEvent, by string) {
	t := m.now().Round(0)
	if !t.After(m.lastStamp) {
		t = m.lastStamp.Add(time.Nanosecond)
	}
	m.lastStamp = t
	ev.LastModified = t
	ev.LastModifiedBy = by
}

// normalizeAttendees fills missing ids and statuses on caller-supplied
// attendees.
func (m *Machine) normalizeAttendees(in []model.EventAttendee) []model.EventAttendee {
	out := make([]model.EventAttendee, len(in))
	for i, a := range in {
		if a.ID == "" {
			a.ID = m.newID()
		}
		if a.Status == "" {
			a.Status = model.StatusPending
		}
		out[i] = a
	}
	return out
}

func cloneAll(events []model.CalendarEvent) []model.CalendarEvent {
	out := make([]model.CalendarEvent, len(events))
	for i, ev := range events {
		out[i] = ev.Clone()
	}
	return out
}
