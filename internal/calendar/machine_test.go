package calendar

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"workcal/internal/model"
)

var baseNow = time.Date(2025, 8, 5, 9, 0, 0, 0, time.UTC)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time {
	now := c.t
	c.t = c.t.Add(time.Second)
	return now
}

type recordedCall struct {
	id     string
	action model.Action
}

type recorder struct {
	calls []recordedCall
	err   error
}

func (r *recorder) Persist(ev model.CalendarEvent, action model.Action) error {
	r.calls = append(r.calls, recordedCall{ev.ID, action})
	return r.err
}

func newTestMachine(t *testing.T) (*Machine, *recorder) {
	t.Helper()
	n := 0
	rec := &recorder{}
	clock := &fakeClock{t: baseNow}
	m := New(Options{
		WorkspaceID: "ws-1",
		UserID:      "user-1",
		Location:    time.UTC,
		View:        model.ViewMonth,
		Anchor:      baseNow,
		Now:         clock.Now,
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
		Hook: rec,
	})
	return m, rec
}

func input(title string, start time.Time, d time.Duration) model.CreateEventInput {
	return model.CreateEventInput{
		Title:     title,
		Type:      "meeting",
		StartTime: start,
		EndTime:   start.Add(d),
	}
}

func mustCreate(t *testing.T, m *Machine, in model.CreateEventInput) model.CalendarEvent {
	t.Helper()
	ev, err := m.CreateEvent(in)
	if err != nil {
		t.Fatalf("CreateEvent(%q): %v", in.Title, err)
	}
	return ev
}

func ptr[T any](v T) *T { return &v }

func TestNewDefaults(t *testing.T) {
	m := New(Options{Location: time.UTC, Anchor: baseNow})
	if m.View() != model.ViewMonth {
		t.Fatalf("default view = %s, want month", m.View())
	}
	if got := m.Range().Start; !got.Equal(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("range start = %s", got)
	}
	ev, err := m.CreateEvent(input("x", baseNow, time.Hour))
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if len(ev.ID) != 36 {
		t.Fatalf("default id %q is not a uuid", ev.ID)
	}
}

func TestSetViewIsIdempotent(t *testing.T) {
	m, _ := newTestMachine(t)
	if err := m.SetView(model.ViewWeek); err != nil {
		t.Fatalf("SetView: %v", err)
	}
	once := m.Range()
	if err := m.SetView(model.ViewWeek); err != nil {
		t.Fatalf("SetView: %v", err)
	}
	if m.Range() != once {
		t.Fatalf("second SetView changed range: %v vs %v", m.Range(), once)
	}
	if once.Start.Weekday() != time.Sunday {
		t.Fatalf("week range starts on %s", once.Start.Weekday())
	}
}

func TestSetViewRejectsUnknown(t *testing.T) {
	m, _ := newTestMachine(t)
	before := m.Range()
	if err := m.SetView("year"); !errors.Is(err, ErrValidation) {
		t.Fatalf("SetView(year) err = %v, want validation", err)
	}
	if m.View() != model.ViewMonth || m.Range() != before {
		t.Fatal("failed SetView changed state")
	}
}

func TestNavigateRoundTrip(t *testing.T) {
	start := time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC)
	for _, v := range []model.ViewMode{model.ViewDay, model.ViewWeek, model.ViewMonth, model.ViewAgenda} {
		m, _ := newTestMachine(t)
		m.NavigateToDate(start)
		if err := m.SetView(v); err != nil {
			t.Fatal(err)
		}
		if err := m.Navigate(model.Next); err != nil {
			t.Fatal(err)
		}
		if m.Anchor().Equal(start) {
			t.Fatalf("%s: next did not move anchor", v)
		}
		if err := m.Navigate(model.Previous); err != nil {
			t.Fatal(err)
		}
		if !m.Anchor().Equal(start) {
			t.Errorf("%s: round trip anchor = %s, want %s", v, m.Anchor(), start)
		}
	}
}

func TestNavigateMonthAcrossYear(t *testing.T) {
	m, _ := newTestMachine(t)
	m.NavigateToDate(time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC))
	if err := m.Navigate(model.Next); err != nil {
		t.Fatal(err)
	}
	r := m.Range()
	if r.Start != time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("range start = %s, want 2026-01-01", r.Start)
	}
	if r.End.Day() != 31 || r.End.Month() != time.January {
		t.Fatalf("range end = %s", r.End)
	}
}

func TestNavigateMonthClamps(t *testing.T) {
	m, _ := newTestMachine(t)
	m.NavigateToDate(time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC))
	if err := m.Navigate(model.Next); err != nil {
		t.Fatal(err)
	}
	if got := m.Anchor(); got.Month() != time.February || got.Day() != 28 {
		t.Fatalf("anchor = %s, want 2025-02-28", got)
	}
}

func TestNavigateRejectsUnknownDirection(t *testing.T) {
	m, _ := newTestMachine(t)
	if err := m.Navigate("sideways"); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestGoToTodayKeepsView(t *testing.T) {
	m, _ := newTestMachine(t)
	_ = m.SetView(model.ViewDay)
	m.NavigateToDate(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	m.GoToToday()
	if m.View() != model.ViewDay {
		t.Fatalf("view = %s, want day", m.View())
	}
	if m.Anchor().Year() != 2025 || m.Anchor().Month() != time.August || m.Anchor().Day() != 5 {
		t.Fatalf("anchor = %s, want 2025-08-05", m.Anchor())
	}
}

func TestCreateEvent(t *testing.T) {
	m, rec := newTestMachine(t)
	in := input("Standup", baseNow, 15*time.Minute)
	in.Attendees = []model.AttendeeInput{
		{Email: "a@example.com", Name: "A", IsOrganizer: true},
		{Email: "b@example.com", Name: "B"},
	}

	ev := mustCreate(t, m, in)

	if ev.ID != "id-1" || ev.WorkspaceID != "ws-1" || ev.CreatedBy != "user-1" || ev.LastModifiedBy != "user-1" {
		t.Fatalf("stamped fields = %+v", ev)
	}
	if ev.LastModified.IsZero() {
		t.Fatal("LastModified not stamped")
	}
	if len(ev.Attendees) != 2 {
		t.Fatalf("attendees = %v", ev.Attendees)
	}
	for _, a := range ev.Attendees {
		if a.Status != model.StatusPending || a.ID == "" {
			t.Errorf("attendee = %+v, want pending with id", a)
		}
	}
	if !ev.Attendees[0].IsOrganizer {
		t.Error("organizer flag lost")
	}
	if got := m.Events(); len(got) != 1 || got[0].ID != ev.ID {
		t.Fatalf("events = %v", got)
	}
	if want := []recordedCall{{"id-1", model.ActionCreated}}; !reflect.DeepEqual(rec.calls, want) {
		t.Fatalf("hook calls = %v, want %v", rec.calls, want)
	}
}

func TestCreateEventDefaultsType(t *testing.T) {
	m, _ := newTestMachine(t)
	in := input("x", baseNow, time.Hour)
	in.Type = ""
	if ev := mustCreate(t, m, in); ev.Type != DefaultEventType {
		t.Fatalf("type = %q, want %q", ev.Type, DefaultEventType)
	}
}

func TestCreateEventValidation(t *testing.T) {
	tests := []struct {
		name  string
		in    model.CreateEventInput
		field string
	}{
		{"empty title", input("", baseNow, time.Hour), "title"},
		{"blank title", input("   ", baseNow, time.Hour), "title"},
		{"end before start", input("x", baseNow, -time.Minute), "end_time"},
		{"all-day zero length", func() model.CreateEventInput {
			in := input("x", baseNow, 0)
			in.AllDay = true
			return in
		}(), "end_time"},
		{"bad recurrence", func() model.CreateEventInput {
			in := input("x", baseNow, time.Hour)
			in.IsRecurring = true
			in.RecurrencePattern = &model.RecurrencePattern{Type: "fortnightly"}
			return in
		}(), "recurrence_pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, rec := newTestMachine(t)
			_, err := m.CreateEvent(tt.in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Fatalf("field = %q, want %q", verr.Field, tt.field)
			}
			if len(m.Events()) != 0 || len(rec.calls) != 0 {
				t.Fatal("failed create left state behind")
			}
		})
	}
}

func TestCreateEventZeroDurationTimed(t *testing.T) {
	m, _ := newTestMachine(t)
	if _, err := m.CreateEvent(input("reminder", baseNow, 0)); err != nil {
		t.Fatalf("zero-length timed event rejected: %v", err)
	}
}

func TestCreateEventKeepsRecurrence(t *testing.T) {
	m, _ := newTestMachine(t)
	in := input("weekly sync", baseNow, time.Hour)
	in.IsRecurring = true
	in.RecurrencePattern = &model.RecurrencePattern{Type: model.FreqWeekly, Interval: 1, DaysOfWeek: []int{2}}
	ev := mustCreate(t, m, in)

	in.RecurrencePattern.DaysOfWeek[0] = 4
	got, _ := m.Event(ev.ID)
	if got.RecurrencePattern.DaysOfWeek[0] != 2 {
		t.Fatal("stored pattern aliases caller input")
	}
	if vis := m.VisibleEvents(); vis.Count() != 1 {
		t.Fatalf("recurring event expanded into %d placements, want 1", vis.Count())
	}
}

func TestUpdateEventMergesAndTouches(t *testing.T) {
	m, rec := newTestMachine(t)
	in := input("Planning", baseNow, time.Hour)
	in.Description = "Q3"
	in.Location = "Room 1"
	ev := mustCreate(t, m, in)

	got, err := m.UpdateEvent(ev.ID, model.EventPatch{Title: ptr("Planning v2")})
	if err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}
	if got.Title != "Planning v2" || got.Description != "Q3" || got.Location != "Room 1" || got.Type != "meeting" {
		t.Fatalf("merged = %+v", got)
	}
	if !got.LastModified.After(ev.LastModified) {
		t.Fatal("LastModified not bumped")
	}

	noop, err := m.UpdateEvent(ev.ID, model.EventPatch{})
	if err != nil {
		t.Fatalf("empty UpdateEvent: %v", err)
	}
	if !noop.LastModified.After(got.LastModified) {
		t.Fatal("empty patch did not touch LastModified")
	}
	if noop.WorkspaceID != "ws-1" || noop.CreatedBy != "user-1" {
		t.Fatalf("immutable fields changed: %+v", noop)
	}
	if len(rec.calls) != 3 || rec.calls[2].action != model.ActionUpdated {
		t.Fatalf("hook calls = %v", rec.calls)
	}
}

func TestUpdateEventRejectsInvalidMerge(t *testing.T) {
	m, _ := newTestMachine(t)
	ev := mustCreate(t, m, input("x", baseNow, time.Hour))

	_, err := m.UpdateEvent(ev.ID, model.EventPatch{EndTime: ptr(baseNow.Add(-time.Hour))})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	got, _ := m.Event(ev.ID)
	if !got.EndTime.Equal(ev.EndTime) || !got.LastModified.Equal(ev.LastModified) {
		t.Fatal("rejected update changed the event")
	}
}

func TestUpdateEventAttendees(t *testing.T) {
	m, _ := newTestMachine(t)
	ev := mustCreate(t, m, input("x", baseNow, time.Hour))

	attendees := []model.EventAttendee{{Email: "new@example.com"}, {ID: "keep", Email: "k@example.com", Status: model.StatusAccepted}}
	got, err := m.UpdateEvent(ev.ID, model.EventPatch{Attendees: &attendees})
	if err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}
	if got.Attendees[0].ID == "" || got.Attendees[0].Status != model.StatusPending {
		t.Fatalf("new attendee not normalized: %+v", got.Attendees[0])
	}
	if got.Attendees[1].ID != "keep" || got.Attendees[1].Status != model.StatusAccepted {
		t.Fatalf("existing attendee changed: %+v", got.Attendees[1])
	}

	dup := []model.EventAttendee{{ID: "a", Status: model.StatusPending}, {ID: "a", Status: model.StatusPending}}
	if _, err := m.UpdateEvent(ev.ID, model.EventPatch{Attendees: &dup}); !errors.Is(err, ErrValidation) {
		t.Fatalf("duplicate attendee ids err = %v, want validation", err)
	}
}

func TestUnknownIDsReturnNotFound(t *testing.T) {
	m, rec := newTestMachine(t)
	checks := map[string]error{
		"update":    func() error { _, err := m.UpdateEvent("nope", model.EventPatch{}); return err }(),
		"delete":    m.DeleteEvent("nope"),
		"duplicate": func() error { _, err := m.DuplicateEvent("nope", nil); return err }(),
		"move":      func() error { _, err := m.MoveEvent("nope", baseNow, baseNow); return err }(),
		"select":    m.SelectEvent("nope"),
		"get":       func() error { _, err := m.Event("nope"); return err }(),
	}
	for name, err := range checks {
		var nf *NotFoundError
		if !errors.As(err, &nf) || nf.ID != "nope" {
			t.Errorf("%s: err = %v, want *NotFoundError for nope", name, err)
		}
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: errors.Is(ErrNotFound) = false", name)
		}
	}
	if len(rec.calls) != 0 {
		t.Fatalf("hook fired on failures: %v", rec.calls)
	}
}

func TestDeleteEventClearsSelection(t *testing.T) {
	m, rec := newTestMachine(t)
	a := mustCreate(t, m, input("a", baseNow, time.Hour))
	b := mustCreate(t, m, input("b", baseNow, time.Hour))

	if err := m.SelectEvent(a.ID); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteEvent(b.ID); err != nil {
		t.Fatal(err)
	}
	if m.SelectedEventID() != a.ID {
		t.Fatal("deleting another event cleared the selection")
	}
	if err := m.DeleteEvent(a.ID); err != nil {
		t.Fatal(err)
	}
	if m.SelectedEventID() != "" {
		t.Fatal("selection still points at deleted event")
	}
	if len(m.Events()) != 0 {
		t.Fatalf("events = %v", m.Events())
	}
	if last := rec.calls[len(rec.calls)-1]; last != (recordedCall{a.ID, model.ActionDeleted}) {
		t.Fatalf("last hook call = %v", last)
	}
}

func TestDuplicateEvent(t *testing.T) {
	m, _ := newTestMachine(t)
	in := input("Review", baseNow, 90*time.Minute)
	in.Color = "#ff0000"
	in.Description = "notes"
	in.Attendees = []model.AttendeeInput{{Email: "a@example.com", Name: "A"}}
	orig := mustCreate(t, m, in)

	// RSVP on the original must not carry over.
	accepted := []model.EventAttendee{orig.Attendees[0]}
	accepted[0].Status = model.StatusAccepted
	if _, err := m.UpdateEvent(orig.ID, model.EventPatch{Attendees: &accepted}); err != nil {
		t.Fatal(err)
	}

	newStart := time.Date(2025, 9, 1, 14, 0, 0, 0, time.UTC)
	for _, start := range []*time.Time{nil, &newStart} {
		dup, err := m.DuplicateEvent(orig.ID, start)
		if err != nil {
			t.Fatalf("DuplicateEvent: %v", err)
		}
		if dup.ID == orig.ID {
			t.Fatal("duplicate reused the original id")
		}
		if dup.Duration() != 90*time.Minute {
			t.Fatalf("duration = %s, want 1h30m", dup.Duration())
		}
		wantStart := orig.StartTime
		if start != nil {
			wantStart = *start
		}
		if !dup.StartTime.Equal(wantStart) {
			t.Fatalf("start = %s, want %s", dup.StartTime, wantStart)
		}
		if dup.Title != "Review (Copy)" || dup.Color != "#ff0000" || dup.Description != "notes" || dup.Type != "meeting" {
			t.Fatalf("copied fields = %+v", dup)
		}
		if len(dup.Attendees) != 1 {
			t.Fatalf("attendees = %v", dup.Attendees)
		}
		a := dup.Attendees[0]
		if a.ID == orig.Attendees[0].ID || a.Status != model.StatusPending || a.Email != "a@example.com" {
			t.Fatalf("attendee = %+v, want fresh pending copy", a)
		}
	}
	if n := len(m.Events()); n != 3 {
		t.Fatalf("event count = %d, want 3", n)
	}
}

func TestMoveEventPreservesOtherFields(t *testing.T) {
	m, _ := newTestMachine(t)
	in := input("Lunch", baseNow, time.Hour)
	in.Location = "Cafe"
	in.Attendees = []model.AttendeeInput{{Email: "a@example.com"}}
	ev := mustCreate(t, m, in)

	ns, ne := baseNow.Add(3*time.Hour), baseNow.Add(4*time.Hour)
	got, err := m.MoveEvent(ev.ID, ns, ne)
	if err != nil {
		t.Fatalf("MoveEvent: %v", err)
	}
	if !got.StartTime.Equal(ns) || !got.EndTime.Equal(ne) {
		t.Fatalf("times = %s - %s", got.StartTime, got.EndTime)
	}
	if got.Title != "Lunch" || got.Location != "Cafe" || !reflect.DeepEqual(got.Attendees, ev.Attendees) {
		t.Fatalf("other fields changed: %+v", got)
	}

	if _, err := m.MoveEvent(ev.ID, ne, ns); !errors.Is(err, ErrValidation) {
		t.Fatalf("inverted move err = %v, want validation", err)
	}
}

func TestVisibleEventsScopesFiltersAndIndexes(t *testing.T) {
	m, _ := newTestMachine(t)
	_ = m.SetView(model.ViewWeek) // 2025-08-03 .. 2025-08-09

	in := func(title, typ string, start time.Time, d time.Duration, allDay bool) model.CreateEventInput {
		return model.CreateEventInput{Title: title, Type: typ, StartTime: start, EndTime: start.Add(d), AllDay: allDay}
	}
	day := func(d, h int) time.Time { return time.Date(2025, 8, d, h, 0, 0, 0, time.UTC) }

	mustCreate(t, m, in("inside", "meeting", day(5, 9), time.Hour, false))
	mustCreate(t, m, in("personal", "personal", day(6, 9), time.Hour, false))
	mustCreate(t, m, in("outside", "meeting", day(20, 9), time.Hour, false))
	mustCreate(t, m, in("offsite", "meeting", day(5, 0), 3*24*time.Hour-time.Second, true))
	mustCreate(t, m, in("straddle", "meeting", day(1, 0), 3*24*time.Hour-time.Second, true))

	m.SetFilter(model.FilterCriteria{EventTypes: []string{"meeting"}})
	vis := m.VisibleEvents()

	titles := func(key string) []string {
		var out []string
		for _, e := range vis[key] {
			out = append(out, e.Title)
		}
		return out
	}
	if got, want := titles("2025-08-05"), []string{"inside", "offsite"}; !reflect.DeepEqual(got, want) {
		t.Errorf("2025-08-05 = %v, want %v", got, want)
	}
	if got, want := titles("2025-08-06"), []string{"offsite"}; !reflect.DeepEqual(got, want) {
		t.Errorf("2025-08-06 = %v, want %v", got, want)
	}
	if got, want := titles("2025-08-03"), []string{"straddle"}; !reflect.DeepEqual(got, want) {
		t.Errorf("2025-08-03 = %v, want %v", got, want)
	}
	if _, ok := vis["2025-08-20"]; ok {
		t.Error("event outside the range was indexed")
	}
	if got := len(m.FilteredEvents()); got != 4 {
		t.Errorf("FilteredEvents = %d, want 4", got)
	}
}

func TestFilterIsReplacedWholesale(t *testing.T) {
	m, _ := newTestMachine(t)
	crit := model.FilterCriteria{AttendeeIDs: []string{"a"}, HideDeclined: true}
	m.SetFilter(crit)
	crit.AttendeeIDs[0] = "mutated"
	if m.Filter().AttendeeIDs[0] != "a" {
		t.Fatal("filter aliases caller slice")
	}
	m.SetFilter(model.FilterCriteria{EventTypes: []string{"x"}})
	if got := m.Filter(); got.HideDeclined || len(got.AttendeeIDs) != 0 {
		t.Fatalf("filter merged instead of replaced: %+v", got)
	}
}

func TestEventsReturnsCopies(t *testing.T) {
	m, _ := newTestMachine(t)
	in := input("x", baseNow, time.Hour)
	in.Attendees = []model.AttendeeInput{{Email: "a@example.com"}}
	mustCreate(t, m, in)

	evs := m.Events()
	evs[0].Title = "changed"
	evs[0].Attendees[0].Status = model.StatusDeclined

	got := m.Events()[0]
	if got.Title != "x" || got.Attendees[0].Status != model.StatusPending {
		t.Fatalf("store mutated through returned copy: %+v", got)
	}
}

func TestHookFailureDoesNotRollBack(t *testing.T) {
	m, rec := newTestMachine(t)
	rec.err = errors.New("disk full")
	ev, err := m.CreateEvent(input("x", baseNow, time.Hour))
	if err != nil {
		t.Fatalf("CreateEvent returned hook error: %v", err)
	}
	if _, err := m.Event(ev.ID); err != nil {
		t.Fatal("event rolled back after hook failure")
	}

	m.hook = HookFunc(func(model.CalendarEvent, model.Action) error { panic("boom") })
	if err := m.DeleteEvent(ev.ID); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	if len(m.Events()) != 0 {
		t.Fatal("delete rolled back after hook panic")
	}
}

func TestBulkUpdateIsAtomic(t *testing.T) {
	m, rec := newTestMachine(t)
	a := mustCreate(t, m, input("a", baseNow, time.Hour))
	b := mustCreate(t, m, input("b", baseNow, time.Hour))
	rec.calls = nil

	_, err := m.BulkUpdate([]model.EventUpdate{
		{ID: a.ID, Patch: model.EventPatch{Title: ptr("a2")}},
		{ID: b.ID, Patch: model.EventPatch{Title: ptr("")}},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if got, _ := m.Event(a.ID); got.Title != "a" {
		t.Fatal("partial bulk update applied")
	}

	_, err = m.BulkUpdate([]model.EventUpdate{
		{ID: a.ID, Patch: model.EventPatch{Title: ptr("a2")}},
		{ID: "missing", Patch: model.EventPatch{}},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}

	out, err := m.BulkUpdate([]model.EventUpdate{
		{ID: a.ID, Patch: model.EventPatch{Title: ptr("a2")}},
		{ID: b.ID, Patch: model.EventPatch{Color: ptr("blue")}},
		{ID: a.ID, Patch: model.EventPatch{Location: ptr("here")}},
	})
	if err != nil {
		t.Fatalf("BulkUpdate: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("updated %d events, want 2", len(out))
	}
	if got, _ := m.Event(a.ID); got.Title != "a2" || got.Location != "here" {
		t.Fatalf("a = %+v", got)
	}
	if len(rec.calls) != 2 {
		t.Fatalf("hook calls = %v", rec.calls)
	}
}

func TestSetEventsAndClear(t *testing.T) {
	m, rec := newTestMachine(t)
	evs := []model.CalendarEvent{
		{ID: "x", Title: "x", StartTime: baseNow, EndTime: baseNow.Add(time.Hour)},
		{ID: "y", Title: "y", StartTime: baseNow, EndTime: baseNow.Add(time.Hour)},
	}
	if err := m.SetEvents(evs); err != nil {
		t.Fatalf("SetEvents: %v", err)
	}
	if len(m.Events()) != 2 || len(rec.calls) != 0 {
		t.Fatalf("events = %d, hook calls = %d", len(m.Events()), len(rec.calls))
	}
	_ = m.SelectEvent("x")

	bad := append(evs, model.CalendarEvent{ID: "x", Title: "dup", StartTime: baseNow, EndTime: baseNow})
	if err := m.SetEvents(bad); !errors.Is(err, ErrValidation) {
		t.Fatalf("duplicate ids err = %v", err)
	}
	if len(m.Events()) != 2 {
		t.Fatal("rejected SetEvents replaced the set")
	}

	m.ClearEvents()
	if len(m.Events()) != 0 || m.SelectedEventID() != "" {
		t.Fatal("ClearEvents left state behind")
	}
}

func TestSetEventsValidatesAttendees(t *testing.T) {
	base := model.CalendarEvent{
		ID:        "a",
		Title:     "Review",
		StartTime: baseNow,
		EndTime:   baseNow.Add(time.Hour),
	}
	withAttendees := func(as ...model.EventAttendee) model.CalendarEvent {
		ev := base.Clone()
		ev.Attendees = as
		return ev
	}
	tests := []struct {
		name  string
		ev    model.CalendarEvent
		field string
	}{
		{"missing attendee id", withAttendees(model.EventAttendee{Status: model.StatusPending}), "attendees"},
		{"duplicate attendee id", withAttendees(
			model.EventAttendee{ID: "x", Status: model.StatusPending},
			model.EventAttendee{ID: "x", Status: model.StatusAccepted},
		), "attendees"},
		{"unknown status", withAttendees(model.EventAttendee{ID: "x", Status: "maybe"}), "attendees"},
		{"zero start", func() model.CalendarEvent {
			ev := base.Clone()
			ev.StartTime = time.Time{}
			return ev
		}(), "start_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMachine(t)
			err := m.SetEvents([]model.CalendarEvent{tt.ev})
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Fatalf("err = %#v, want field %q", err, tt.field)
			}
			if len(m.Events()) != 0 {
				t.Fatal("invalid set was stored")
			}
		})
	}

	m, _ := newTestMachine(t)
	ok := withAttendees(
		model.EventAttendee{ID: "x", Status: model.StatusDeclined},
		model.EventAttendee{ID: "y", Status: model.StatusTentative},
	)
	if err := m.SetEvents([]model.CalendarEvent{ok}); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}
}

func TestStampsStayAheadOfRestoredEvents(t *testing.T) {
	m, _ := newTestMachine(t)
	restored := model.CalendarEvent{
		ID:           "a",
		Title:        "Restored",
		StartTime:    baseNow,
		EndTime:      baseNow.Add(time.Hour),
		LastModified: baseNow.Add(time.Hour),
	}
	if err := m.SetEvents([]model.CalendarEvent{restored}); err != nil {
		t.Fatalf("SetEvents: %v", err)
	}

	// The clock reads baseNow, an hour behind the restored stamp.
	ev, err := m.UpdateEvent("a", model.EventPatch{})
	if err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}
	if !ev.LastModified.After(restored.LastModified) {
		t.Fatalf("LastModified = %v, want after %v", ev.LastModified, restored.LastModified)
	}

	created := mustCreate(t, m, input("next", baseNow, time.Hour))
	if !created.LastModified.After(ev.LastModified) {
		t.Fatalf("create stamp %v not after update stamp %v", created.LastModified, ev.LastModified)
	}
}
