package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"workcal/internal/calendar"
	"workcal/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func event(id string, start time.Time) model.CalendarEvent {
	return model.CalendarEvent{
		ID:          id,
		Title:       "Event " + id,
		Type:        "meeting",
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		WorkspaceID: "ws-1",
		CreatedBy:   "user-1",
		Attendees: []model.EventAttendee{
			{ID: "a-1", Email: "a@example.com", Status: model.StatusAccepted},
		},
		LastModified: start,
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("Open accepted an empty path")
	}
}

func TestPersistLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2025, 8, 5, 9, 0, 0, 0, time.UTC)

	later := event("b", base.Add(2*time.Hour))
	earlier := event("a", base)
	if err := s.Persist(later, model.ActionCreated); err != nil {
		t.Fatalf("persist b: %v", err)
	}
	if err := s.Persist(earlier, model.ActionCreated); err != nil {
		t.Fatalf("persist a: %v", err)
	}

	got, err := s.Load(ctx, "ws-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("loaded = %+v", got)
	}
	if len(got[0].Attendees) != 1 || got[0].Attendees[0].Status != model.StatusAccepted {
		t.Fatalf("attendees not round-tripped: %+v", got[0].Attendees)
	}

	earlier.Title = "Renamed"
	if err := s.Persist(earlier, model.ActionUpdated); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Persist(later, model.ActionDeleted); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err = s.Load(ctx, "ws-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Renamed" {
		t.Fatalf("after update/delete = %+v", got)
	}

	if other, _ := s.Load(ctx, "ws-2"); len(other) != 0 {
		t.Fatalf("other workspace sees %d events", len(other))
	}
}

func TestPersistRejectsUnknownAction(t *testing.T) {
	s := openTestStore(t)
	if err := s.Persist(event("x", time.Now()), model.Action("archived")); err == nil {
		t.Fatal("unknown action accepted")
	}
}

func TestStoreAsCalendarHook(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	n := 0
	base := time.Date(2025, 8, 5, 9, 0, 0, 0, time.UTC)
	cal := calendar.New(calendar.Options{
		WorkspaceID: "ws-1",
		UserID:      "user-1",
		Location:    time.UTC,
		Anchor:      base,
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
		Hook: s,
	})

	if _, err := cal.CreateEvent(model.CreateEventInput{Title: "Kickoff", StartTime: base, EndTime: base.Add(time.Hour)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup, err := cal.DuplicateEvent("id-1", nil)
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if err := cal.DeleteEvent(dup.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	events, err := reopened.Load(ctx, "ws-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	restored := calendar.New(calendar.Options{WorkspaceID: "ws-1", Location: time.UTC, Anchor: base})
	if err := restored.SetEvents(events); err != nil {
		t.Fatalf("SetEvents: %v", err)
	}
	got := restored.Events()
	if len(got) != 1 || got[0].ID != "id-1" || got[0].Title != "Kickoff" {
		t.Fatalf("restored = %+v", got)
	}
}
