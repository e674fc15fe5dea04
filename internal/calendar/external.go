package calendar

import (
	appLog "workcal/internal/log"
	"workcal/internal/model"
)

// HandleExternalUpdate reconciles a change reported by a sync source.
//
// created inserts ev, replacing any event with the same id. updated
// overwrites every mutable field of an existing event with ev's. deleted
// removes the event with ev.ID. Writes are last-writer-wins; nothing is
// checked for conflicts. The persistence hook fires as for local
// mutations.
func (m *Machine) HandleExternalUpdate(ev model.CalendarEvent, action model.Action) error {
	if ev.WorkspaceID != "" && m.workspaceID != "" && ev.WorkspaceID != m.workspaceID {
		return invalid("workspace_id", "event belongs to workspace "+ev.WorkspaceID)
	}

	switch action {
	case model.ActionCreated:
		return m.externalCreate(ev)
	case model.ActionUpdated:
		return m.externalUpdate(ev)
	case model.ActionDeleted:
		return m.DeleteEvent(ev.ID)
	default:
		return invalid("action", "unknown action "+string(action))
	}
}

func (m *Machine) externalCreate(in model.CalendarEvent) error {
	ev := in.Clone()
	if ev.ID == "" {
		ev.ID = m.newID()
	}
	ev.WorkspaceID = m.workspaceID
	if ev.CreatedBy == "" {
		ev.CreatedBy = m.userID
	}
	if ev.Type == "" {
		ev.Type = DefaultEventType
	}
	ev.Attendees = m.normalizeAttendees(ev.Attendees)
	if err := validateEvent(ev); err != nil {
		return err
	}

	m.touch(&ev, modifier(in, m.userID))
	if i := m.find(ev.ID); i >= 0 {
		m.events[i] = ev
	} else {
		m.events = append(m.events, ev)
	}

	appLog.Debug("external event created", "id", ev.ID)
	notify(m.hook, ev, model.ActionCreated)
	return nil
}

func (m *Machine) externalUpdate(in model.CalendarEvent) error {
	i := m.find(in.ID)
	if i < 0 {
		return eventNotFound(in.ID)
	}
	cur := m.events[i]

	ev := in.Clone()
	ev.ID = cur.ID
	ev.WorkspaceID = cur.WorkspaceID
	ev.CreatedBy = cur.CreatedBy
	if ev.Type == "" {
		ev.Type = cur.Type
	}
	ev.Attendees = m.normalizeAttendees(ev.Attendees)
	if err := validateEvent(ev); err != nil {
		return err
	}

	m.touch(&ev, modifier(in, m.userID))
	m.events[i] = ev

	appLog.Debug("external event updated", "id", ev.ID)
	notify(m.hook, ev, model.ActionUpdated)
	return nil
}

func modifier(ev model.CalendarEvent, fallback string) string {
	if ev.LastModifiedBy != "" {
		return ev.LastModifiedBy
	}
	return fallback
}
