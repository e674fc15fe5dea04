package calendar

import (
	"fmt"

	appLog "workcal/internal/log"
	"workcal/internal/model"
)

// Hook receives every successful mutation, after it is applied in memory.
// A durable-storage collaborator implements it. Its error (or panic) is
// logged and discarded; it never rolls back the mutation, and each
// mutation is offered at most once.
type Hook interface {
	Persist(ev model.CalendarEvent, action model.Action) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(ev model.CalendarEvent, action model.Action) error

func (f HookFunc) Persist(ev model.CalendarEvent, action model.Action) error {
	return f(ev, action)
}

// NopHook discards all notifications.
type NopHook struct{}

func (NopHook) Persist(model.CalendarEvent, model.Action) error { return nil }

// notify delivers one notification, isolating the caller from failures.
func notify(h Hook, ev model.CalendarEvent, action model.Action) {
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			appLog.Error("persistence hook panicked", fmt.Errorf("%v", r), "id", ev.ID, "action", string(action))
		}
	}()
	if err := h.Persist(ev.Clone(), action); err != nil {
		appLog.Error("persistence hook failed", err, "id", ev.ID, "action", string(action))
	}
}
