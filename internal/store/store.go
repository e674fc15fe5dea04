// Package store provides a SQLite-backed event store. A Store doubles as
// the calendar persistence hook: every committed mutation is written
// through, and Load restores the event set at startup.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	appLog "workcal/internal/log"
	"workcal/internal/model"
)

const schema = `CREATE TABLE IF NOT EXISTS events (
	id               TEXT NOT NULL,
	workspace_id     TEXT NOT NULL,
	start_ms         INTEGER NOT NULL,
	end_ms           INTEGER NOT NULL,
	last_modified_ms INTEGER NOT NULL,
	body             TEXT NOT NULL,
	PRIMARY KEY (workspace_id, id)
);
CREATE INDEX IF NOT EXISTS events_by_start ON events (workspace_id, start_ms);`

// writeTimeout bounds a single write-through from the hook.
const writeTimeout = 5 * time.Second

// Store persists calendar events in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens (creating if needed) the SQLite database at path and
// applies the schema. ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path)
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps ":memory:" databases shared across calls.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("configure sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Persist writes one committed change: created and updated upsert the
// event, deleted removes it.
func (s *Store) Persist(ev model.CalendarEvent, action model.Action) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	switch action {
	case model.ActionCreated, model.ActionUpdated:
		return s.Put(ctx, ev)
	case model.ActionDeleted:
		return s.Delete(ctx, ev.WorkspaceID, ev.ID)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

// Put inserts or replaces ev.
func (s *Store) Put(ctx context.Context, ev model.CalendarEvent) error {
	if s == nil || s.sqlDB == nil {
		return errors.New("storage is not configured")
	}
	if ev.ID == "" {
		return errors.New("event id is required")
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO events (id, workspace_id, start_ms, end_ms, last_modified_ms, body)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (workspace_id, id) DO UPDATE SET
		   start_ms = excluded.start_ms,
		   end_ms = excluded.end_ms,
		   last_modified_ms = excluded.last_modified_ms,
		   body = excluded.body`,
		ev.ID,
		ev.WorkspaceID,
		toMillis(ev.StartTime),
		toMillis(ev.EndTime),
		toMillis(ev.LastModified),
		string(body),
	)
	if err != nil {
		return fmt.Errorf("put event %s: %w", ev.ID, err)
	}
	return nil
}

// Delete removes one event. Deleting a missing event is not an error.
func (s *Store) Delete(ctx context.Context, workspaceID, id string) error {
	if s == nil || s.sqlDB == nil {
		return errors.New("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM events WHERE workspace_id = ? AND id = ?`, workspaceID, id); err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}

// Load returns every stored event of a workspace ordered by start time.
// Rows that no longer decode are logged and skipped.
func (s *Store) Load(ctx context.Context, workspaceID string) ([]model.CalendarEvent, error) {
	if s == nil || s.sqlDB == nil {
		return nil, errors.New("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, body FROM events WHERE workspace_id = ? ORDER BY start_ms, id`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	events := make([]model.CalendarEvent, 0)
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev model.CalendarEvent
		if err := json.Unmarshal([]byte(body), &ev); err != nil {
			appLog.Error("store: skipping undecodable event", err, "id", id)
			continue
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
