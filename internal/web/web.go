package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"workcal/internal/calendar"
	"workcal/internal/config"
	"workcal/internal/ics"
	appLog "workcal/internal/log"
	"workcal/internal/model"
	"workcal/internal/permission"
)

// RoleHeader carries the caller's workspace role. The header is trusted
// as-is.
const RoleHeader = "X-Workspace-Role"

const maxBodyBytes = 1 << 20

// Server exposes one calendar.Machine over a JSON HTTP API. Handlers hold
// mu while touching cal.
type Server struct {
	cfg *config.Config
	mux *http.ServeMux

	mu  sync.Mutex
	cal *calendar.Machine
}

// NewServer constructs a new Server around cal.
func NewServer(cfg *config.Config, cal *calendar.Machine) *Server {
	s := &Server{
		cfg: cfg,
		cal: cal,
		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Snapshot renders every event as iCalendar under the server lock.
func (s *Server) Snapshot(now time.Time) []byte {
	s.mu.Lock()
	events := s.cal.Events()
	loc := s.cal.Location()
	ws := s.cal.WorkspaceID()
	s.mu.Unlock()

	return []byte(ics.Export(events, ics.ExportOptions{Name: ws, Location: loc, Now: now}))
}

// ListenAndServe serves on cfg.Listen until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials are treated as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="workcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/state", s.require(permission.ViewAllEvents, s.handleState))
	s.mux.HandleFunc("PUT /api/view", s.require(permission.ViewAllEvents, s.handleSetView))
	s.mux.HandleFunc("POST /api/navigate", s.require(permission.ViewAllEvents, s.handleNavigate))
	s.mux.HandleFunc("PUT /api/filter", s.require(permission.ViewAllEvents, s.handleSetFilter))
	s.mux.HandleFunc("PUT /api/selection", s.require(permission.ViewAllEvents, s.handleSelect))
	s.mux.HandleFunc("DELETE /api/selection", s.require(permission.ViewAllEvents, s.handleClearSelection))

	s.mux.HandleFunc("GET /api/events", s.require(permission.ViewAllEvents, s.handleVisibleEvents))
	s.mux.HandleFunc("POST /api/events", s.require(permission.CreateEvents, s.handleCreateEvent))
	s.mux.HandleFunc("PATCH /api/events", s.require(permission.EditEvents, s.handleBulkUpdate))
	s.mux.HandleFunc("GET /api/events/{id}", s.require(permission.ViewAllEvents, s.handleGetEvent))
	s.mux.HandleFunc("PATCH /api/events/{id}", s.require(permission.EditEvents, s.handleUpdateEvent))
	s.mux.HandleFunc("DELETE /api/events/{id}", s.require(permission.DeleteEvents, s.handleDeleteEvent))
	s.mux.HandleFunc("POST /api/events/{id}/duplicate", s.require(permission.CreateEvents, s.handleDuplicateEvent))
	s.mux.HandleFunc("POST /api/events/{id}/move", s.require(permission.EditEvents, s.handleMoveEvent))

	s.mux.HandleFunc("GET /api/permissions", s.handlePermissions)
	s.mux.HandleFunc("GET /api/export.ics", s.require(permission.ExportCalendar, s.handleExport))
	s.mux.HandleFunc("POST /api/sync", s.require(permission.ManageIntegrations, s.handleSync))
	s.mux.HandleFunc("POST /api/import", s.require(permission.ManageIntegrations, s.handleImport))
}

// roleOf returns the caller's role: the header when present, otherwise
// the configured default. Unknown header values are passed through so
// that they resolve to the empty permission set.
func (s *Server) roleOf(r *http.Request) permission.Role {
	if raw := r.Header.Get(RoleHeader); raw != "" {
		if role, err := permission.ParseRole(raw); err == nil {
			return role
		}
		return permission.Role(raw)
	}
	return permission.Role(s.cfg.Role)
}

// require rejects requests whose role lacks c.
func (s *Server) require(c permission.Capability, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := s.roleOf(r)
		if !permission.Resolve(role).Has(c) {
			appLog.Info("permission denied", "role", string(role), "capability", c.String(), "path", r.URL.Path)
			writeError(w, http.StatusForbidden, "role "+string(role)+" lacks "+c.String())
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// stateResponse is the JSON response shape for /api/state and all
// navigation endpoints.
type stateResponse struct {
	View            model.ViewMode       `json:"view"`
	Anchor          time.Time            `json:"anchor"`
	RangeStart      time.Time            `json:"range_start"`
	RangeEnd        time.Time            `json:"range_end"`
	Filter          model.FilterCriteria `json:"filter"`
	SelectedEventID string               `json:"selected_event_id,omitempty"`
	TimeZone        string               `json:"timezone"`
}

// dayDTO is one bucket of the visible-events index.
type dayDTO struct {
	Date   string                `json:"date"`
	Events []model.CalendarEvent `json:"events"`
}

// eventsResponse is the JSON response shape for GET /api/events.
type eventsResponse struct {
	RangeStart time.Time `json:"range_start"`
	RangeEnd   time.Time `json:"range_end"`
	Days       []dayDTO  `json:"days"`
}

func (s *Server) stateLocked() stateResponse {
	rng := s.cal.Range()
	return stateResponse{
		View:            s.cal.View(),
		Anchor:          s.cal.Anchor(),
		RangeStart:      rng.Start,
		RangeEnd:        rng.End,
		Filter:          s.cal.Filter(),
		SelectedEventID: s.cal.SelectedEventID(),
		TimeZone:        s.cal.Location().String(),
	}
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := s.stateLocked()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetView(w http.ResponseWriter, r *http.Request) {
	var req struct {
		View model.ViewMode `json:"view"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cal.SetView(req.View); err != nil {
		writeCalendarError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.stateLocked())
}

// handleNavigate moves the anchor.
//
// POST /api/navigate {"direction": "next" | "previous" | "today"}
// POST /api/navigate {"date": "2025-08-05T00:00:00Z"}
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Direction string     `json:"direction"`
		Date      *time.Time `json:"date"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case req.Date != nil:
		s.cal.NavigateToDate(*req.Date)
	case req.Direction == "today":
		s.cal.GoToToday()
	default:
		if err := s.cal.Navigate(model.Direction(req.Direction)); err != nil {
			writeCalendarError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.stateLocked())
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req model.FilterCriteria
	if !decodeJSON(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cal.SetFilter(req)
	writeJSON(w, http.StatusOK, s.stateLocked())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cal.SelectEvent(req.ID); err != nil {
		writeCalendarError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.stateLocked())
}

func (s *Server) handleClearSelection(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cal.ClearSelection()
	writeJSON(w, http.StatusOK, s.stateLocked())
}

// handleVisibleEvents returns the filtered events of the current range,
// bucketed by day in ascending date order.
func (s *Server) handleVisibleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	rng := s.cal.Range()
	days := s.cal.VisibleEvents()
	s.mu.Unlock()

	resp := eventsResponse{
		RangeStart: rng.Start,
		RangeEnd:   rng.End,
		Days:       make([]dayDTO, 0, len(days)),
	}
	for _, key := range days.Keys() {
		resp.Days = append(resp.Days, dayDTO{Date: key, Events: days[key]})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var in model.CreateEventInput
	if !decodeJSON(w, r, &in) {
		return
	}
	s.mu.Lock()
	ev, err := s.cal.CreateEvent(in)
	s.mu.Unlock()
	if err != nil {
		writeCalendarError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ev, err := s.cal.Event(r.PathValue("id"))
	s.mu.Unlock()
	if err != nil {
		writeCalendarError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var patch model.EventPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	s.mu.Lock()
	ev, err := s.cal.UpdateEvent(r.PathValue("id"), patch)
	s.mu.Unlock()
	if err != nil {
		writeCalendarError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	var updates []model.EventUpdate
	if !decodeJSON(w, r, &updates) {
		return
	}
	s.mu.Lock()
	evs, err := s.cal.BulkUpdate(updates)
	s.mu.Unlock()
	if err != nil {
		writeCalendarError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	err := s.cal.DeleteEvent(r.PathValue("id"))
	s.mu.Unlock()
	if err != nil {
		writeCalendarError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDuplicateEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Start *time.Time `json:"start"`
	}
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	s.mu.Lock()
	ev, err := s.cal.DuplicateEvent(r.PathValue("id"), req.Start)
	s.mu.Unlock()
	if err != nil {
		writeCalendarError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleMoveEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.mu.Lock()
	ev, err := s.cal.MoveEvent(r.PathValue("id"), req.Start, req.End)
	s.mu.Unlock()
	if err != nil {
		writeCalendarError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// handlePermissions returns the capability set of ?role=, or of the
// caller's role when the parameter is absent. Unknown roles are a 404.
func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	role := s.roleOf(r)
	if raw := r.URL.Query().Get("role"); raw != "" {
		parsed, err := permission.ParseRole(raw)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		role = parsed
	}
	writeJSON(w, http.StatusOK, struct {
		Role        permission.Role `json:"role"`
		Permissions permission.Set  `json:"permissions"`
	}{role, permission.Resolve(role)})
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	body := s.Snapshot(time.Now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleSync applies one change pushed by an external sync collaborator.
//
// POST /api/sync {"action": "created"|"updated"|"deleted", "event": {...}}
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action model.Action        `json:"action"`
		Event  model.CalendarEvent `json:"event"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	s.mu.Lock()
	err := s.cal.HandleExternalUpdate(req.Event, req.Action)
	s.mu.Unlock()
	if err != nil {
		writeCalendarError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// importResponse reports how many events of an .ics upload were applied.
type importResponse struct {
	Imported int      `json:"imported"`
	Rejected []string `json:"rejected,omitempty"`
}

// handleImport reads a text/calendar body and applies every VEVENT as an
// external "created" update. Events that fail validation are reported by
// UID and skipped.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	s.mu.Lock()
	loc := s.cal.Location()
	s.mu.Unlock()

	events, err := ics.Parse(body, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid iCalendar: "+err.Error())
		return
	}

	resp := importResponse{}
	s.mu.Lock()
	for _, ev := range events {
		if err := s.cal.HandleExternalUpdate(ev, model.ActionCreated); err != nil {
			appLog.Warn("import: event rejected", "uid", ev.ID, "err", err.Error())
			resp.Rejected = append(resp.Rejected, ev.ID)
			continue
		}
		resp.Imported++
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeBody(w, r, v, false)
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty,
// including chunked requests with no content. v is left untouched then.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeBody(w, r, v, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeCalendarError maps the calendar error taxonomy to HTTP statuses.
func writeCalendarError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, calendar.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, calendar.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		appLog.Error("calendar operation failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
