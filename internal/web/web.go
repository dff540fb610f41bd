package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"dayplan/internal/config"
	appLog "dayplan/internal/log"
	"dayplan/internal/model"
	"dayplan/internal/planner"
	"dayplan/internal/recurrence"
	"dayplan/internal/series"
	"dayplan/internal/store"
	"dayplan/internal/tz"
)

const (
	maxBodyBytes = 1 << 20

	defaultUpcoming = 5
	maxUpcoming     = 100
)

// errBadRequest marks malformed requests (bad JSON, bad dates).
var errBadRequest = errors.New("bad request")

// Server provides the HTTP API over the planner service.
type Server struct {
	cfg   *config.Config
	svc   *planner.Service
	zones tz.Resolver
	mux   *http.ServeMux

	// now is swapped in tests.
	now func() time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, svc *planner.Service, zones tz.Resolver) *Server {
	s := &Server{
		cfg:   cfg,
		svc:   svc,
		zones: zones,
		mux:   http.NewServeMux(),
		now:   time.Now,
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

// basicAuthEnabled reports whether HTTP Basic Auth is configured. An empty
// username or password counts as disabled.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
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
			w.Header().Set("WWW-Authenticate", `Basic realm="dayplan", charset="UTF-8"`)
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
	s.mux.HandleFunc("GET /api/timezones", s.handleTimezones)

	s.mux.HandleFunc("GET /api/days/{date}", s.handleGetDay)
	s.mux.HandleFunc("PUT /api/days/{date}", s.handlePutDay)
	s.mux.HandleFunc("GET /api/weeks/{date}", s.handleGetWeek)
	s.mux.HandleFunc("POST /api/days/{date}/tasks", s.handleCreateTask)
	s.mux.HandleFunc("PUT /api/days/{date}/tasks/{id}", s.handleUpdateTask)
	s.mux.HandleFunc("DELETE /api/days/{date}/tasks/{id}", s.handleDeleteTask)
	s.mux.HandleFunc("PUT /api/days/{date}/journal", s.handleJournal)

	s.mux.HandleFunc("POST /api/occurrences/edit", s.handleOccurrence(series.ActionEdit))
	s.mux.HandleFunc("POST /api/occurrences/delete", s.handleOccurrence(series.ActionDelete))

	s.mux.HandleFunc("GET /api/rules", s.handleRules)
	s.mux.HandleFunc("GET /api/rules/{id}/upcoming", s.handleUpcoming)
	s.mux.HandleFunc("GET /api/calendar.ics", s.handleCalendar)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type timezonesResponse struct {
	// Local is the concrete zone that "local" stands for.
	Local     string   `json:"local"`
	Timezones []string `json:"timezones"`
}

func (s *Server) handleTimezones(w http.ResponseWriter, _ *http.Request) {
	local, err := s.zones.Name(tz.Local)
	if err != nil {
		s.fail(w, err)
		return
	}
	zones := append([]string{tz.Local}, s.cfg.Timezones...)
	writeJSON(w, http.StatusOK, timezonesResponse{Local: local, Timezones: zones})
}

func (s *Server) handleGetDay(w http.ResponseWriter, r *http.Request) {
	day, err := pathDay(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	rec, err := s.svc.LoadDay(r.Context(), day, viewerZone(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePutDay(w http.ResponseWriter, r *http.Request) {
	day, err := pathDay(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var rec model.DayRecord
	if err := decodeJSON(w, r, &rec); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.svc.SaveDay(r.Context(), day, rec); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetWeek(w http.ResponseWriter, r *http.Request) {
	day, err := pathDay(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	week, err := s.svc.LoadWeek(r.Context(), day, viewerZone(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, week)
}

type createTaskRequest struct {
	model.TaskTemplate
	Repeat planner.Repeat `json:"repeat"`
	// Timezone is the viewer zone the task was entered in.
	Timezone string `json:"tz"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	day, err := pathDay(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var req createTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	created, err := s.svc.CreateTask(r.Context(), day, req.TaskTemplate, req.Repeat, req.Timezone)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type updateTaskRequest struct {
	model.TaskTemplate
	// ToDate moves the task to another day when set.
	ToDate *model.CalendarDay `json:"toDate,omitempty"`
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	day, err := pathDay(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var req updateTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	to := day
	if req.ToDate != nil {
		to = *req.ToDate
	}
	task, err := s.svc.UpdateTask(r.Context(), day, to, model.Task{ID: r.PathValue("id"), TaskTemplate: req.TaskTemplate})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	day, err := pathDay(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.svc.DeleteTask(r.Context(), day, r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type journalRequest struct {
	GoodThings   model.GoodThings   `json:"goodThings"`
	Improvements model.Improvements `json:"improvements"`
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	day, err := pathDay(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var req journalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, err)
		return
	}
	rec, err := s.svc.UpdateJournal(r.Context(), day, req.GoodThings, req.Improvements)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type occurrenceRequest struct {
	Occurrence model.Task          `json:"occurrence"`
	Scope      string              `json:"scope"`
	Edited     *model.TaskTemplate `json:"edited,omitempty"`
	// Date is the day the occurrence was viewed on, in Timezone.
	Date     model.CalendarDay `json:"date"`
	Timezone string            `json:"tz"`
}

type occurrenceResponse struct {
	Rules      []model.RecurrenceRule `json:"rules"`
	Standalone *model.Task            `json:"standalone,omitempty"`
	Created    string                 `json:"created,omitempty"`
}

func (s *Server) handleOccurrence(action series.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req occurrenceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.fail(w, err)
			return
		}
		scope, err := series.ParseScope(req.Scope)
		if err != nil {
			s.fail(w, fmt.Errorf("%w: %w", errBadRequest, err))
			return
		}
		if req.Date.IsZero() {
			s.fail(w, fmt.Errorf("%w: date is required", errBadRequest))
			return
		}

		sreq := series.Request{
			Scope:      scope,
			Occurrence: req.Occurrence,
			TargetDay:  req.Date,
			ViewerZone: req.Timezone,
		}
		var plan series.Plan
		if action == series.ActionEdit {
			if req.Edited == nil {
				s.fail(w, fmt.Errorf("%w: edited fields are required", errBadRequest))
				return
			}
			sreq.Edited = *req.Edited
			plan, err = s.svc.EditOccurrence(r.Context(), sreq)
		} else {
			plan, err = s.svc.DeleteOccurrence(r.Context(), sreq)
		}
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, occurrenceResponse{Rules: plan.Rules, Standalone: plan.Standalone, Created: plan.Created})
	}
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.svc.Rules(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	count := parseIntDefault(r.URL.Query().Get("count"), defaultUpcoming)
	if count <= 0 {
		count = defaultUpcoming
	}
	if count > maxUpcoming {
		count = maxUpcoming
	}
	starts, err := s.svc.Upcoming(r.Context(), r.PathValue("id"), count)
	if err != nil {
		s.fail(w, err)
		return
	}
	out := make([]string, 0, len(starts))
	for _, t := range starts {
		out = append(out, t.Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	home, err := s.zones.Resolve(tz.Local)
	if err != nil {
		s.fail(w, err)
		return
	}
	today := model.DayOf(s.now().In(home))

	q := r.URL.Query()
	from, err := queryDay(q.Get("from"), today)
	if err != nil {
		s.fail(w, err)
		return
	}
	to, err := queryDay(q.Get("to"), from.AddDays(s.cfg.Export.Days-1))
	if err != nil {
		s.fail(w, err)
		return
	}

	body, err := s.svc.ExportICS(r.Context(), from, to)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func pathDay(r *http.Request) (model.CalendarDay, error) {
	day, err := model.ParseDay(r.PathValue("date"))
	if err != nil {
		return model.CalendarDay{}, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return day, nil
}

func queryDay(v string, def model.CalendarDay) (model.CalendarDay, error) {
	if v == "" {
		return def, nil
	}
	day, err := model.ParseDay(v)
	if err != nil {
		return model.CalendarDay{}, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return day, nil
}

// viewerZone reads ?tz=, defaulting to "local".
func viewerZone(r *http.Request) string {
	if z := r.URL.Query().Get("tz"); z != "" {
		return z
	}
	return tz.Local
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, tz.ErrUnknownTimezone),
		errors.Is(err, model.ErrInvalidTask),
		errors.Is(err, recurrence.ErrInvalidRule),
		errors.Is(err, series.ErrNotOccurrence),
		errors.Is(err, planner.ErrInvalidRange),
		errors.Is(err, store.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, planner.ErrTaskNotFound),
		errors.Is(err, series.ErrRuleNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error. Server-side failures are logged and
// reported without detail.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		appLog.Error("api request failed", err)
		msg := "internal error"
		if errors.Is(err, series.ErrMutationFailed) {
			msg = series.ErrMutationFailed.Error()
		}
		writeError(w, status, msg)
		return
	}
	writeError(w, status, err.Error())
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
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
