// ABOUTME: In-memory stand-in for the templates and users backends.
// ABOUTME: Busy and delay switches let tests exercise failure and timeout paths.

package stub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBusyDelay is reported by the busy control endpoint when none was set.
const DefaultBusyDelay = 5.0

// BusyConfig is the body of the busy control endpoint.
type BusyConfig struct {
	Busy  bool     `json:"busy"`
	Delay *float64 `json:"delay,omitempty"`
}

// Server serves fixture data for both backends.
type Server struct {
	logger *slog.Logger

	mu        sync.RWMutex
	busy      bool
	busyDelay float64
	delay     time.Duration

	templates map[int]Template
	users     map[int]User

	requests atomic.Int64
	mux      *http.ServeMux
}

// New creates a stub server loaded with the default fixtures.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger:    logger,
		busyDelay: DefaultBusyDelay,
		templates: make(map[int]Template),
		users:     make(map[int]User),
		mux:       http.NewServeMux(),
	}
	for _, t := range defaultTemplates() {
		s.templates[t.TemplateID] = t
	}
	for _, u := range defaultUsers() {
		s.users[u.UserID] = u
	}

	s.mux.HandleFunc("GET /templates", s.data(s.handleTemplateList))
	s.mux.HandleFunc("GET /templates/{id}", s.data(s.handleTemplateDetail))
	s.mux.HandleFunc("GET /users", s.data(s.handleUserList))
	s.mux.HandleFunc("GET /users/{id}", s.data(s.handleUserDetail))
	s.mux.HandleFunc("GET /login", s.data(s.handleLogin))
	s.mux.HandleFunc("GET /logout", s.data(s.handleLogout))

	s.mux.HandleFunc("GET /stub/config/busy", s.handleGetBusy)
	s.mux.HandleFunc("POST /stub/config/busy", s.handleSetBusy)
	s.mux.HandleFunc("POST /stub/config/delay", s.handleSetDelay)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// SetBusy toggles busy mode. While busy every data endpoint answers 503.
func (s *Server) SetBusy(busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = busy
}

// SetDelay sets how long data endpoints wait before answering.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Requests returns how many data requests have been received.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

// data wraps a data endpoint with the busy check and response delay.
func (s *Server) data(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)

		s.mu.RLock()
		busy, delay := s.busy, s.delay
		s.mu.RUnlock()

		if busy {
			writeDetail(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
			return
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-r.Context().Done():
				s.logger.Debug("stub request abandoned by client", "path", r.URL.Path)
				return
			}
		}
		h(w, r)
	}
}

func (s *Server) handleTemplateList(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := TemplateList{TemplateList: make([]Template, 0, len(s.templates))}
	for _, id := range sortedIDs(s.templates) {
		t := s.templates[id]
		t.Body = ""
		list.TemplateList = append(list.TemplateList, t)
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleTemplateDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.RLock()
	t, found := s.templates[id]
	s.mu.RUnlock()

	if !found {
		writeDetail(w, http.StatusNotFound, "Template not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUserList(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := UserList{UserList: make([]User, 0, len(s.users))}
	for _, id := range sortedIDs(s.users) {
		list.UserList = append(list.UserList, s.users[id])
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleUserDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.RLock()
	u, found := s.users[id]
	s.mu.RUnlock()

	if !found {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "token": "dummy_token_12345"})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetBusy(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{"busy": s.busy, "delay": s.busyDelay})
}

func (s *Server) handleSetBusy(w http.ResponseWriter, r *http.Request) {
	var cfg BusyConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid busy config: "+err.Error())
		return
	}

	s.mu.Lock()
	s.busy = cfg.Busy
	s.busyDelay = DefaultBusyDelay
	if cfg.Delay != nil && *cfg.Delay != 0 {
		s.busyDelay = *cfg.Delay
	}
	resp := map[string]any{"busy": s.busy, "delay": s.busyDelay}
	s.mu.Unlock()

	s.logger.Info("stub busy state changed", "busy", cfg.Busy)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetDelay(w http.ResponseWriter, r *http.Request) {
	secs, err := strconv.ParseFloat(r.URL.Query().Get("delay"), 64)
	if err != nil || secs < 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "delay must be a non-negative number of seconds")
		return
	}

	s.SetDelay(time.Duration(secs * float64(time.Second)))
	s.logger.Info("stub response delay changed", "delay_seconds", secs)
	writeJSON(w, http.StatusOK, map[string]float64{"delay": secs})
}

func sortedIDs[T any](m map[int]T) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// pathID parses the {id} path segment, answering 422 when it is not an integer.
func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "id must be an integer")
		return 0, false
	}
	return id, true
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
