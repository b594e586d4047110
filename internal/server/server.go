package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazz-dev/checkhttp/internal/checker"
	"github.com/hazz-dev/checkhttp/internal/config"
	"github.com/hazz-dev/checkhttp/internal/scheduler"
	"github.com/hazz-dev/checkhttp/internal/storage"
)

// ServerStore defines the storage queries the server needs.
type ServerStore interface {
	AllLatest(ctx context.Context) ([]storage.Run, error)
	LatestRun(ctx context.Context, name string) (*storage.Run, error)
	History(ctx context.Context, name string, limit, offset int) ([]storage.Run, int, error)
	OkPercent(ctx context.Context, name string, last int) (float64, error)
}

// Runner runs a configured check on demand.
type Runner interface {
	RunNow(ctx context.Context, name string) (checker.Result, error)
}

// Server holds the chi router and its dependencies.
type Server struct {
	store   ServerStore
	defs    config.Config
	runner  Runner
	limiter *rateLimiter
	hub     *hub
	router  chi.Router
	logger  *slog.Logger
}

// New creates a new Server and registers all routes. Pass nil logger to use
// the default logger.
func New(store ServerStore, checks []config.Check, runner Runner, cfg config.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	rps, burst := cfg.RateLimitPerSec, cfg.RateLimitBurst
	if rps <= 0 {
		rps = config.DefaultRateLimitPerSec
	}
	if burst <= 0 {
		burst = config.DefaultRateLimitBurst
	}
	s := &Server{
		store:   store,
		defs:    config.Config{Checks: checks},
		runner:  runner,
		limiter: newRateLimiter(rps, burst),
		hub:     newHub(),
		router:  chi.NewRouter(),
		logger:  logger,
	}
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/checks", s.handleListChecks)
	r.Get("/api/checks/{name}", s.handleGetCheck)
	r.Get("/api/checks/{name}/history", s.handleGetCheckHistory)
	r.With(s.limiter.middleware).Post("/api/checks/{name}/run", s.handleRunCheck)
	r.Get("/api/stream", s.handleStream)
}

// --- Response helpers ---

type envelope struct {
	Data  any    `json:"data"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// statePending is reported for checks that have not run yet.
const statePending = "PENDING"

type checkDetail struct {
	Name        string     `json:"name"`
	URL         string     `json:"url"`
	Interval    string     `json:"interval"`
	State       string     `json:"state"`
	Summary     string     `json:"summary"`
	ResponseMs  int64      `json:"response_ms"`
	OkPct       float64    `json:"ok_percent"`
	LastChecked *time.Time `json:"last_checked"`
}

func newCheckDetail(chk config.Check, latest *storage.Run) checkDetail {
	d := checkDetail{
		Name:     chk.Name,
		URL:      chk.URL,
		Interval: chk.Interval.Duration.String(),
		State:    statePending,
	}
	if latest != nil {
		d.State = latest.State
		d.Summary = latest.Summary
		d.ResponseMs = latest.ResponseMs
		t := latest.CheckedAt
		d.LastChecked = &t
	}
	return d
}

func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	latestRuns, err := s.store.AllLatest(r.Context())
	if err != nil {
		s.logger.Error("AllLatest", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	byCheck := make(map[string]storage.Run, len(latestRuns))
	for _, run := range latestRuns {
		byCheck[run.CheckName] = run
	}

	details := make([]checkDetail, 0, len(s.defs.Checks))
	for _, chk := range s.defs.Checks {
		var latest *storage.Run
		if run, ok := byCheck[chk.Name]; ok {
			latest = &run
		}
		d := newCheckDetail(chk, latest)
		if latest != nil {
			pct, _ := s.store.OkPercent(r.Context(), chk.Name, 100)
			d.OkPct = pct
		}
		details = append(details, d)
	}

	writeJSON(w, http.StatusOK, details)
}

type checkDetailResponse struct {
	checkDetail
	RecentRuns []storage.Run `json:"recent_runs"`
}

func (s *Server) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	chk, ok := s.defs.Find(name)
	if !ok {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}

	latest, err := s.store.LatestRun(r.Context(), name)
	if err != nil {
		s.logger.Error("LatestRun", "check", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	history, _, err := s.store.History(r.Context(), name, 10, 0)
	if err != nil {
		s.logger.Error("History", "check", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	d := newCheckDetail(chk, latest)
	d.OkPct, _ = s.store.OkPercent(r.Context(), name, 100)

	writeJSON(w, http.StatusOK, checkDetailResponse{
		checkDetail: d,
		RecentRuns:  history,
	})
}

type historyResponse struct {
	Runs  []storage.Run `json:"runs"`
	Total int           `json:"total"`
}

func (s *Server) handleGetCheckHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if _, ok := s.defs.Find(name); !ok {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}

	const maxLimit = 1000

	limit := 50
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		if n > maxLimit {
			n = maxLimit
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset parameter")
			return
		}
		offset = n
	}

	runs, total, err := s.store.History(r.Context(), name, limit, offset)
	if err != nil {
		s.logger.Error("History", "check", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}

	writeJSON(w, http.StatusOK, historyResponse{
		Runs:  runs,
		Total: total,
	})
}

// runDetail is a freshly completed run, as returned by the run endpoint and
// pushed to stream subscribers.
type runDetail struct {
	Check      string    `json:"check"`
	State      string    `json:"state"`
	ExitCode   int       `json:"exit_code"`
	Summary    string    `json:"summary"`
	Details    []string  `json:"details"`
	Perfdata   []string  `json:"perfdata"`
	Output     string    `json:"output"`
	ResponseMs int64     `json:"response_ms"`
	CheckedAt  time.Time `json:"checked_at"`
}

func newRunDetail(result checker.Result) runDetail {
	return runDetail{
		Check:      result.CheckName,
		State:      result.State.String(),
		ExitCode:   result.Report.ExitCode(),
		Summary:    result.Report.Headline(),
		Details:    nonNil(result.Report.Details),
		Perfdata:   nonNil(result.Report.Perfdata),
		Output:     result.Output(),
		ResponseMs: result.ResponseTime.Milliseconds(),
		CheckedAt:  result.CheckedAt.UTC(),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *Server) handleRunCheck(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if _, ok := s.defs.Find(name); !ok {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "on-demand runs are disabled")
		return
	}

	result, err := s.runner.RunNow(r.Context(), name)
	if errors.Is(err, scheduler.ErrUnknownCheck) {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}
	if err != nil {
		s.logger.Error("RunNow", "check", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, newRunDetail(result))
}

// Publish pushes a completed run to all stream subscribers.
func (s *Server) Publish(result checker.Result) {
	data, err := json.Marshal(newRunDetail(result))
	if err != nil {
		s.logger.Error("marshaling run", "check", result.CheckName, "error", err)
		return
	}
	s.hub.broadcast(data)
}

// Subscribers returns the number of connected stream clients.
func (s *Server) Subscribers() int {
	return s.hub.count()
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade take over the connection.
func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(sw.ResponseWriter).Hijack()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		if strings.HasPrefix(r.URL.Path, "/api/stream") {
			s.logger.Info("stream closed", "remote", r.RemoteAddr, "duration", time.Since(start))
			return
		}
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
