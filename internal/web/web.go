package web

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"kmdcal/internal/config"
	"kmdcal/internal/gcal"
	"kmdcal/internal/ics"
	appLog "kmdcal/internal/log"
	"kmdcal/internal/model"
	"kmdcal/internal/refresh"
	"kmdcal/internal/schedule"
	"kmdcal/internal/slothint"
	"kmdcal/internal/store"
)

// maxBodyBytes bounds uploaded pages and command bodies.
const maxBodyBytes = 8 << 20

// Pages is the refresher surface the API reads from.
type Pages interface {
	Pages() []refresh.PageState
	Events() []model.ResolvedEvent
	RunOnce(ctx context.Context) []refresh.PageState
	SlotPayload(ctx context.Context) (*slothint.Payload, error)
	SaveSlotPayload(ctx context.Context, p *slothint.Payload) error
}

// LedgerReader is the read side of the sync ledger.
type LedgerReader interface {
	Recent(ctx context.Context, limit int) ([]store.LedgerEntry, error)
	ByFingerprint(ctx context.Context, fp string) ([]store.LedgerEntry, error)
}

// Deps are the components behind the API. Nil members disable their routes
// with 503.
type Deps struct {
	Pages  Pages
	Syncer gcal.Syncer
	Ledger LedgerReader
}

// Server provides the HTTP API for extracted events and calendar sync.
type Server struct {
	cfg    *config.Config
	deps   Deps
	router *mux.Router
	loc    *time.Location

	// extracted documents keyed by a hash of the uploaded page
	extractCache *expirable.LRU[string, refresh.Document]
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:          cfg,
		deps:         deps,
		router:       mux.NewRouter(),
		loc:          resolveLocationOrLocal(cfg.Timezone),
		extractCache: expirable.NewLRU[string, refresh.Document](64, nil, 10*time.Minute),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
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
			w.Header().Set("WWW-Authenticate", `Basic realm="kmdcal", charset="UTF-8"`)
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

// Serve listens on cfg.Listen until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
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
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/pages", s.handlePages).Methods(http.MethodGet)
	api.HandleFunc("/pages/{id}/events", s.handlePageEvents).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/events.ics", s.handleEventsICS).Methods(http.MethodGet)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/extract", s.handleExtract).Methods(http.MethodPost)
	api.HandleFunc("/commands", s.handleCommand).Methods(http.MethodPost)
	api.HandleFunc("/ledger", s.handleLedger).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventDTO adds the calendar deep link and zoned times to an event.
type eventDTO struct {
	model.ResolvedEvent
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
	Link    string `json:"link"`
}

// eventsResponse is the JSON response shape for event listings.
type eventsResponse struct {
	Events          []eventDTO `json:"events"`
	DisplayTimeZone string     `json:"display_timezone"`
}

func (s *Server) eventsResponse(events []model.ResolvedEvent) eventsResponse {
	dtos := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		dtos = append(dtos, eventDTO{
			ResolvedEvent: ev,
			StartAt:       ev.Start.WithOffset(s.loc),
			EndAt:         ev.End.WithOffset(s.loc),
			Link:          schedule.TemplateURL(ev),
		})
	}
	return eventsResponse{Events: dtos, DisplayTimeZone: s.loc.String()}
}

func (s *Server) handlePages(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Pages == nil {
		writeError(w, http.StatusServiceUnavailable, "page refresh unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": s.deps.Pages.Pages()})
}

func (s *Server) handlePageEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pages == nil {
		writeError(w, http.StatusServiceUnavailable, "page refresh unavailable")
		return
	}
	id := mux.Vars(r)["id"]
	for _, st := range s.deps.Pages.Pages() {
		if st.ID == id {
			writeJSON(w, http.StatusOK, s.eventsResponse(st.Events))
			return
		}
	}
	writeError(w, http.StatusNotFound, "unknown page")
}

// handleEvents returns the events of every configured page.
//
// GET /api/events?inferred=0 omits events timed from slot hints.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pages == nil {
		writeError(w, http.StatusServiceUnavailable, "page refresh unavailable")
		return
	}
	events := s.deps.Pages.Events()
	if r.URL.Query().Get("inferred") == "0" {
		kept := events[:0:0]
		for _, ev := range events {
			if !ev.Inferred {
				kept = append(kept, ev)
			}
		}
		events = kept
	}
	writeJSON(w, http.StatusOK, s.eventsResponse(events))
}

func (s *Server) handleEventsICS(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Pages == nil {
		writeError(w, http.StatusServiceUnavailable, "page refresh unavailable")
		return
	}
	var buf bytes.Buffer
	err := ics.Export(&buf, s.deps.Pages.Events(), ics.Options{
		Name:     "kmdcal",
		TimeZone: s.cfg.Timezone,
		Location: s.loc,
	})
	if err != nil {
		appLog.Error("ics export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to export events")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pages == nil {
		writeError(w, http.StatusServiceUnavailable, "page refresh unavailable")
		return
	}
	states := s.deps.Pages.RunOnce(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"pages": states})
}

// extractResponse is the JSON response shape for /api/extract.
type extractResponse struct {
	eventsResponse
	Course   model.CourseContext `json:"course"`
	Homepage bool                `json:"homepage,omitempty"`
	Courses  int                 `json:"courses,omitempty"`
	Cached   bool                `json:"cached,omitempty"`
}

// handleExtract scans an uploaded page. A course overview page replaces
// the slot cache; any other page yields its events.
//
// POST /api/extract?course=NAME&location=ROOM with the HTML as body.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, "empty page")
		return
	}

	q := r.URL.Query()
	override := model.CourseContext{Name: q.Get("course"), Location: q.Get("location")}
	if override.Name == "" {
		override.Name = s.cfg.CourseName
	}
	if override.Location == "" {
		override.Location = s.cfg.CourseLocation
	}

	h := sha256.New()
	h.Write(body)
	h.Write([]byte("\x00" + override.Name + "\x00" + override.Location))
	key := hex.EncodeToString(h.Sum(nil))
	if doc, ok := s.extractCache.Get(key); ok {
		s.writeExtract(w, doc, true)
		return
	}

	var payload *slothint.Payload
	if s.deps.Pages != nil {
		if payload, err = s.deps.Pages.SlotPayload(r.Context()); err != nil {
			appLog.Error("slot cache load failed", err)
		}
	}

	doc, err := refresh.Extract(body, override, payload, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if doc.Homepage {
		if doc.Payload == nil {
			writeError(w, http.StatusUnprocessableEntity, "course overview lists no courses")
			return
		}
		if s.deps.Pages == nil {
			writeError(w, http.StatusServiceUnavailable, "slot cache unavailable")
			return
		}
		if err := s.deps.Pages.SaveSlotPayload(r.Context(), doc.Payload); err != nil {
			appLog.Error("slot cache save failed", err)
			writeError(w, http.StatusInternalServerError, "failed to save slot cache")
			return
		}
		// Cached extractions were computed with the old hints.
		s.extractCache.Purge()
	} else {
		s.extractCache.Add(key, doc)
	}
	s.writeExtract(w, doc, false)
}

func (s *Server) writeExtract(w http.ResponseWriter, doc refresh.Document, cached bool) {
	resp := extractResponse{
		eventsResponse: s.eventsResponse(doc.Events),
		Course:         doc.Course,
		Homepage:       doc.Homepage,
		Cached:         cached,
	}
	if doc.Payload != nil {
		resp.Courses = len(doc.Payload.Courses)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCommand runs a CREATE_EVENTS or DELETE_EVENTS command. Item
// failures are part of a 200 response; only malformed commands fail.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if s.deps.Syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "calendar sync unavailable")
		return
	}
	cmd, err := gcal.DecodeCommand(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// A started batch runs to completion even if the client goes away.
	res, err := gcal.Dispatch(context.WithoutCancel(r.Context()), s.deps.Syncer, cmd)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	appLog.Info("api command done", "type", cmd.Type, "batch", res.BatchID, "ok", res.OK, "succeeded", res.Succeeded(), "errors", len(res.Errors))
	writeJSON(w, http.StatusOK, res)
}

// handleLedger returns recent sync history.
//
// GET /api/ledger?limit=50 or /api/ledger?fp=FINGERPRINT
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger unavailable")
		return
	}
	q := r.URL.Query()

	var (
		entries []store.LedgerEntry
		err     error
	)
	if fp := q.Get("fp"); fp != "" {
		entries, err = s.deps.Ledger.ByFingerprint(r.Context(), fp)
	} else {
		limit := parseIntDefault(q.Get("limit"), 50)
		if limit <= 0 || limit > 1000 {
			limit = 50
		}
		entries, err = s.deps.Ledger.Recent(r.Context(), limit)
	}
	if err != nil {
		appLog.Error("ledger read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read ledger")
		return
	}
	if entries == nil {
		entries = []store.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
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

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
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
