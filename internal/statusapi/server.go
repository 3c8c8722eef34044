// Package statusapi implements the optional Core -> UI interface
// (spec.md §6.4): a chi-routed HTTP API over a Session's sampler state
// and per-signal buffers, plus a minimal html/template status dashboard.
// It renders core semantics; it never changes them.
package statusapi

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ocdscope/internal/profiles"
	"ocdscope/internal/sampler"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Server is the status/control HTTP surface. It is additive: every
// handler reads or mutates through Session / profiles.Store, neither of
// which depend on this package.
type Server struct {
	session  *Session
	store    profiles.Store
	log      *slog.Logger
	router   *chi.Mux
	template *template.Template

	// newSampler builds and attaches a sampler from a profile's session
	// config; supplied by the caller (cmd/ocdscope) so this package never
	// needs to import the three concrete backends.
	newSampler func(profiles.Profile) (sampler.Sampler, error)
}

// New builds a Server. newSampler is invoked by POST /api/profiles/{id}/start
// to construct the backend named by the stored profile's Method.
func New(session *Session, store profiles.Store, log *slog.Logger, newSampler func(profiles.Profile) (sampler.Sampler, error)) *Server {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"printf": fmt.Sprintf,
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		panic(err)
	}

	s := &Server{
		session:    session,
		store:      store,
		log:        log,
		router:     chi.NewRouter(),
		template:   tmpl,
		newSampler: newSampler,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/", s.handleDashboard)
	s.router.Get("/static/*", s.handleStatic)

	s.router.Get("/api/status", s.handleStatus)
	s.router.Get("/api/signals", s.handleSignals)
	s.router.Post("/api/signals/active", s.handleSetActiveSignals)
	s.router.Get("/api/buffers/{id}", s.handleBuffer)

	s.router.Post("/api/control/pause", s.handleControl(func() bool { return s.session.Pause() }))
	s.router.Post("/api/control/resume", s.handleControl(func() bool { return s.session.Resume() }))
	s.router.Post("/api/control/stop", s.handleControl(func() bool { return s.session.Stop() }))

	s.router.Get("/api/profiles", s.handleListProfiles)
	s.router.Post("/api/profiles", s.handleCreateProfile)
	s.router.Put("/api/profiles/{id}", s.handleUpdateProfile)
	s.router.Delete("/api/profiles/{id}", s.handleDeleteProfile)
	s.router.Post("/api/profiles/{id}/start", s.handleStartProfile)
}

// Router exposes the underlying chi router, e.g. for tests or for
// embedding behind another mux.
func (s *Server) Router() http.Handler { return s.router }

// ListenAndServe starts the HTTP server on the given port.
func (s *Server) ListenAndServe(port int) error {
	return http.ListenAndServe(":"+strconv.Itoa(port), s.router)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if err := s.template.ExecuteTemplate(w, "dashboard.html", s.session.Status()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.StripPrefix("/static/", http.FileServer(http.FS(sub))).ServeHTTP(w, r)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Signals())
}

func (s *Server) handleSetActiveSignals(w http.ResponseWriter, r *http.Request) {
	var ids []sampler.SignalID
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.session.SetActiveSignals(ids) {
		http.Error(w, "no sampler attached", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// BufferResponse is the JSON shape returned by GET /api/buffers/{id}.
type BufferResponse struct {
	SignalID      sampler.SignalID `json:"signal_id"`
	TMin          float64          `json:"t_min"`
	TMax          float64          `json:"t_max"`
	HasData       bool             `json:"has_data"`
	UsedBytes     int64            `json:"used_bytes"`
	CapacityBytes int64            `json:"capacity_bytes"`
	Points        []point          `json:"points"`
	QuantileP50   float64          `json:"quantile_p50"`
	QuantileP99   float64          `json:"quantile_p99"`
	DigestCount   uint64           `json:"digest_count"`
}

type point struct {
	T float64 `json:"t"`
	Y float64 `json:"y"`
}

func (s *Server) handleBuffer(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id64, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	id := sampler.SignalID(id64)

	buf := s.session.Buffer(id)
	if buf == nil {
		http.Error(w, "unknown signal id", http.StatusNotFound)
		return
	}

	from := queryFloat(r, "from", math.Inf(-1))
	to := queryFloat(r, "to", math.Inf(1))
	n := queryInt(r, "n", 0)
	scale := queryFloat(r, "scale", 1)

	tMin, tMax, hasData := buf.TimeBounds()
	used, capacity := buf.MemoryFootprint()

	resp := BufferResponse{
		SignalID:      id,
		TMin:          tMin,
		TMax:          tMax,
		HasData:       hasData,
		UsedBytes:     used,
		CapacityBytes: capacity,
		QuantileP50:   buf.Quantile(0.5),
		QuantileP99:   buf.Quantile(0.99),
		DigestCount:   buf.Count(),
	}

	if n > 0 {
		for _, p := range buf.PlotPointsDecimated(from, to, n, scale) {
			resp.Points = append(resp.Points, point{T: p.T, Y: p.Y})
		}
	} else {
		for _, p := range buf.PlotPoints(from, to, scale) {
			resp.Points = append(resp.Points, point{T: p.T, Y: p.Y})
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleControl(fn func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !fn() {
			http.Error(w, "no sampler attached", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var p profiles.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if p.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	id, err := s.store.Create(&p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	p.ID = id
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var p profiles.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.ID = id
	if err := s.store.Update(&p); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.store.Delete(id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStartProfile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	p, err := s.store.Get(id)
	if err != nil {
		http.Error(w, "profile not found", http.StatusNotFound)
		return
	}
	smp, err := s.newSampler(p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.session.Attach(smp, p.AutoTruncate, p.KeepLastSeconds)
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func queryFloat(r *http.Request, key string, def float64) float64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
