// Package web serves the browser studio: uploads, batch submission, live
// progress over a websocket and contact sheet downloads.
package web

import (
	"encoding/json"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"imaginova-studio/internal/credential"
	"imaginova-studio/internal/jobs"
	"imaginova-studio/internal/session"
)

const (
	cookieName     = "imaginova_session"
	maxUploadBytes = 40 << 20
)

// RunnerFactory binds a batch runner to the key source of one request.
type RunnerFactory func(keys credential.Source) jobs.BatchRunner

type Options struct {
	Runners  RunnerFactory
	Jobs     *jobs.Registry
	Sessions *session.Store

	// ServerKeys is consulted when the browser session has no key of its own.
	ServerKeys credential.Source
	Static     fs.FS
	Logger     *slog.Logger
}

type Server struct {
	runners    RunnerFactory
	jobs       *jobs.Registry
	sessions   *session.Store
	serverKeys credential.Source
	static     fs.FS
	logger     *slog.Logger
	router     *mux.Router
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		runners:    opts.Runners,
		jobs:       opts.Jobs,
		sessions:   opts.Sessions,
		serverKeys: opts.ServerKeys,
		static:     opts.Static,
		logger:     logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/catalog", s.handleCatalog).Methods(http.MethodGet)
	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/session/key", s.handleSessionKey).Methods(http.MethodPost)
	api.HandleFunc("/batches", s.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/batches/{id}", s.handleBatch).Methods(http.MethodGet)
	api.HandleFunc("/batches/{id}/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/batches/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	api.HandleFunc("/batches/{id}/contact-sheet", s.handleContactSheet).Methods(http.MethodGet)

	if s.static != nil {
		r.PathPrefix("/").Handler(http.FileServer(http.FS(s.static)))
	}
	return r
}

func (s *Server) Handler() http.Handler {
	return withLogging(s.router, s.logger)
}

// sessionID returns the caller's session id, issuing a cookie when absent.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withLogging(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("http", "method", r.Method, "path", r.URL.Path, "dur_ms", time.Since(start).Milliseconds())
	})
}
