// Package api exposes the magazine service over HTTP with chi. Responses are
// JSON except for image bytes.
package api

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/tendant/college-magazine/pkg/magazine"
)

// Options configures the HTTP layer.
type Options struct {
	Admin            magazine.AdminCredentials
	Sessions         *Sessions // nil signs with a random per-process key
	MaxContentLength int64
	RequestTimeout   time.Duration
	Logger           *slog.Logger
}

// Server wraps the magazine service for HTTP access
type Server struct {
	svc      *magazine.Service
	admin    magazine.AdminCredentials
	sessions *Sessions
	maxBody  int64
	timeout  time.Duration
	logger   *slog.Logger
}

// NewServer creates the HTTP layer.
func NewServer(svc *magazine.Service, opts Options) *Server {
	s := &Server{
		svc:      svc,
		admin:    opts.Admin,
		sessions: opts.Sessions,
		maxBody:  opts.MaxContentLength,
		timeout:  opts.RequestTimeout,
		logger:   opts.Logger,
	}
	if s.logger == nil {
		s.logger = svc.Logger()
	}
	if s.maxBody <= 0 {
		s.maxBody = 16 << 20
	}
	if s.timeout <= 0 {
		s.timeout = 60 * time.Second
	}
	if s.sessions == nil {
		// Sessions signed with a per-process key do not survive a restart.
		s.sessions = NewSessions(rand.Text(), 24*time.Hour, false)
	}
	return s
}

// Routes sets up the HTTP routes
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(s.limitBody)
	r.Use(s.sessions.Middleware)

	r.Get("/health", s.handleHealth)

	for _, kind := range magazine.Kinds {
		kind := kind
		r.Route("/"+string(kind), func(r chi.Router) {
			r.Get("/", s.handleList(kind))
			r.Get("/image/{id}", s.handleImage)
			r.Get("/{id}", s.handleGet(kind))
			if kind == magazine.KindEvent {
				r.With(RequireStudent).Post("/register/{id}", s.handleRegisterForEvent)
			}
		})
	}

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", s.handleAdminLogin)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/dashboard", s.handleAdminDashboard)
			r.Get("/events/{id}/registrations", s.handleEventRegistrations)
			for _, kind := range magazine.Kinds {
				kind := kind
				r.Post("/"+string(kind), s.handleCreate(kind))
				r.Put("/"+string(kind)+"/{id}", s.handleUpdate(kind))
				r.Post("/"+string(kind)+"/{id}", s.handleUpdate(kind))
				r.Delete("/"+string(kind)+"/{id}", s.handleDelete(kind))
			}
		})
	})

	r.Route("/student", func(r chi.Router) {
		r.Post("/register", s.handleStudentRegister)
		r.Post("/login", s.handleStudentLogin)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(RequireStudent)
			r.Get("/dashboard", s.handleStudentDashboard)
			r.Get("/my-events", s.handleMyEvents)
		})
	})

	return r
}

// limitBody caps request bodies at MAX_CONTENT_LENGTH.
func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > s.maxBody {
			writeMessage(w, r, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// ErrorResponse is the body of every non-2xx JSON response except event
// registration.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RegistrationResult is the body returned by event registration.
type RegistrationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: msg})
}

func writeResult(w http.ResponseWriter, r *http.Request, status int, ok bool, msg string) {
	render.Status(r, status)
	render.JSON(w, r, RegistrationResult{Success: ok, Message: msg})
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch magazine.KindOf(err) {
	case magazine.KindValidation:
		return http.StatusBadRequest
	case magazine.KindNotFound:
		return http.StatusNotFound
	case magazine.KindConflict:
		return http.StatusConflict
	}
	if errors.Is(err, magazine.ErrInvalidCredentials) {
		return http.StatusUnauthorized
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// writeError logs storage failures and answers with the mapped status.
// Internal details are not echoed to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(msg, "error", err, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
		writeMessage(w, r, status, msg)
		return
	}
	s.logger.Debug(msg, "error", err, "status", status)
	writeMessage(w, r, status, err.Error())
}
