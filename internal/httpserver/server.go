package httpserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/blackmichael/bluesky-crosspost/internal/jobs"
)

const maxRequestBytes = 64 << 10

// Queue accepts jobs and reports its backlog. *jobs.Queue implements it.
type Queue interface {
	Enqueue(job jobs.Job) (string, error)
	Len() int
}

// Options configures a Server.
type Options struct {
	Port int

	// APIToken, when non-empty, must be presented as a bearer token on the
	// job endpoints.
	APIToken string
}

// Server is the HTTP server through which the source instance hands over
// cross-posting work.
type Server struct {
	opts       Options
	queue      Queue
	validate   *validator.Validate
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server
}

// NewServer creates a new HTTP server that enqueues jobs onto queue.
func NewServer(opts Options, queue Queue, logger *slog.Logger) *Server {
	s := &Server{
		opts:     opts,
		queue:    queue,
		validate: newValidator(),
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(withLogging(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/jobs", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/", s.handleEnqueue)
		r.Get("/stats", s.handleStats)
	})
	s.router = r

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// jobRequest is the body of POST /jobs.
type jobRequest struct {
	Kind      string `json:"kind" validate:"required,oneof=publish_post delete_post sync_profile create_account"`
	AccountID string `json:"account_id" validate:"required"`
	PostID    string `json:"post_id" validate:"required_if=Kind publish_post,required_if=Kind delete_post"`
	RecordURI string `json:"record_uri" validate:"omitempty,startswith=at://"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"pending": s.queue.Len()})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.logger.Warn("invalid job request body", "error", err)
		writeError(w, http.StatusBadRequest, "InvalidRequest", "request body must be a JSON job")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", describeValidation(err))
		return
	}

	id, err := s.queue.Enqueue(jobs.Job{
		Kind:      jobs.Kind(req.Kind),
		AccountID: req.AccountID,
		PostID:    req.PostID,
		RecordURI: req.RecordURI,
	})
	switch {
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrQueueClosed):
		s.logger.Warn("job rejected", "kind", req.Kind, "account_id", req.AccountID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "Unavailable", err.Error())
		return
	case errors.Is(err, jobs.ErrUnknownKind):
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	case err != nil:
		s.logger.Error("failed to enqueue job", "kind", req.Kind, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to enqueue job")
		return
	}

	s.logger.Info("job accepted",
		"job_id", id,
		"kind", req.Kind,
		"account_id", req.AccountID,
		"post_id", req.PostID,
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.APIToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.APIToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "AuthRequired", "a valid bearer token is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
	return strings.Join(msgs, "; ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"request_id", middleware.GetReqID(r.Context()),
				"duration", time.Since(start),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
