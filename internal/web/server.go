// Package web serves the Telegram webhook and a small read-only archive API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"inspection-bot/internal/domain"
	"inspection-bot/internal/integrations/telegram"
	"inspection-bot/internal/logging"
	"inspection-bot/internal/session"
)

const (
	// CorrelationHeader carries a caller supplied id into the logs.
	CorrelationHeader = "X-Correlation-Id"

	maxUpdateBytes = 1 << 20
)

// UpdateSubmitter queues an update for background handling.
type UpdateSubmitter interface {
	Submit(u telegram.Update)
}

// Archiver looks up the saved rows of a unit.
type Archiver interface {
	Archive(ctx context.Context, unit string) (string, []domain.Row, error)
}

// Server is the HTTP front of webhook mode.
type Server struct {
	updates      UpdateSubmitter
	archive      Archiver
	archiveToken string
	secret       string
	addr         string
	timeout      time.Duration
	router       *chi.Mux
	server       *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithArchive exposes GET /api/archive to callers presenting
// "Authorization: Bearer <token>". The token must not be empty.
func WithArchive(a Archiver, token string) Option {
	return func(s *Server) {
		s.archive = a
		s.archiveToken = token
	}
}

// WithAddr sets the listen address. Defaults to ":8080".
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithRequestTimeout bounds every request. Defaults to 60s.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewServer builds the router and the http.Server. secret is the webhook
// secret token; empty disables the check.
func NewServer(updates UpdateSubmitter, secret string, opts ...Option) (*Server, error) {
	if updates == nil {
		return nil, errors.New("web: update submitter must not be nil")
	}
	s := &Server{
		updates: updates,
		secret:  secret,
		addr:    ":8080",
		timeout: 60 * time.Second,
		router:  chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.archive != nil && strings.TrimSpace(s.archiveToken) == "" {
		return nil, errors.New("web: archive token must not be empty")
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(correlationID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.timeout))
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Post("/telegram/webhook", s.handleWebhook)
	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.requireArchiveToken)
		r.Get("/archive", s.handleArchive)
	})
}

// Start listens until Shutdown is called. After a Shutdown it returns
// http.ErrServerClosed at once.
func (s *Server) Start() error {
	slog.Info("starting http server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown is safe to call from another goroutine, before or after Start.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebhook acknowledges as soon as the update is queued; Telegram
// retries anything that is not a 2xx.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	if !telegram.VerifySecret(r.Header.Get(telegram.SecretHeader), s.secret) {
		log.Warn("webhook secret mismatch")
		writeError(w, http.StatusUnauthorized, "invalid secret token")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}
	var u telegram.Update
	if err := json.Unmarshal(body, &u); err != nil {
		log.Warn("malformed update", "err", err)
		writeError(w, http.StatusBadRequest, "malformed update")
		return
	}

	s.updates.Submit(u)
	w.WriteHeader(http.StatusOK)
}

type archiveResponse struct {
	Unit string       `json:"unit"`
	Rows []domain.Row `json:"rows"`
}

// requireArchiveToken answers 404 while the archive is disabled and 401 to
// callers without the bearer token.
func (s *Server) requireArchiveToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.archive == nil {
			writeError(w, http.StatusNotFound, "archive is not enabled")
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || !telegram.VerifySecret(got, s.archiveToken) {
			logging.FromContext(r.Context()).Warn("archive token mismatch")
			w.Header().Set("WWW-Authenticate", `Bearer realm="archive"`)
			writeError(w, http.StatusUnauthorized, "invalid archive token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	label, rows, err := s.archive.Archive(r.Context(), r.URL.Query().Get("unit"))
	if err != nil {
		var se *session.Error
		if errors.As(err, &se) && se.Code == session.ErrorUserInput {
			writeError(w, http.StatusBadRequest, se.Reason)
			return
		}
		logging.FromContext(r.Context()).Error("archive lookup failed", "err", err)
		writeError(w, http.StatusBadGateway, "archive is unavailable")
		return
	}
	if rows == nil {
		rows = []domain.Row{}
	}
	writeJSON(w, http.StatusOK, archiveResponse{Unit: label, Rows: rows})
}

func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithCorrelationID(r.Context(), r.Header.Get(CorrelationHeader))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response failed", "err", err)
	}
}
