package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/blackmichael/postboard/internal/auth"
	"github.com/blackmichael/postboard/internal/config"
	"github.com/blackmichael/postboard/internal/domain"
	"github.com/gorilla/mux"
)

// Server is the HTTP server for the posts API and the event stream.
type Server struct {
	cfg        *config.Config
	posts      *domain.PostService
	accounts   *domain.AccountService
	tokens     *auth.Issuer
	events     http.Handler
	limiter    *clientLimiter
	logger     *slog.Logger
	handler    http.Handler
	httpServer *http.Server
}

// NewServer creates a new HTTP server. events serves the websocket stream
// at /api/events.
func NewServer(
	cfg *config.Config,
	posts *domain.PostService,
	accounts *domain.AccountService,
	tokens *auth.Issuer,
	events http.Handler,
	logger *slog.Logger,
) *Server {
	s := &Server{
		cfg:      cfg,
		posts:    posts,
		accounts: accounts,
		tokens:   tokens,
		events:   events,
		limiter:  newClientLimiter(cfg.AuthRateLimit, time.Minute),
		logger:   logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()

	users := api.PathPrefix("/user").Subrouter()
	users.Use(s.rateLimit)
	users.HandleFunc("/signup", s.handleSignup).Methods(http.MethodPost)
	users.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	users.Handle("/refresh", s.requireAuth(s.handleRefresh)).Methods(http.MethodPost)

	api.HandleFunc("/posts", s.handleListPosts).Methods(http.MethodGet)
	api.Handle("/posts", s.requireAuth(s.handleCreatePost)).Methods(http.MethodPost)
	api.HandleFunc("/posts/{id}", s.handleGetPost).Methods(http.MethodGet)
	api.Handle("/posts/{id}", s.requireAuth(s.handleEditPost)).Methods(http.MethodPut)
	api.Handle("/posts/{id}", s.requireAuth(s.handleDeletePost)).Methods(http.MethodDelete)
	api.Handle("/events", events).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NotFound", "no such endpoint")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
	})

	s.handler = withLogging(logger, router)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler, including request logging.
func (s *Server) Handler() http.Handler {
	return s.handler
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

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeDomainError maps service errors to HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NotFound", "post not found")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden", "not the creator of this post")
	case errors.Is(err, domain.ErrEmailTaken):
		writeError(w, http.StatusConflict, "EmailTaken", "email is already registered")
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "InvalidCredentials", "invalid email or password")
	case errors.Is(err, domain.ErrInvalidPost),
		errors.Is(err, domain.ErrInvalidSignup),
		errors.Is(err, domain.ErrInvalidPage):
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, errorResponse{Error: errType, Message: message})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
