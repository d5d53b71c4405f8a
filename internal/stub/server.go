// Package stub serves a canned story backend for local demos and tests.
package stub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"Storyteller/internal/backend"
)

// Server is an in-memory backend that echoes the player's turns.
type Server struct {
	echo   *echo.Echo
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]backend.StartRequest
}

// NewServer builds the router. A nil logger uses slog.Default.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		echo:     echo.New(),
		logger:   logger,
		sessions: make(map[string]backend.StartRequest),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency)
			return nil
		},
	}))

	s.RegisterRoutes(s.echo)
	return s
}

// RegisterRoutes mounts the story endpoints on e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.POST(backend.PathStart, s.Start)
	e.POST(backend.PathChat, s.Chat)
}

// ServeHTTP makes Server usable with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// ListenAndServe blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("stub backend listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown stub backend: %w", err)
	}
	return <-errCh
}

// Sessions returns the number of sessions started.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Start opens a session.
// POST /start
func (s *Server) Start(c echo.Context) error {
	var req backend.StartRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.TargetLanguage == "" || req.Level == "" || req.NativeLanguage == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "target_language, level and native_language are required"})
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = req
	s.mu.Unlock()

	return c.JSON(http.StatusOK, backend.StartResponse{
		SessionID: id,
		Response:  Greeting(req),
	})
}

// Chat answers one turn.
// POST /chat
func (s *Server) Chat(c echo.Context) error {
	var req backend.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session_id is required"})
	}

	s.mu.Lock()
	_, ok := s.sessions[req.SessionID]
	s.mu.Unlock()
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}

	return c.JSON(http.StatusOK, backend.ChatResponse{Response: Reply(req)})
}

// Greeting is the opening line for a new session.
func Greeting(req backend.StartRequest) string {
	return fmt.Sprintf("Welcome, traveler. Your **%s** adventure at level **%s** begins now. "+
		"Hints will be given in *%s*.", req.TargetLanguage, req.Level, req.NativeLanguage)
}

// Reply is the canned answer to a chat turn.
func Reply(req backend.ChatRequest) string {
	return fmt.Sprintf("You said: _%s_ (%s, %s).", req.Message, req.TargetLanguage, req.Level)
}
