// Package web serves the chat web app: a JSON API over the relay service plus
// the static front-end.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Orion-Gemini/ORION-WEBCAM/internal/relay"
)

const (
	DefaultAddr = ":8080"

	// DefaultMaxBodyBytes leaves room for a base64-encoded 18 MiB file.
	DefaultMaxBodyBytes = 25 << 20

	ReadTimeout = 30 * time.Second

	// DefaultWriteTimeout must cover a full dispatch with all its retries.
	DefaultWriteTimeout = 5 * time.Minute

	IdleTimeout     = 60 * time.Second
	ShutdownTimeout = 30 * time.Second
)

// Asker is the part of relay.Service the server depends on.
type Asker interface {
	Ask(ctx context.Context, key string, in relay.Input) (string, error)
	Reset(ctx context.Context, key string) (bool, error)
}

type Options struct {
	Addr         string
	StaticDir    string
	MaxBodyBytes int64
	WriteTimeout time.Duration
	// SessionTTL is the cookie lifetime. It should match the history TTL.
	SessionTTL time.Duration
	Logger     *slog.Logger
}

type Server struct {
	addr     string
	server   *http.Server
	relay    Asker
	validate *validator.Validate
	maxBody  int64
	ttl      time.Duration
	logger   *slog.Logger
}

func NewServer(a Asker, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		addr:     opts.Addr,
		relay:    a,
		validate: newValidator(),
		maxBody:  opts.MaxBodyBytes,
		ttl:      opts.SessionTTL,
		logger:   opts.Logger,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux, opts.StaticDir)

	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.logRequests(s.sessionMiddleware(mux)),
		ReadTimeout:  ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}
	return s
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) registerRoutes(mux *http.ServeMux, staticDir string) {
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	if staticDir == "" {
		return
	}
	if info, err := os.Stat(staticDir); err != nil || !info.IsDir() {
		s.logger.Warn("static directory not found, front-end disabled", "dir", staticDir)
		return
	}
	mux.Handle("GET /", http.FileServer(http.Dir(staticDir)))
}

// ListenAndServe listens on the configured address and serves until ctx is
// canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		s.logger.Info("web server stopped")
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
