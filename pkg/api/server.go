package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/droidprobe/droidprobe/internal/logger"
	"github.com/droidprobe/droidprobe/pkg/debugger"
)

// Server wraps the status HTTP server lifecycle.
type Server struct {
	srv *http.Server
}

// NewServer creates a status server bound to addr, serving the router
// for dbg.
func NewServer(addr string, dbg *debugger.Debugger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(dbg),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start runs the server in a background goroutine and returns
// immediately. Listen failures are logged, not fatal: the debugger
// works without its status surface.
func (s *Server) Start() {
	go func() {
		logger.Info("status server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("status server stopped", "error", err)
		}
	}()
}

// Shutdown stops the server, waiting up to the context deadline for
// in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
