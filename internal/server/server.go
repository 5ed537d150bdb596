package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Server runs the observability router on its own listener.
type Server struct {
	srv *http.Server
	log *slog.Logger
}

func New(listen string, d Deps) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              listen,
			Handler:           NewRouter(d),
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: slog.Default().With("component", "server"),
	}
}

// Start serves in a background goroutine; listen errors are logged, not
// fatal: observability must never take the supervisor down.
func (s *Server) Start() {
	go func() {
		s.log.Info("observability server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("observability server failed", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
