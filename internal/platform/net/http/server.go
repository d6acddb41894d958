package http

import (
	"context"
	"errors"
	stdhttp "net/http"
	"time"

	"mixshift/internal/platform/logger"

	"github.com/go-chi/chi/v5"
)

// Server wraps chi and http.Server
type Server struct {
	addr string
	mux  *chi.Mux
	srv  *stdhttp.Server
}

// NewServer builds a server listening on addr, e.g. ":4000"
func NewServer(addr string, opts ...func(*chi.Mux)) *Server {
	m := chi.NewRouter()
	for _, o := range opts {
		o(m)
	}
	return &Server{
		addr: addr,
		mux:  m,
		srv: &stdhttp.Server{
			Addr:              addr,
			Handler:           m,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Router returns the facade over the mux
func (s *Server) Router() Router { return AdaptChi(s.mux) }

// Handler exposes the mux, mostly for tests
func (s *Server) Handler() stdhttp.Handler { return s.mux }

// Run blocks until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	log := logger.Named("http")
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("http listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	log.Info().Msg("http shutting down")
	return s.srv.Shutdown(sctx)
}
