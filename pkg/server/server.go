package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	CheckConnectivity(ctx context.Context) error
}

// Server is the operations listener: health and metrics only.
type Server struct {
	Router  *mux.Router
	Health  HealthChecker
	Metrics http.Handler
	srv     *http.Server
}

// NewServer builds the router and registers the operations endpoints.
// health and metrics may be nil.
func NewServer(addr string, health HealthChecker, metrics http.Handler) *Server {
	return newServer(addr, health, metrics, os.Stdout)
}

func newServer(addr string, health HealthChecker, metrics http.Handler, accessLog io.Writer) *Server {
	router := mux.NewRouter()
	s := &Server{
		Router:  router,
		Health:  health,
		Metrics: metrics,
		srv: &http.Server{
			Handler:      handlers.LoggingHandler(accessLog, router),
			Addr:         addr,
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
		},
	}
	s.registerEndpoints()
	return s
}

// Handler returns the logged router.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
