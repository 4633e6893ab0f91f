package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/baldanca/order-reservation/logging"
)

// Server runs the HTTP adapter until its context is canceled.
type Server struct {
	srv   *http.Server
	grace time.Duration
	log   *log.Entry
}

func NewServer(addr string, handler http.Handler, grace time.Duration, logger *log.Entry) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		grace: grace,
		log:   logging.OrDefault(logger),
	}
}

// Run serves until ctx is done, then shuts down gracefully, waiting at most
// the configured grace period for in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Infof("Listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.grace)
		defer cancel()
		s.log.Info("Shutting down HTTP server")
		return s.srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
