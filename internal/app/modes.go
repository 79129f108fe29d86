package app

import (
	"context"
	"errors"
	"io"
	"time"

	"authbot/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 10 * time.Second

// runServer starts the HTTP server and, when configured, the Kafka consumer.
// It blocks until ctx is done or one of them fails, then shuts everything
// down.
func runServer(ctx context.Context, s *Services) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(s.Server.ListenAndServe)

	if s.Consumer != nil {
		g.Go(func() error {
			return s.Consumer.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logging.Info("Lifecycle", "Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown stops the HTTP server and releases every resource.
func (s *Services) Shutdown(ctx context.Context) error {
	var errs []error

	if err := s.Server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	s.Pending.Stop()

	if s.Consumer != nil {
		if err := s.Consumer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if closer, ok := s.Messenger.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.Sessions.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
