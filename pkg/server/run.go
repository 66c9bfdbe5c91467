package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Run starts the server and blocks until SIGINT/SIGTERM, cancellation of ctx
// or an administrator's /shutdown, then waits for the shutdown to finish.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Start(ctx); err != nil {
		return err
	}
	<-s.Done()
	return nil
}
