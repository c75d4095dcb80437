// Package diagnostics exposes engine state over HTTP: a JSON API under
// /api/ and a websocket event feed under /ws/.
package diagnostics

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/cfoust/kbsync/pkg/engine"

	"github.com/rs/zerolog/log"
)

type Server struct {
	httpServer *http.Server
}

func NewServer(e *engine.Engine) *Server {
	mux := http.NewServeMux()
	mux.Handle("/ws/", NewFeed(e))
	mux.Handle("/api/", NewAPI(e))

	return &Server{
		httpServer: &http.Server{Handler: mux},
	}
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve blocks until the server is shut down.
func (s *Server) Serve(ctx context.Context, port int) error {
	listen, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return fmt.Errorf("failed to bind diagnostics port: %w", err)
	}

	log.Info().Msgf("diagnostics listening on http://%v", listen.Addr())

	go func() {
		<-ctx.Done()
		s.httpServer.Close()
	}()

	err = s.httpServer.Serve(listen)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
