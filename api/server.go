package api

import (
	"context"
	"errors"
	"mcpchat/config"
	"net"
	"net/http"
	"time"
)

// Server wraps the HTTP server. There is no write timeout: streamed chats
// are bounded by the chat service's own timeout instead.
type Server struct {
	http *http.Server
}

// NewServer creates a server for deps listening on addr.
func NewServer(addr string, deps Deps) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Start listens and serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if config.Debug {
		config.DebugLog.Printf("[API] Listening on %s", ln.Addr())
	}
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
