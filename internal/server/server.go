package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bobmcallan/frontier/internal/app"
	"github.com/bobmcallan/frontier/internal/common"
)

// Server serves the simulation REST API for one App.
type Server struct {
	app          *app.App
	server       *http.Server
	logger       *common.Logger
	shutdownChan chan struct{}
}

// NewServer builds the mux and middleware stack from the app's config.
// The write timeout leaves room past the request deadline so a timed-out
// simulation can still report its 504.
func NewServer(a *app.App) *Server {
	s := &Server{app: a, logger: a.Logger}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	deadline := a.Config.Server.GetRequestTimeout()
	writeTimeout := 5 * time.Minute
	if deadline > 0 && deadline+30*time.Second > writeTimeout {
		writeTimeout = deadline + 30*time.Second
	}

	s.server = &http.Server{
		Addr:              net.JoinHostPort(a.Config.Server.Host, strconv.Itoa(a.Config.Server.Port)),
		Handler:           applyMiddleware(mux, a.Logger, deadline),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// SetShutdownChannel registers the channel closed by POST /api/shutdown.
func (s *Server) SetShutdownChannel(ch chan struct{}) {
	s.shutdownChan = ch
}

// Handler exposes the wrapped mux, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr is the host:port the server listens on.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.server.Addr).
		Dur("request_timeout", s.app.Config.Server.GetRequestTimeout()).
		Msg("Simulation API listening")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
