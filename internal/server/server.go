// Package server runs the HTTP listener with graceful shutdown
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"places-cache/internal/common/logging"
)

// Server represents an HTTP server
type Server struct {
	srv      *http.Server
	tlsCert  string
	tlsKey   string
	listener net.Listener
	logger   logging.Logger
}

// New creates a new server instance. Port "0" picks a free port.
func New(handler http.Handler, port, tlsCert, tlsKey string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:    ":" + port,
			Handler: handler,
			// Google lookups may retry several times under the per-request timeout
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		tlsCert: tlsCert,
		tlsKey:  tlsKey,
		logger:  logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "http_server"}),
	}
}

// Start binds the listener and serves in the background. Bind errors are
// returned; serve errors after a successful bind are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	useTLS := s.tlsCert != "" && s.tlsKey != ""
	if useTLS {
		s.srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	go func() {
		var err error
		if useTLS {
			err = s.srv.ServeTLS(ln, s.tlsCert, s.tlsKey)
		} else {
			err = s.srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped unexpectedly", err)
		}
	}()

	s.logger.Info("HTTP server listening",
		logging.Field{Key: "addr", Value: ln.Addr().String()},
		logging.Field{Key: "tls", Value: useTLS},
	)
	return nil
}

// Addr returns the bound address, or the configured one before Start
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.srv.Addr
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
