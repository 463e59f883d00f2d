// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package callback runs the loopback HTTP server that receives the redirect
// back from the identity provider during a desktop login.
package callback

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/thv-auth/pkg/logger"
)

// LoopbackHost is the address the callback server listens on.
const LoopbackHost = "127.0.0.1"

// Handler processes the current location as an authorization callback.
type Handler interface {
	HandleCallback(ctx context.Context) (bool, error)
}

// Visitor loads a request URI as the current location.
type Visitor interface {
	Visit(target string) error
}

// Server is the loopback callback server.
type Server struct {
	port    int
	visitor Visitor
	handler Handler

	// mu serializes callbacks; the location is shared state.
	mu      sync.Mutex
	results chan error

	server   *http.Server
	listener net.Listener
}

// NewServer creates a callback server for port. Port 0 picks a free port.
func NewServer(port int, visitor Visitor, handler Handler) *Server {
	return &Server{
		port:    port,
		visitor: visitor,
		handler: handler,
		results: make(chan error, 1),
	}
}

// Origin returns the origin served by a server listening on port.
func Origin(port int) string {
	return "http://" + net.JoinHostPort(LoopbackHost, strconv.Itoa(port))
}

// Router returns the HTTP routes of the callback server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/callback", s.handleCallback)
	r.Get("/", s.handleRoot)
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
	return r
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", net.JoinHostPort(LoopbackHost, strconv.Itoa(s.port)))
	if err != nil {
		return fmt.Errorf("failed to start callback server: %w", err)
	}
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	s.server = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting OAuth callback server on port %d", s.port)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.deliver(fmt.Errorf("callback server failed: %w", err))
		}
	}()
	return nil
}

// Port returns the port the server listens on.
func (s *Server) Port() int {
	return s.port
}

// Wait blocks until a callback completes, ctx is cancelled or the process is
// interrupted.
func (s *Server) Wait(ctx context.Context) error {
	logger.Info("Waiting for OAuth callback...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-s.results:
		if err != nil {
			return fmt.Errorf("OAuth flow failed: %w", err)
		}
		logger.Info("OAuth flow completed successfully")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("OAuth flow cancelled: %w", ctx.Err())
	case sig := <-sigChan:
		return fmt.Errorf("OAuth flow interrupted by signal: %v", sig)
	}
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) deliver(err error) {
	select {
	case s.results <- err:
	default:
	}
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.visitor.Visit(r.URL.RequestURI()); err != nil {
		writeErrorPage(w, err)
		return
	}

	handled, err := s.handler.HandleCallback(r.Context())
	if err != nil {
		writeErrorPage(w, err)
		s.deliver(err)
		return
	}
	if !handled {
		s.handleRoot(w, r)
		return
	}

	writeSuccessPage(w)
	s.deliver(nil)
}

// setSecurityHeaders sets common security headers for all responses
func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'; script-src 'none'; object-src 'none';")
}

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
    <title>%s</title>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; text-align: center; }
        .container { max-width: 600px; margin: 0 auto; }
        .message { padding: 20px; border-radius: 5px; margin: 20px 0; }
        .info { background-color: #e7f3ff; border: 1px solid #b3d9ff; color: #0066cc; }
        .success { background-color: #e7f6e7; border: 1px solid #b3e6b3; color: #006600; }
        .error { background-color: #ffe7e7; border: 1px solid #ffb3b3; color: #cc0000; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <div class="message %s">
            %s
        </div>
    </div>
</body>
</html>`

func writePage(w http.ResponseWriter, status int, title, class, body string) {
	setSecurityHeaders(w)
	w.WriteHeader(status)
	page := fmt.Sprintf(pageTemplate, title, title, class, body)
	if _, err := w.Write([]byte(page)); err != nil {
		logger.Warnf("Failed to write HTML content: %v", err)
	}
}

func (*Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writePage(w, http.StatusOK, "thv-auth", "info",
		"<p>The login callback server is running. Please complete the authentication flow in your browser.</p>")
}

func writeSuccessPage(w http.ResponseWriter) {
	writePage(w, http.StatusOK, "Authentication Successful", "success",
		"<p>You are logged in. You can now close this window and return to the terminal.</p>")
}

func writeErrorPage(w http.ResponseWriter, err error) {
	writePage(w, http.StatusBadRequest, "Authentication Failed", "error",
		"<p>"+html.EscapeString(err.Error())+"</p><p>Please run the login again.</p>")
}
