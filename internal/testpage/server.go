// WSL Dev Bridge - Test Page Server
// Serves a small embedded page a debugger can navigate to and inspect.
// This is the collaborator behind --serve and --test; everything else in
// the tool treats it as an external endpoint.

package testpage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

//go:embed page.html
var pageHTML []byte

// Server wraps the embedded test page in an http.Server.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// New builds a server bound to 0.0.0.0 so the page is reachable from both
// sides of the host/guest boundary.
func New(port int) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(pageHTML)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start binds the listener; serving continues in the caller's goroutine
// via Serve.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("test page listen %s: %w", s.srv.Addr, err)
	}
	s.ln = ln
	log.WithField("addr", ln.Addr().String()).Info("Test page server listening")
	return nil
}

// Serve blocks until the context is cancelled or the server fails.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(s.ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// URL returns the page address for a local browser to navigate to.
func (s *Server) URL() string {
	if s.ln == nil {
		return ""
	}
	_, port, err := net.SplitHostPort(s.ln.Addr().String())
	if err != nil {
		return ""
	}
	return fmt.Sprintf("http://localhost:%s/", port)
}
