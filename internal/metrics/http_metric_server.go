package metrics

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/AmmannChristian/go-authx/httpserver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const baseUrlV1 = "/api/v1"

// ReadinessFunc reports whether the process is ready to accept analysis
// work. A non-nil error is written to the ready endpoint with status 503.
type ReadinessFunc func() error

// Server exposes Prometheus metrics and liveness/readiness probes for the
// analyzer process.
type Server struct {
	addr     string
	server   *http.Server
	gatherer prometheus.Gatherer
	ready    ReadinessFunc
}

// ServerOption customises a metrics Server.
type ServerOption func(*Server)

// WithGatherer serves metrics from g instead of the default gatherer.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithReadiness installs a readiness check behind GET /api/v1/ready.
func WithReadiness(fn ReadinessFunc) ServerOption {
	return func(s *Server) {
		s.ready = fn
	}
}

// NewServer creates a metrics HTTP server for addr ("host:port").
//
// Endpoints:
//   - GET /api/v1/metrics - Prometheus exposition
//   - GET /api/v1/health  - liveness, always "OK"
//   - GET /api/v1/ready   - readiness, 503 while the ReadinessFunc fails
func NewServer(addr string, opts ...ServerOption) *Server {
	s := &Server{
		addr:     addr,
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle(baseUrlV1+"/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc(baseUrlV1+"/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Printf("metrics: health handler write error: %v", err)
		}
	})

	mux.HandleFunc(baseUrlV1+"/ready", func(w http.ResponseWriter, r *http.Request) {
		if s.ready != nil {
			if err := s.ready(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("READY")); err != nil {
			log.Printf("metrics: ready handler write error: %v", err)
		}
	})

	return mux
}

// Handler returns the server's routing handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	if s.server == nil {
		return http.NotFoundHandler()
	}
	return s.server.Handler
}

// Start serves plain HTTP until Shutdown. http.ErrServerClosed is reported
// as a nil error.
func (s *Server) Start() error {
	if s.server == nil {
		return errors.New("metrics server not initialized")
	}

	log.Printf("metrics: starting HTTP server on %s", s.addr)

	if err := validateAddress(s.addr); err != nil {
		return fmt.Errorf("metrics: invalid address %q: %w", s.addr, err)
	}

	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: HTTP server error: %w", err)
	}

	log.Println("metrics: HTTP server stopped")
	return nil
}

// StartTLS serves HTTPS, optionally verifying client certificates against
// caFile according to clientAuth.
func (s *Server) StartTLS(certFile, keyFile, caFile string, clientAuth tls.ClientAuthType) error {
	if s.server == nil {
		return errors.New("metrics server not initialized")
	}

	log.Printf("metrics: starting HTTPS server on %s", s.addr)

	if err := validateAddress(s.addr); err != nil {
		return fmt.Errorf("metrics: invalid address %q: %w", s.addr, err)
	}

	tlsConfig := &httpserver.TLSConfig{
		CertFile:   certFile,
		KeyFile:    keyFile,
		CAFile:     caFile,
		ClientAuth: clientAuth,
	}
	if err := httpserver.ConfigureServer(s.server, tlsConfig); err != nil {
		return fmt.Errorf("metrics: configure TLS: %w", err)
	}

	if caFile != "" {
		log.Printf("metrics: verifying client certificates against %s", caFile)
	}

	err := s.server.ListenAndServeTLS("", "")
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: HTTPS server error: %w", err)
	}

	log.Println("metrics: HTTPS server stopped")
	return nil
}

// Shutdown gracefully stops the server within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	log.Println("metrics: shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics: shutdown error: %w", err)
	}
	return nil
}

// validateAddress checks that addr is host:port with a resolvable host.
func validateAddress(addr string) error {
	if addr == "" {
		return errors.New("empty address")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid host:port format: %w", err)
	}
	if port == "" {
		return errors.New("port is required")
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return nil
	}
	if _, err := net.LookupHost(host); err != nil {
		return fmt.Errorf("cannot resolve host %q: %w", host, err)
	}
	return nil
}
