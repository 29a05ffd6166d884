// Package httpapi exposes S-box analysis over a local HTTP interface.
package httpapi

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/AmmannChristian/go-authx/httpserver"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/analysis"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/clock"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/store"
)

const (
	defaultHTTPAddress       = "127.0.0.1:8081"
	defaultMaxBodyBytes      = 1 << 20
	defaultShutdownTimeout   = 5 * time.Second
	defaultIdleTimeout       = 30 * time.Second
	defaultReadTimeout       = 10 * time.Second
	defaultWriteTimeout      = 60 * time.Second
	defaultRateLimitRPS      = 10
	defaultRateLimitBurst    = 20
	defaultRetryAfterSeconds = 1
	baseUrlV1                = "/api/v1"
)

// Analyzer is the analysis surface used by the HTTP handlers.
type Analyzer interface {
	analysis.Service
	AnalyzeWithProgress(ctx context.Context, raw []int, selected []analysis.Metric, progress analysis.ProgressFunc) (analysis.Report, error)
}

// Option configures a Server.
type Option func(*Server)

// WithClock injects the clock used for rate limiting and request timing.
func WithClock(c clock.Clock) Option {
	return func(s *Server) {
		s.clock = c
	}
}

// WithStore keeps every report so it can be fetched from /reports/{id}.
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithMaxBodyBytes caps request bodies; larger bodies get 413.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithRateLimit configures the token bucket shared by the analysis
// endpoints.
func WithRateLimit(rps, burst int) Option {
	return func(s *Server) {
		if rps > 0 {
			s.rateLimitRPS = rps
		}
		if burst > 0 {
			s.rateLimitBurst = burst
		}
	}
}

// WithRetryAfter sets the minimum Retry-After value sent with 503 responses.
func WithRetryAfter(seconds int) Option {
	return func(s *Server) {
		if seconds > 0 {
			s.retryAfterSeconds = seconds
		}
	}
}

// WithAllowPublic permits binding to non-loopback addresses.
func WithAllowPublic(allow bool) Option {
	return func(s *Server) {
		s.allowPublic = allow
	}
}

// WithReadiness installs a probe consulted by /ready.
func WithReadiness(fn func() error) Option {
	return func(s *Server) {
		s.readiness = fn
	}
}

// Server serves the analysis API.
type Server struct {
	analyzer          Analyzer
	store             store.Store
	server            *http.Server
	listener          net.Listener
	clock             clock.Clock
	rateLimiter       *tokenBucket
	readiness         func() error
	allowPublic       bool
	maxBodyBytes      int64
	rateLimitRPS      int
	rateLimitBurst    int
	retryAfterSeconds int
	shutdownTimeout   time.Duration
}

// NewServer constructs a Server bound to addr, which defaults to
// 127.0.0.1:8081 and must be loopback unless WithAllowPublic(true) is given.
// Endpoints:
//   - POST /api/v1/analyze -- JSON {"table":[...],"metrics":[...]} to a JSON report.
//   - POST /api/v1/analyze/upload?format=&metrics=&output= -- raw table file to
//     a report encoded as json, yaml, text or xlsx.
//   - GET /api/v1/analyze/stream -- WebSocket streaming one message per metric.
//   - GET /api/v1/reports/{id} -- a stored report.
//   - GET /api/v1/health and /api/v1/ready.
func NewServer(addr string, analyzer Analyzer, opts ...Option) (*Server, error) {
	if analyzer == nil {
		return nil, errors.New("httpapi: analyzer is nil")
	}

	s := &Server{
		analyzer:          analyzer,
		clock:             clock.RealClock{},
		maxBodyBytes:      defaultMaxBodyBytes,
		rateLimitRPS:      defaultRateLimitRPS,
		rateLimitBurst:    defaultRateLimitBurst,
		retryAfterSeconds: defaultRetryAfterSeconds,
		shutdownTimeout:   defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clock.RealClock{}
	}

	canonicalAddr, err := enforceLoopbackAddr(addr, s.allowPublic)
	if err != nil {
		return nil, err
	}

	s.server = &http.Server{
		Addr:         canonicalAddr,
		Handler:      s.routes(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	s.rateLimiter = newTokenBucket(float64(s.rateLimitRPS), float64(s.rateLimitBurst), s.clock)
	log.Printf("httpapi: rate limiter configured (rps=%d, burst=%d)", s.rateLimitRPS, s.rateLimitBurst)

	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+baseUrlV1+"/analyze", s.instrument("analyze", s.handleAnalyze))
	mux.HandleFunc("POST "+baseUrlV1+"/analyze/upload", s.instrument("upload", s.handleUpload))
	mux.HandleFunc("GET "+baseUrlV1+"/analyze/stream", s.instrument("stream", s.handleStream))
	mux.HandleFunc("GET "+baseUrlV1+"/reports/{id}", s.instrument("reports", s.handleReport))
	mux.HandleFunc("GET "+baseUrlV1+"/health", s.handleHealth)
	mux.HandleFunc("GET "+baseUrlV1+"/ready", s.handleReady)
	return mux
}

// Handler returns the routed handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("httpapi: serve error: %v", err)
		}
	}()

	log.Printf("httpapi: listening on %s", listener.Addr())
	return nil
}

// StartTLS begins listening for HTTPS requests with TLS or mutual TLS.
func (s *Server) StartTLS(certFile, keyFile, caFile string, clientAuth tls.ClientAuthType) error {
	tlsConfig := &httpserver.TLSConfig{
		CertFile:   certFile,
		KeyFile:    keyFile,
		CAFile:     caFile,
		ClientAuth: clientAuth,
	}
	if err := httpserver.ConfigureServer(s.server, tlsConfig); err != nil {
		return fmt.Errorf("httpapi: configure TLS: %w", err)
	}

	log.Printf("httpapi: loaded server certificate from %s", certFile)
	if caFile != "" {
		log.Printf("httpapi: using custom CA certificate from %s for client verification", caFile)
	}

	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen: %w", err)
	}
	tlsListener := tls.NewListener(listener, s.server.TLSConfig)
	s.listener = tlsListener

	go func() {
		if err := s.server.Serve(tlsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("httpapi: serve error: %v", err)
		}
	}()

	log.Printf("httpapi: listening on %s (TLS enabled)", listener.Addr())
	return nil
}

// Shutdown gracefully stops the server. A nil ctx waits up to five seconds.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
	}

	err := s.server.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// enforceLoopbackAddr validates that addr resolves to a loopback interface.
// When allowPublic is true, non-loopback addresses are permitted with a
// warning log.
func enforceLoopbackAddr(addr string, allowPublic bool) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		addr = defaultHTTPAddress
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("httpapi: invalid address %q: %w", addr, err)
	}
	if host == "" {
		return "", errors.New("httpapi: host must be specified")
	}

	if strings.ToLower(host) == "localhost" {
		return net.JoinHostPort("localhost", port), nil
	}

	ip := net.ParseIP(host)
	if ip == nil {
		if allowPublic {
			log.Printf("httpapi: ALLOW_PUBLIC_HTTP=true, binding to %s", addr)
			return addr, nil
		}
		return "", fmt.Errorf("httpapi: host %q is not loopback", host)
	}

	if !ip.IsLoopback() {
		if allowPublic {
			log.Printf("httpapi: ALLOW_PUBLIC_HTTP=true, binding to %s", addr)
			return net.JoinHostPort(ip.String(), port), nil
		}
		return "", fmt.Errorf("httpapi: host %q must be loopback", host)
	}

	return net.JoinHostPort(ip.String(), port), nil
}
