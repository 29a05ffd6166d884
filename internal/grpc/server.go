package grpc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/AmmannChristian/go-authx/httpserver"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/analysis"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/metrics"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/store"
)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithStore saves every report produced by the server.
func WithStore(s store.Store) ServerOption {
	return func(srv *Server) {
		srv.store = s
	}
}

// WithGRPCOptions passes options through to grpc.NewServer.
func WithGRPCOptions(opts ...grpc.ServerOption) ServerOption {
	return func(srv *Server) {
		srv.grpcOptions = append(srv.grpcOptions, opts...)
	}
}

// Server answers Analyze calls with a local analysis.Service.
type Server struct {
	service     analysis.Service
	store       store.Store
	grpcOptions []grpc.ServerOption
	grpcServer  *grpc.Server
	listener    net.Listener
}

// NewServer constructs a Server backed by service.
func NewServer(service analysis.Service, opts ...ServerOption) (*Server, error) {
	if service == nil {
		return nil, errors.New("grpc: analysis service is nil")
	}
	s := &Server{service: service}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register adds the Analyzer service to reg.
func (s *Server) Register(reg grpc.ServiceRegistrar) {
	reg.RegisterService(&ServiceDesc, s)
}

// Analyze implements AnalyzerServer.
func (s *Server) Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.analyze(ctx, req)
	metrics.RecordGRPCRequest(status.Code(err).String())
	return resp, err
}

func (s *Server) analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, names, err := DecodeRequest(req)
	if err != nil {
		return nil, toStatus(err)
	}
	selected, err := analysis.ParseMetrics(names)
	if err != nil {
		return nil, toStatus(err)
	}

	r, err := s.service.Analyze(ctx, raw, selected)
	if err != nil {
		return nil, toStatus(err)
	}

	if s.store != nil {
		if err := s.store.Save(ctx, r); err != nil {
			log.Printf("grpc: failed to store report %s: %v", r.ID, err)
		}
	}

	out, err := EncodeReport(r)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Start listens on addr without TLS.
func (s *Server) Start(addr string) error {
	return s.start(addr, nil)
}

// StartTLS listens on addr with TLS, verifying client certificates according
// to clientAuth.
func (s *Server) StartTLS(addr, certFile, keyFile, caFile string, clientAuth tls.ClientAuthType) error {
	tlsConfig, err := serverTLSConfig(certFile, keyFile, caFile, clientAuth)
	if err != nil {
		return err
	}
	log.Printf("grpc: loaded server certificate from %s", certFile)
	return s.start(addr, tlsConfig)
}

func (s *Server) start(addr string, tlsConfig *tls.Config) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc: listen: %w", err)
	}

	opts := append([]grpc.ServerOption(nil), s.grpcOptions...)
	if tlsConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}
	s.grpcServer = grpc.NewServer(opts...)
	s.Register(s.grpcServer)
	s.listener = listener

	go func() {
		if err := s.grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Printf("grpc: serve error: %v", err)
		}
	}()

	log.Printf("grpc: listening on %s (TLS=%t)", listener.Addr(), tlsConfig != nil)
	return nil
}

// Addr returns the bound address after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the server, forcing it down when ctx expires first.
func (s *Server) Stop(ctx context.Context) {
	if s.grpcServer == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

// serverTLSConfig loads certificates through the same go-authx helper used
// by the HTTP servers.
func serverTLSConfig(certFile, keyFile, caFile string, clientAuth tls.ClientAuthType) (*tls.Config, error) {
	holder := &http.Server{}
	err := httpserver.ConfigureServer(holder, &httpserver.TLSConfig{
		CertFile:   certFile,
		KeyFile:    keyFile,
		CAFile:     caFile,
		ClientAuth: clientAuth,
	})
	if err != nil {
		return nil, fmt.Errorf("grpc: configure TLS: %w", err)
	}
	return holder.TLSConfig, nil
}

// toStatus maps analysis errors to gRPC status codes.
func toStatus(err error) error {
	switch {
	case analysis.IsInvalid(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
