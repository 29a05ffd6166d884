package grpc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/AmmannChristian/go-authx/grpcclient"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/analysis"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/config"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/metrics"
	"github.com/Farhanfhrza/Kriptografi-Sbox-Evaluation/internal/sbox"
)

const defaultConnectTimeout = 10 * time.Second

// Client delegates analyses to a remote Analyzer service. It satisfies
// analysis.Service, so callers can swap local and remote analysis. All
// methods are safe for concurrent use.
type Client struct {
	cfg  config.Remote
	mu   sync.Mutex
	conn *grpc.ClientConn
}

// NewClient builds a connection to cfg.ServerAddr with optional OAuth2 and
// TLS.
func NewClient(ctx context.Context, cfg config.Remote) (*Client, error) {
	if cfg.ServerAddr == "" {
		return nil, errors.New("grpc: server address is required")
	}

	builder := grpcclient.NewBuilder().WithAddress(cfg.ServerAddr)

	if cfg.OAuth2Enabled {
		builder = builder.WithOAuth2(
			cfg.OAuth2TokenURL,
			cfg.OAuth2ClientID,
			cfg.OAuth2ClientSecret,
			cfg.OAuth2Scopes,
		)
		log.Printf("grpc: OAuth2 authentication enabled (token URL: %s)", cfg.OAuth2TokenURL)
	}

	if cfg.TLSEnabled {
		builder = builder.WithTLS(
			cfg.TLSCAFile,
			cfg.TLSCertFile,
			cfg.TLSKeyFile,
			cfg.TLSServerName,
		)
		log.Printf("grpc: TLS enabled (CA: %s, mTLS: %v)", cfg.TLSCAFile, cfg.TLSCertFile != "")
	} else {
		builder = builder.WithDialOptions(grpc.WithTransportCredentials(insecure.NewCredentials()))
		log.Printf("grpc: WARNING - using insecure connection (no TLS)")
	}

	timeout := defaultConnectTimeout
	if cfg.ConnectTimeout > 0 {
		timeout = time.Duration(cfg.ConnectTimeout) * time.Second
	}
	buildCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := builder.Build(buildCtx)
	if err != nil {
		metrics.RecordGRPCClientError("connect_failed")
		return nil, fmt.Errorf("grpc: build client failed: %w", err)
	}

	metrics.SetGRPCClientConnected(true)
	log.Printf("grpc: client ready for %s", cfg.ServerAddr)
	return &Client{cfg: cfg, conn: conn}, nil
}

// newClientWithConn wraps an existing connection.
func newClientWithConn(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Analyze sends raw and selected to the remote service. InvalidArgument
// replies are returned as errors wrapping sbox.ErrInvalidInput.
func (c *Client) Analyze(ctx context.Context, raw []int, selected []analysis.Metric) (analysis.Report, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return analysis.Report{}, errors.New("grpc: client closed")
	}

	req, err := EncodeRequest(raw, selected)
	if err != nil {
		return analysis.Report{}, err
	}

	resp := new(structpb.Struct)
	if err := conn.Invoke(ctx, AnalyzeMethod, req, resp); err != nil {
		return analysis.Report{}, fromStatus(err)
	}
	return DecodeReport(resp)
}

// Close releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	metrics.SetGRPCClientConnected(false)
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		return fmt.Errorf("grpc: close connection: %w", err)
	}
	log.Printf("grpc: client closed")
	return nil
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		metrics.RecordGRPCClientError("transport")
		return fmt.Errorf("grpc: analyze failed: %w", err)
	}

	switch st.Code() {
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", sbox.ErrInvalidInput, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("grpc: remote analysis: %w", context.DeadlineExceeded)
	case codes.Canceled:
		return fmt.Errorf("grpc: remote analysis: %w", context.Canceled)
	default:
		metrics.RecordGRPCClientError(st.Code().String())
		return fmt.Errorf("grpc: analyze failed: %w", err)
	}
}
