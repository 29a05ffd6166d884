package metrics

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewServer_Timeouts(t *testing.T) {
	t.Parallel()

	server := NewServer("127.0.0.1:9090")
	if server.server == nil || server.server.Handler == nil {
		t.Fatal("server not initialized")
	}
	if server.server.ReadHeaderTimeout != 5*time.Second {
		t.Errorf("ReadHeaderTimeout = %v, want 5s", server.server.ReadHeaderTimeout)
	}
	if server.server.WriteTimeout != 10*time.Second {
		t.Errorf("WriteTimeout = %v, want 10s", server.server.WriteTimeout)
	}
	if server.server.IdleTimeout != 60*time.Second {
		t.Errorf("IdleTimeout = %v, want 60s", server.server.IdleTimeout)
	}
}

func TestServer_MetricsEndpointUsesGatherer(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "probe_total", Help: "probe"})
	reg.MustRegister(counter)
	counter.Add(3)

	server := NewServer("127.0.0.1:0", WithGatherer(reg))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "probe_total 3") {
		t.Fatalf("expected probe_total in exposition, got %q", rec.Body.String())
	}
}

func TestServer_HealthAndReady(t *testing.T) {
	t.Parallel()

	var readyErr error
	server := NewServer("127.0.0.1:0", WithReadiness(func() error { return readyErr }))

	cases := []struct {
		name     string
		path     string
		readyErr error
		wantCode int
		wantBody string
	}{
		{name: "health", path: "/api/v1/health", wantCode: http.StatusOK, wantBody: "OK"},
		{name: "ready", path: "/api/v1/ready", wantCode: http.StatusOK, wantBody: "READY"},
		{name: "not ready", path: "/api/v1/ready", readyErr: errors.New("store unavailable"), wantCode: http.StatusServiceUnavailable, wantBody: "store unavailable"},
	}

	for _, tc := range cases {
		readyErr = tc.readyErr
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))

		if rec.Code != tc.wantCode {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, tc.wantCode)
		}
		if !strings.Contains(rec.Body.String(), tc.wantBody) {
			t.Errorf("%s: body = %q, want substring %q", tc.name, rec.Body.String(), tc.wantBody)
		}
	}
}

func TestServer_FullLifecycle(t *testing.T) {
	t.Parallel()

	addr := fmt.Sprintf("127.0.0.1:%d", getFreePort(t))
	server := NewServer(addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	waitForServer(t, addr, 2*time.Second)

	resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/health", addr))
	if err != nil {
		t.Fatalf("failed to GET /api/v1/health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "OK" {
		t.Errorf("health body = %q, want OK", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("Start() did not return after shutdown")
	}
}

func TestServer_Start_PortInUse(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	server := NewServer(listener.Addr().String())
	if err := server.Start(); err == nil {
		t.Fatal("expected error when port is already bound")
	}
}

func TestServer_NilServer(t *testing.T) {
	t.Parallel()

	server := &Server{addr: ":0"}
	if err := server.Start(); err == nil {
		t.Fatal("expected Start error for uninitialized server")
	}
	if err := server.StartTLS("cert", "key", "", tls.NoClientCert); err == nil {
		t.Fatal("expected StartTLS error for uninitialized server")
	}
	if err := server.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected nil Shutdown error, got %v", err)
	}
}

func TestServer_StartTLS_InvalidCertFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cert := filepath.Join(dir, "missing.crt")
	key := filepath.Join(dir, "missing.key")

	server := NewServer("127.0.0.1:0")
	if err := server.StartTLS(cert, key, "", tls.NoClientCert); err == nil {
		t.Fatal("expected error for missing certificate")
	}
}

func TestServer_StartTLS_InvalidCAData(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ca := filepath.Join(dir, "ca.pem")
	if err := os.WriteFile(ca, []byte("not a certificate"), 0o600); err != nil {
		t.Fatalf("write ca: %v", err)
	}

	server := NewServer("127.0.0.1:0")
	if err := server.StartTLS(filepath.Join(dir, "c"), filepath.Join(dir, "k"), ca, tls.RequireAndVerifyClientCert); err == nil {
		t.Fatal("expected error for invalid CA data")
	}
}

func TestValidateAddress(t *testing.T) {
	t.Parallel()

	valid := []string{":9090", "127.0.0.1:8080", "0.0.0.0:80", "[::]:9090", "localhost:9000"}
	for _, addr := range valid {
		if err := validateAddress(addr); err != nil {
			t.Errorf("validateAddress(%q) = %v, want nil", addr, err)
		}
	}

	invalid := []string{"", "127.0.0.1", "127.0.0.1:", "no-such-host.invalid:80"}
	for _, addr := range invalid {
		if err := validateAddress(addr); err == nil {
			t.Errorf("validateAddress(%q) = nil, want error", addr)
		}
	}
}

func getFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

func waitForServer(t *testing.T, addr string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server at %s did not start within %v", addr, timeout)
}
