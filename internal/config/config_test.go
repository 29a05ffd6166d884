package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"HTTP_ENABLED", "HTTP_BIND", "ALLOW_PUBLIC_HTTP", "HTTP_RETRY_AFTER_SEC",
	"HTTP_RATE_LIMIT_RPS", "HTTP_RATE_LIMIT_BURST", "HTTP_TLS_ENABLED",
	"HTTP_TLS_CERT_FILE", "HTTP_TLS_KEY_FILE", "HTTP_TLS_CA_FILE", "HTTP_TLS_CLIENT_AUTH",
	"TLS_CERT_FILE", "TLS_KEY_FILE", "TLS_CA_FILE",
	"METRICS_BIND", "METRICS_ENABLED", "METRICS_TLS_ENABLED", "METRICS_TLS_CERT_FILE",
	"METRICS_TLS_KEY_FILE", "METRICS_TLS_CA_FILE", "METRICS_TLS_CLIENT_AUTH",
	"GRPC_ENABLED", "GRPC_BIND", "GRPC_TLS_ENABLED", "GRPC_TLS_CERT_FILE",
	"GRPC_TLS_KEY_FILE", "GRPC_TLS_CA_FILE", "GRPC_TLS_CLIENT_AUTH",
	"REMOTE_SERVER_ADDR", "REMOTE_TLS_ENABLED", "REMOTE_TLS_CA_FILE", "REMOTE_TLS_CERT_FILE",
	"REMOTE_TLS_KEY_FILE", "REMOTE_TLS_SERVER_NAME", "REMOTE_CONNECT_TIMEOUT",
	"REMOTE_OAUTH2_ENABLED", "REMOTE_OAUTH2_TOKEN_URL", "REMOTE_OAUTH2_CLIENT_ID",
	"REMOTE_OAUTH2_CLIENT_SECRET", "REMOTE_OAUTH2_CLIENT_SECRET_FILE", "REMOTE_OAUTH2_SCOPES",
	"MQTT_ENABLED", "MQTT_BROKER_URL", "MQTT_CLIENT_ID", "MQTT_TOPICS", "MQTT_RESULT_TOPIC",
	"MQTT_QOS", "MQTT_USERNAME", "MQTT_PASSWORD", "MQTT_PASSWORD_FILE", "MQTT_TLS_CA_FILE",
	"ANALYSIS_WORKERS", "ANALYSIS_DEFAULT_METRICS", "ANALYSIS_TIMEOUT",
	"ANALYSIS_MAX_BODY_BYTES", "DISPATCH_QUEUE_SIZE",
	"STORE_POSTGRES_DSN", "STORE_POSTGRES_DSN_FILE", "STORE_MEMORY_CAPACITY",
	"ENVIRONMENT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
	}
}

func validConfig() Config {
	return Config{
		HTTP:        HTTP{Enabled: true, Bind: defaultHTTPBind, TLSClientAuth: "none"},
		Metrics:     Metrics{Bind: defaultMetricsBind, Enabled: true, TLSClientAuth: "none"},
		GRPC:        GRPC{Bind: defaultGRPCBind, TLSClientAuth: "none"},
		MQTT:        MQTT{BrokerURL: "tcp://127.0.0.1:1883", Topics: []string{"sbox/analyze"}},
		Analysis:    Analysis{DefaultMetrics: []string{"lap"}, QueueSize: defaultQueueSize},
		Store:       Store{MemoryCapacity: defaultStoreCapacity},
		Environment: EnvironmentDevelopment,
	}
}

func TestConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.HTTP.Bind != defaultHTTPBind || !cfg.HTTP.Enabled {
		t.Fatalf("HTTP defaults = %+v", cfg.HTTP)
	}
	if cfg.HTTP.RateLimitRPS != defaultRateLimitRPS || cfg.HTTP.RateLimitBurst != defaultRateLimitBurst {
		t.Fatalf("rate limit defaults = %d/%d", cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst)
	}
	if cfg.HTTP.TLSClientAuth != "none" {
		t.Fatalf("TLSClientAuth default = %q, want none", cfg.HTTP.TLSClientAuth)
	}
	if cfg.Metrics.Bind != defaultMetricsBind || !cfg.Metrics.Enabled {
		t.Fatalf("Metrics defaults = %+v", cfg.Metrics)
	}
	if cfg.GRPC.Enabled || cfg.MQTT.Enabled {
		t.Fatalf("expected gRPC and MQTT to be disabled by default")
	}
	if strings.Join(cfg.MQTT.Topics, ",") != "sbox/analyze" {
		t.Fatalf("Topics default = %v", cfg.MQTT.Topics)
	}
	if strings.Join(cfg.Analysis.DefaultMetrics, ",") != "lap" {
		t.Fatalf("DefaultMetrics = %v, want [lap]", cfg.Analysis.DefaultMetrics)
	}
	if cfg.Analysis.Workers != 0 {
		t.Fatalf("Workers default = %d, want 0", cfg.Analysis.Workers)
	}
	if cfg.Analysis.Timeout != defaultAnalysisTimeout {
		t.Fatalf("Timeout default = %s", cfg.Analysis.Timeout)
	}
	if cfg.Analysis.MaxBodyBytes != defaultMaxBodyBytes || cfg.Analysis.QueueSize != defaultQueueSize {
		t.Fatalf("Analysis defaults = %+v", cfg.Analysis)
	}
	if cfg.Store.PostgresDSN != "" || cfg.Store.MemoryCapacity != defaultStoreCapacity {
		t.Fatalf("Store defaults = %+v", cfg.Store)
	}
	if !cfg.IsDevelopment() || cfg.IsProduction() {
		t.Fatalf("Environment default = %s", cfg.Environment)
	}
}

func TestConfig_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_BIND", "127.0.0.1:9999 # api")
	t.Setenv("HTTP_RATE_LIMIT_RPS", "50")
	t.Setenv("HTTP_RATE_LIMIT_BURST", "100")
	t.Setenv("MQTT_ENABLED", "yes")
	t.Setenv("MQTT_TOPICS", " sbox/a , ,sbox/b ")
	t.Setenv("MQTT_RESULT_TOPIC", "sbox/results")
	t.Setenv("MQTT_QOS", "1 # at least once")
	t.Setenv("ANALYSIS_WORKERS", "4")
	t.Setenv("ANALYSIS_DEFAULT_METRICS", "lap, sac,bic_nl")
	t.Setenv("ANALYSIS_TIMEOUT", "5s")
	t.Setenv("ANALYSIS_MAX_BODY_BYTES", "4096")
	t.Setenv("DISPATCH_QUEUE_SIZE", "8")
	t.Setenv("STORE_POSTGRES_DSN", "postgres://localhost/sbox")
	t.Setenv("STORE_MEMORY_CAPACITY", "10")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.HTTP.Bind != "127.0.0.1:9999" {
		t.Fatalf("HTTP.Bind = %q", cfg.HTTP.Bind)
	}
	if cfg.HTTP.RateLimitRPS != 50 || cfg.HTTP.RateLimitBurst != 100 {
		t.Fatalf("rate limit = %d/%d", cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst)
	}
	if !cfg.MQTT.Enabled || strings.Join(cfg.MQTT.Topics, ",") != "sbox/a,sbox/b" {
		t.Fatalf("MQTT = %+v", cfg.MQTT)
	}
	if cfg.MQTT.ResultTopic != "sbox/results" || cfg.MQTT.QoS != 1 {
		t.Fatalf("MQTT result/QoS = %q/%d", cfg.MQTT.ResultTopic, cfg.MQTT.QoS)
	}
	if cfg.Analysis.Workers != 4 || cfg.Analysis.Timeout != 5*time.Second || cfg.Analysis.MaxBodyBytes != 4096 {
		t.Fatalf("Analysis = %+v", cfg.Analysis)
	}
	if strings.Join(cfg.Analysis.DefaultMetrics, ",") != "lap,sac,bic_nl" {
		t.Fatalf("DefaultMetrics = %v", cfg.Analysis.DefaultMetrics)
	}
	if cfg.Analysis.QueueSize != 8 {
		t.Fatalf("QueueSize = %d", cfg.Analysis.QueueSize)
	}
	if cfg.Store.PostgresDSN != "postgres://localhost/sbox" || cfg.Store.MemoryCapacity != 10 {
		t.Fatalf("Store = %+v", cfg.Store)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production environment")
	}
}

func TestConfig_InvalidMQTTQoS(t *testing.T) {
	clearEnv(t)
	t.Setenv("MQTT_QOS", "high")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric MQTT_QOS")
	}
}

func TestConfig_QoSClamped(t *testing.T) {
	cases := map[string]byte{"-3": 0, "0": 0, "1": 1, "2": 1}
	for value, want := range cases {
		clearEnv(t)
		t.Setenv("MQTT_QOS", value)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("MQTT_QOS=%s: unexpected error %v", value, err)
		}
		if cfg.MQTT.QoS != want {
			t.Fatalf("MQTT_QOS=%s: got %d, want %d", value, cfg.MQTT.QoS, want)
		}
	}
}

func TestConfig_InvalidEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "staging")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown environment")
	}
}

func TestConfig_DispatchQueueSizeClamping(t *testing.T) {
	cases := []struct {
		value string
		want  int
	}{
		{value: "abc", want: defaultQueueSize},
		{value: "0", want: minQueueSize},
		{value: "-5", want: minQueueSize},
		{value: "1000000", want: maxQueueSize},
		{value: "256", want: 256},
	}

	for _, tc := range cases {
		clearEnv(t)
		t.Setenv("DISPATCH_QUEUE_SIZE", tc.value)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("DISPATCH_QUEUE_SIZE=%s: unexpected error %v", tc.value, err)
		}
		if cfg.Analysis.QueueSize != tc.want {
			t.Fatalf("DISPATCH_QUEUE_SIZE=%s: got %d, want %d", tc.value, cfg.Analysis.QueueSize, tc.want)
		}
	}
}

func TestConfig_PublicHTTPRequiresTLSInProduction(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALLOW_PUBLIC_HTTP", "true")
	t.Setenv("ENVIRONMENT", "prod")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "TLS is required") {
		t.Fatalf("expected TLS requirement error, got %v", err)
	}

	t.Setenv("ENVIRONMENT", "dev")
	if _, err := Load(); err != nil {
		t.Fatalf("expected dev mode to allow public HTTP, got %v", err)
	}
}

func TestConfig_SharedTLSFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("TLS_CERT_FILE", "/etc/tls/server.crt")
	t.Setenv("TLS_KEY_FILE", "/etc/tls/server.key")
	t.Setenv("HTTP_TLS_ENABLED", "true")
	t.Setenv("METRICS_TLS_CERT_FILE", "/etc/tls/metrics.crt")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HTTP.TLSCertFile != "/etc/tls/server.crt" || cfg.HTTP.TLSKeyFile != "/etc/tls/server.key" {
		t.Fatalf("HTTP TLS files = %q/%q", cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile)
	}
	if cfg.Metrics.TLSCertFile != "/etc/tls/metrics.crt" {
		t.Fatalf("Metrics TLS cert = %q", cfg.Metrics.TLSCertFile)
	}
}

func TestConfig_ValidationWithFactory(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid"},
		{
			name:    "http tls without cert",
			mutate:  func(c *Config) { c.HTTP.TLSEnabled = true; c.HTTP.TLSKeyFile = "k" },
			wantErr: "HTTP_TLS_CERT_FILE",
		},
		{
			name: "http tls bad client auth",
			mutate: func(c *Config) {
				c.HTTP.TLSEnabled, c.HTTP.TLSCertFile, c.HTTP.TLSKeyFile = true, "c", "k"
				c.HTTP.TLSClientAuth = "always"
			},
			wantErr: "HTTP_TLS_CLIENT_AUTH",
		},
		{
			name: "metrics mtls without ca",
			mutate: func(c *Config) {
				c.Metrics.TLSEnabled, c.Metrics.TLSCertFile, c.Metrics.TLSKeyFile = true, "c", "k"
				c.Metrics.TLSClientAuth = "require"
			},
			wantErr: "METRICS_TLS_CA_FILE",
		},
		{
			name:    "grpc tls without key",
			mutate:  func(c *Config) { c.GRPC.Enabled, c.GRPC.TLSEnabled, c.GRPC.TLSCertFile = true, true, "c" },
			wantErr: "GRPC_TLS_KEY_FILE",
		},
		{
			name:   "grpc tls ignored when disabled",
			mutate: func(c *Config) { c.GRPC.TLSEnabled = true },
		},
		{
			name:    "remote tls without ca",
			mutate:  func(c *Config) { c.Remote.ServerAddr, c.Remote.TLSEnabled = "a:1", true },
			wantErr: "REMOTE_TLS_CA_FILE",
		},
		{
			name: "remote half client cert",
			mutate: func(c *Config) {
				c.Remote.ServerAddr, c.Remote.TLSEnabled, c.Remote.TLSCAFile = "a:1", true, "ca"
				c.Remote.TLSCertFile = "c"
			},
			wantErr: "must both be set",
		},
		{
			name: "remote oauth2 without secret",
			mutate: func(c *Config) {
				c.Remote.ServerAddr, c.Remote.OAuth2Enabled = "a:1", true
				c.Remote.OAuth2TokenURL, c.Remote.OAuth2ClientID = "https://idp/token", "id"
			},
			wantErr: "REMOTE_OAUTH2_CLIENT_SECRET",
		},
		{
			name:    "mqtt without topics",
			mutate:  func(c *Config) { c.MQTT.Enabled, c.MQTT.Topics = true, nil },
			wantErr: "MQTT_TOPICS",
		},
		{
			name:    "mqtt without broker",
			mutate:  func(c *Config) { c.MQTT.Enabled, c.MQTT.BrokerURL = true, "" },
			wantErr: "MQTT_BROKER_URL",
		},
		{
			name:    "no default metrics",
			mutate:  func(c *Config) { c.Analysis.DefaultMetrics = nil },
			wantErr: "ANALYSIS_DEFAULT_METRICS",
		},
		{
			name:    "bad environment",
			mutate:  func(c *Config) { c.Environment = "qa" },
			wantErr: "environment",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			if tc.mutate != nil {
				tc.mutate(&cfg)
			}
			err := validate(&cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestConfig_SecretFiles(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	secret := filepath.Join(dir, "secret")
	if err := os.WriteFile(secret, []byte("  s3cr3t\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	dsn := filepath.Join(dir, "dsn")
	if err := os.WriteFile(dsn, []byte("postgres://u:p@db/sbox\n"), 0o600); err != nil {
		t.Fatalf("write dsn: %v", err)
	}

	t.Setenv("MQTT_PASSWORD", "ignored")
	t.Setenv("MQTT_PASSWORD_FILE", secret)
	t.Setenv("REMOTE_OAUTH2_CLIENT_SECRET_FILE", secret)
	t.Setenv("STORE_POSTGRES_DSN_FILE", dsn)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.MQTT.Password != "s3cr3t" || cfg.Remote.OAuth2ClientSecret != "s3cr3t" {
		t.Fatalf("secrets not read from file: %q/%q", cfg.MQTT.Password, cfg.Remote.OAuth2ClientSecret)
	}
	if cfg.Store.PostgresDSN != "postgres://u:p@db/sbox" {
		t.Fatalf("DSN = %q", cfg.Store.PostgresDSN)
	}
	if strings.Contains(cfg.String(), "p@db") {
		t.Fatalf("String() leaked the DSN: %s", cfg.String())
	}
	if !strings.Contains(cfg.String(), "Store=postgres") {
		t.Fatalf("String() = %s, want Store=postgres", cfg.String())
	}
}

func TestConfig_MissingSecretFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("MQTT_PASSWORD_FILE", filepath.Join(t.TempDir(), "absent"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing password file")
	}
}

func TestGetEnvDefault(t *testing.T) {
	t.Setenv("CONFIG_TEST_VALUE", "  value  # comment")
	if got := GetEnvDefault("CONFIG_TEST_VALUE", "fallback"); got != "value" {
		t.Fatalf("GetEnvDefault = %q, want value", got)
	}
	t.Setenv("CONFIG_TEST_VALUE", "   ")
	if got := GetEnvDefault("CONFIG_TEST_VALUE", "fallback"); got != "fallback" {
		t.Fatalf("GetEnvDefault = %q, want fallback", got)
	}
}

func TestParsePositiveEnvInt(t *testing.T) {
	cases := map[string]int{"12": 12, "0": 7, "-1": 7, "x": 7, "": 7, "3 # note": 3}
	for value, want := range cases {
		t.Setenv("CONFIG_TEST_INT", value)
		if got := ParsePositiveEnvInt("CONFIG_TEST_INT", 7); got != want {
			t.Errorf("ParsePositiveEnvInt(%q) = %d, want %d", value, got, want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	cases := map[string]time.Duration{
		"250ms": 250 * time.Millisecond,
		"2m":    2 * time.Minute,
		"30":    time.Second,
		"-5s":   time.Second,
		"soon":  time.Second,
	}
	for value, want := range cases {
		t.Setenv("CONFIG_TEST_DURATION", value)
		if got := ParseDurationEnv("CONFIG_TEST_DURATION", time.Second); got != want {
			t.Errorf("ParseDurationEnv(%q) = %s, want %s", value, got, want)
		}
	}
}

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value    string
		fallback bool
		want     bool
	}{
		{"true", false, true},
		{"ON", false, true},
		{"y", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
		{"", true, true},
	}
	for _, tc := range cases {
		t.Setenv("CONFIG_TEST_BOOL", tc.value)
		if got := ParseBoolEnv("CONFIG_TEST_BOOL", tc.fallback); got != tc.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tc.value, tc.fallback, got, tc.want)
		}
	}
}
