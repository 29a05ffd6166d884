// Package config provides configuration management for the sbox-analyzer
// service. Configuration is loaded from environment variables with sensible
// defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Environment constants define the application runtime environments.
const (
	EnvironmentDevelopment   = "dev"
	EnvironmentProduction    = "prod"
	defaultHTTPBind          = "127.0.0.1:8081"
	defaultMetricsBind       = "127.0.0.1:8080"
	defaultGRPCBind          = "127.0.0.1:9090"
	defaultRetryAfterSeconds = 1
	defaultRateLimitRPS      = 10
	defaultRateLimitBurst    = 20
	defaultAnalysisTimeout   = 30 * time.Second
	defaultMaxBodyBytes      = 1 << 20
	defaultQueueSize         = 64
	minQueueSize             = 1
	maxQueueSize             = 65536
	defaultStoreCapacity     = 1024
)

// HTTP contains configuration for the analysis API server.
type HTTP struct {
	Enabled        bool   `json:"enabled"`
	Bind           string `json:"bind"`             // Bind address (e.g., "127.0.0.1:8081")
	AllowPublic    bool   `json:"allow_public"`     // Permit binding to non-loopback interfaces
	RetryAfterSec  int    `json:"retry_after_sec"`  // Retry-After value on 503 responses
	RateLimitRPS   int    `json:"rate_limit_rps"`   // Analysis requests per second
	RateLimitBurst int    `json:"rate_limit_burst"` // Burst allowance
	TLSEnabled     bool   `json:"tls_enabled"`
	TLSCertFile    string `json:"tls_cert_file"`
	TLSKeyFile     string `json:"tls_key_file"`
	TLSCAFile      string `json:"tls_ca_file"`     // CA for mTLS client verification (optional)
	TLSClientAuth  string `json:"tls_client_auth"` // "none", "request" or "require"
}

// Metrics contains Prometheus metrics server configuration
type Metrics struct {
	Bind          string `json:"bind"`
	Enabled       bool   `json:"enabled"`
	TLSEnabled    bool   `json:"tls_enabled"`
	TLSCertFile   string `json:"tls_cert_file"`
	TLSKeyFile    string `json:"tls_key_file"`
	TLSCAFile     string `json:"tls_ca_file"`
	TLSClientAuth string `json:"tls_client_auth"`
}

// GRPC contains gRPC analysis server configuration
type GRPC struct {
	Enabled       bool   `json:"enabled"`
	Bind          string `json:"bind"`
	TLSEnabled    bool   `json:"tls_enabled"`
	TLSCertFile   string `json:"tls_cert_file"`
	TLSKeyFile    string `json:"tls_key_file"`
	TLSCAFile     string `json:"tls_ca_file"`
	TLSClientAuth string `json:"tls_client_auth"`
}

// Remote contains gRPC client configuration for delegating analyses to a
// remote analyzer.
type Remote struct {
	ServerAddr     string `json:"server_addr"` // e.g. "analyzer.example.com:9090"
	TLSEnabled     bool   `json:"tls_enabled"`
	TLSCAFile      string `json:"tls_ca_file"`
	TLSCertFile    string `json:"tls_cert_file"` // Client certificate for mTLS (optional)
	TLSKeyFile     string `json:"tls_key_file"`
	TLSServerName  string `json:"tls_server_name"`
	ConnectTimeout int    `json:"connect_timeout"` // Seconds

	OAuth2Enabled      bool   `json:"oauth2_enabled"`
	OAuth2TokenURL     string `json:"oauth2_token_url"`
	OAuth2ClientID     string `json:"oauth2_client_id"`
	OAuth2ClientSecret string `json:"oauth2_client_secret"`
	OAuth2Scopes       string `json:"oauth2_scopes"` // Space-separated
}

// MQTT contains configuration for the MQTT broker connection.
type MQTT struct {
	Enabled     bool     `json:"enabled"`
	BrokerURL   string   `json:"broker_url"`   // e.g. "tcp://localhost:1883" or "ssl://mqtt.example.com:8883"
	ClientID    string   `json:"client_id"`    // Generated if empty
	Topics      []string `json:"topics"`       // Request topics to subscribe to
	ResultTopic string   `json:"result_topic"` // Fixed result topic; "<request topic>/result" when empty
	QoS         byte     `json:"qos"`          // 0 or 1
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	TLSCAFile   string   `json:"tls_ca_file"`
}

// Analysis contains metric engine and job dispatch configuration.
type Analysis struct {
	Workers        int           `json:"workers"`         // Goroutines per metric scan; 0 means GOMAXPROCS
	DefaultMetrics []string      `json:"default_metrics"` // Used when a request names no metrics
	Timeout        time.Duration `json:"timeout"`         // Per-analysis deadline; 0 disables
	MaxBodyBytes   int           `json:"max_body_bytes"`  // Request body cap for uploads
	QueueSize      int           `json:"queue_size"`      // Dispatch queue capacity
}

// Store contains report persistence configuration.
type Store struct {
	PostgresDSN    string `json:"-"`               // Enables the Postgres store when set
	MemoryCapacity int    `json:"memory_capacity"` // Reports kept by the in-memory store
}

// Config holds the complete application configuration.
type Config struct {
	HTTP        HTTP     `json:"http"`
	Metrics     Metrics  `json:"metrics"`
	GRPC        GRPC     `json:"grpc"`
	Remote      Remote   `json:"remote"`
	MQTT        MQTT     `json:"mqtt"`
	Analysis    Analysis `json:"analysis"`
	Store       Store    `json:"store"`
	Environment string   `json:"environment"` // "dev" or "prod"
}

// Load reads configuration from environment variables and returns a validated Config.
func Load() (Config, error) {
	configuration := Config{
		HTTP: HTTP{
			Enabled:        true,
			Bind:           defaultHTTPBind,
			RetryAfterSec:  defaultRetryAfterSeconds,
			RateLimitRPS:   defaultRateLimitRPS,
			RateLimitBurst: defaultRateLimitBurst,
		},
		Metrics: Metrics{
			Bind:    defaultMetricsBind,
			Enabled: true,
		},
		GRPC: GRPC{
			Bind: defaultGRPCBind,
		},
		Remote: Remote{
			ConnectTimeout: 10,
		},
		MQTT: MQTT{
			BrokerURL: "tcp://127.0.0.1:1883",
			Topics:    []string{"sbox/analyze"},
		},
		Analysis: Analysis{
			DefaultMetrics: []string{"lap"},
			Timeout:        defaultAnalysisTimeout,
			MaxBodyBytes:   defaultMaxBodyBytes,
			QueueSize:      defaultQueueSize,
		},
		Store: Store{
			MemoryCapacity: defaultStoreCapacity,
		},
		Environment: EnvironmentDevelopment,
	}

	appliers := []func(*Config) error{
		applyHTTPEnvVars,
		applyMetricsEnvVars,
		applyGRPCEnvVars,
		applyRemoteEnvVars,
		applyMQTTEnvVars,
		applyAnalysisEnvVars,
		applyStoreEnvVars,
		applyEnvironmentEnvVars,
	}
	for _, apply := range appliers {
		if err := apply(&configuration); err != nil {
			return configuration, err
		}
	}

	if err := validate(&configuration); err != nil {
		return configuration, err
	}

	return configuration, nil
}

// applyHTTPEnvVars reads the analysis API server variables. TLS files fall
// back to the shared TLS_* variables.
func applyHTTPEnvVars(configuration *Config) error {
	configuration.HTTP.Enabled = ParseBoolEnv("HTTP_ENABLED", configuration.HTTP.Enabled)
	configuration.HTTP.Bind = GetEnvDefault("HTTP_BIND", configuration.HTTP.Bind)
	configuration.HTTP.AllowPublic = ParseBoolEnv("ALLOW_PUBLIC_HTTP", configuration.HTTP.AllowPublic)
	configuration.HTTP.RetryAfterSec = ParsePositiveEnvInt("HTTP_RETRY_AFTER_SEC", configuration.HTTP.RetryAfterSec)
	configuration.HTTP.RateLimitRPS = ParsePositiveEnvInt("HTTP_RATE_LIMIT_RPS", configuration.HTTP.RateLimitRPS)
	configuration.HTTP.RateLimitBurst = ParsePositiveEnvInt("HTTP_RATE_LIMIT_BURST", configuration.HTTP.RateLimitBurst)

	configuration.HTTP.TLSEnabled = ParseBoolEnv("HTTP_TLS_ENABLED", configuration.HTTP.TLSEnabled)
	configuration.HTTP.TLSCertFile = GetEnvDefault("HTTP_TLS_CERT_FILE", os.Getenv("TLS_CERT_FILE"))
	configuration.HTTP.TLSKeyFile = GetEnvDefault("HTTP_TLS_KEY_FILE", os.Getenv("TLS_KEY_FILE"))
	configuration.HTTP.TLSCAFile = GetEnvDefault("HTTP_TLS_CA_FILE", os.Getenv("TLS_CA_FILE"))
	configuration.HTTP.TLSClientAuth = clientAuthEnv("HTTP_TLS_CLIENT_AUTH")

	return nil
}

// applyMetricsEnvVars reads Prometheus metrics server environment variables
func applyMetricsEnvVars(configuration *Config) error {
	configuration.Metrics.Bind = GetEnvDefault("METRICS_BIND", configuration.Metrics.Bind)
	configuration.Metrics.Enabled = ParseBoolEnv("METRICS_ENABLED", configuration.Metrics.Enabled)

	configuration.Metrics.TLSEnabled = ParseBoolEnv("METRICS_TLS_ENABLED", configuration.Metrics.TLSEnabled)
	configuration.Metrics.TLSCertFile = GetEnvDefault("METRICS_TLS_CERT_FILE", os.Getenv("TLS_CERT_FILE"))
	configuration.Metrics.TLSKeyFile = GetEnvDefault("METRICS_TLS_KEY_FILE", os.Getenv("TLS_KEY_FILE"))
	configuration.Metrics.TLSCAFile = GetEnvDefault("METRICS_TLS_CA_FILE", os.Getenv("TLS_CA_FILE"))
	configuration.Metrics.TLSClientAuth = clientAuthEnv("METRICS_TLS_CLIENT_AUTH")

	return nil
}

// applyGRPCEnvVars reads gRPC server environment variables
func applyGRPCEnvVars(configuration *Config) error {
	configuration.GRPC.Enabled = ParseBoolEnv("GRPC_ENABLED", configuration.GRPC.Enabled)
	configuration.GRPC.Bind = GetEnvDefault("GRPC_BIND", configuration.GRPC.Bind)

	configuration.GRPC.TLSEnabled = ParseBoolEnv("GRPC_TLS_ENABLED", configuration.GRPC.TLSEnabled)
	configuration.GRPC.TLSCertFile = GetEnvDefault("GRPC_TLS_CERT_FILE", configuration.GRPC.TLSCertFile)
	configuration.GRPC.TLSKeyFile = GetEnvDefault("GRPC_TLS_KEY_FILE", configuration.GRPC.TLSKeyFile)
	configuration.GRPC.TLSCAFile = GetEnvDefault("GRPC_TLS_CA_FILE", configuration.GRPC.TLSCAFile)
	configuration.GRPC.TLSClientAuth = clientAuthEnv("GRPC_TLS_CLIENT_AUTH")

	return nil
}

// applyRemoteEnvVars reads the remote analyzer client variables, including
// the OAuth2 client-credentials settings.
func applyRemoteEnvVars(configuration *Config) error {
	configuration.Remote.ServerAddr = GetEnvDefault("REMOTE_SERVER_ADDR", configuration.Remote.ServerAddr)

	configuration.Remote.TLSEnabled = ParseBoolEnv("REMOTE_TLS_ENABLED", configuration.Remote.TLSEnabled)
	configuration.Remote.TLSCAFile = GetEnvDefault("REMOTE_TLS_CA_FILE", os.Getenv("TLS_CA_FILE"))
	configuration.Remote.TLSCertFile = GetEnvDefault("REMOTE_TLS_CERT_FILE", os.Getenv("TLS_CERT_FILE"))
	configuration.Remote.TLSKeyFile = GetEnvDefault("REMOTE_TLS_KEY_FILE", os.Getenv("TLS_KEY_FILE"))
	configuration.Remote.TLSServerName = GetEnvDefault("REMOTE_TLS_SERVER_NAME", configuration.Remote.TLSServerName)
	configuration.Remote.ConnectTimeout = ParsePositiveEnvInt("REMOTE_CONNECT_TIMEOUT", configuration.Remote.ConnectTimeout)

	configuration.Remote.OAuth2Enabled = ParseBoolEnv("REMOTE_OAUTH2_ENABLED", configuration.Remote.OAuth2Enabled)
	configuration.Remote.OAuth2TokenURL = GetEnvDefault("REMOTE_OAUTH2_TOKEN_URL", configuration.Remote.OAuth2TokenURL)
	configuration.Remote.OAuth2ClientID = GetEnvDefault("REMOTE_OAUTH2_CLIENT_ID", configuration.Remote.OAuth2ClientID)
	if v := os.Getenv("REMOTE_OAUTH2_CLIENT_SECRET"); v != "" {
		configuration.Remote.OAuth2ClientSecret = v
	}
	if secretFile := os.Getenv("REMOTE_OAUTH2_CLIENT_SECRET_FILE"); secretFile != "" {
		secretBytes, err := readSecretFile(secretFile)
		if err != nil {
			return fmt.Errorf("config: failed to read REMOTE_OAUTH2_CLIENT_SECRET_FILE: %w", err)
		}
		configuration.Remote.OAuth2ClientSecret = strings.TrimSpace(string(secretBytes))
	}
	if v := os.Getenv("REMOTE_OAUTH2_SCOPES"); v != "" {
		configuration.Remote.OAuth2Scopes = v
	}

	return nil
}

// applyMQTTEnvVars reads MQTT environment variables. MQTT_TOPICS is a
// comma-separated list of request topics and MQTT_QOS is clamped to 0 or 1.
func applyMQTTEnvVars(configuration *Config) error {
	configuration.MQTT.Enabled = ParseBoolEnv("MQTT_ENABLED", configuration.MQTT.Enabled)
	configuration.MQTT.BrokerURL = GetEnvDefault("MQTT_BROKER_URL", configuration.MQTT.BrokerURL)
	configuration.MQTT.ClientID = GetEnvDefault("MQTT_CLIENT_ID", configuration.MQTT.ClientID)
	configuration.MQTT.ResultTopic = GetEnvDefault("MQTT_RESULT_TOPIC", configuration.MQTT.ResultTopic)

	if v := os.Getenv("MQTT_TOPICS"); v != "" {
		if topics := splitList(v); len(topics) > 0 {
			configuration.MQTT.Topics = topics
		}
	}

	if v := os.Getenv("MQTT_QOS"); v != "" {
		qos, err := strconv.Atoi(cleanEnvValue(v))
		if err != nil {
			return errors.New("config: MQTT_QOS must be a number (0 or 1)")
		}
		configuration.MQTT.QoS = byte(min(max(qos, 0), 1))
	}

	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		configuration.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		configuration.MQTT.Password = v
	}
	if passwordFile := os.Getenv("MQTT_PASSWORD_FILE"); passwordFile != "" {
		passwordBytes, err := readSecretFile(passwordFile)
		if err != nil {
			return fmt.Errorf("config: failed to read MQTT_PASSWORD_FILE: %w", err)
		}
		configuration.MQTT.Password = strings.TrimSpace(string(passwordBytes))
	}
	if v := os.Getenv("MQTT_TLS_CA_FILE"); v != "" {
		configuration.MQTT.TLSCAFile = v
	}

	return nil
}

// applyAnalysisEnvVars reads engine and dispatch variables.
// DISPATCH_QUEUE_SIZE is clamped to [minQueueSize, maxQueueSize].
func applyAnalysisEnvVars(configuration *Config) error {
	configuration.Analysis.Workers = ParsePositiveEnvInt("ANALYSIS_WORKERS", configuration.Analysis.Workers)
	configuration.Analysis.Timeout = ParseDurationEnv("ANALYSIS_TIMEOUT", configuration.Analysis.Timeout)
	configuration.Analysis.MaxBodyBytes = ParsePositiveEnvInt("ANALYSIS_MAX_BODY_BYTES", configuration.Analysis.MaxBodyBytes)

	if v := os.Getenv("ANALYSIS_DEFAULT_METRICS"); v != "" {
		if names := splitList(v); len(names) > 0 {
			configuration.Analysis.DefaultMetrics = names
		}
	}

	if v := os.Getenv("DISPATCH_QUEUE_SIZE"); v != "" {
		parsed, err := strconv.Atoi(cleanEnvValue(v))
		if err != nil {
			log.Printf("config: DISPATCH_QUEUE_SIZE invalid (%q), using default %d", v, defaultQueueSize)
			configuration.Analysis.QueueSize = defaultQueueSize
			return nil
		}

		if parsed < minQueueSize {
			log.Printf("config: DISPATCH_QUEUE_SIZE (%d) below minimum (%d), clamping to min", parsed, minQueueSize)
			configuration.Analysis.QueueSize = minQueueSize
		} else if parsed > maxQueueSize {
			log.Printf("config: DISPATCH_QUEUE_SIZE (%d) above maximum (%d), clamping to max", parsed, maxQueueSize)
			configuration.Analysis.QueueSize = maxQueueSize
		} else {
			configuration.Analysis.QueueSize = parsed
		}
	}

	return nil
}

// applyStoreEnvVars reads report store variables. The DSN may also come
// from a file so credentials stay out of the environment.
func applyStoreEnvVars(configuration *Config) error {
	configuration.Store.PostgresDSN = GetEnvDefault("STORE_POSTGRES_DSN", configuration.Store.PostgresDSN)
	if dsnFile := os.Getenv("STORE_POSTGRES_DSN_FILE"); dsnFile != "" {
		dsnBytes, err := readSecretFile(dsnFile)
		if err != nil {
			return fmt.Errorf("config: failed to read STORE_POSTGRES_DSN_FILE: %w", err)
		}
		configuration.Store.PostgresDSN = strings.TrimSpace(string(dsnBytes))
	}
	configuration.Store.MemoryCapacity = ParsePositiveEnvInt("STORE_MEMORY_CAPACITY", configuration.Store.MemoryCapacity)
	return nil
}

// applyEnvironmentEnvVars normalizes ENVIRONMENT into "dev" or "prod".
func applyEnvironmentEnvVars(configuration *Config) error {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		switch strings.ToLower(cleanEnvValue(v)) {
		case "dev", "development":
			configuration.Environment = EnvironmentDevelopment
		case "prod", "production":
			configuration.Environment = EnvironmentProduction
		default:
			return errors.New("config: ENVIRONMENT must be 'dev' or 'prod'")
		}
	}
	return nil
}

var validClientAuthModes = map[string]bool{
	"none":    true,
	"request": true,
	"require": true,
}

// validateServerTLS checks one server TLS block; prefix names its env vars.
func validateServerTLS(prefix, certFile, keyFile, caFile, clientAuth string) error {
	if certFile == "" {
		return fmt.Errorf("config: %s_TLS_CERT_FILE is required when %s_TLS_ENABLED=true", prefix, prefix)
	}
	if keyFile == "" {
		return fmt.Errorf("config: %s_TLS_KEY_FILE is required when %s_TLS_ENABLED=true", prefix, prefix)
	}
	if !validClientAuthModes[clientAuth] {
		return fmt.Errorf("config: %s_TLS_CLIENT_AUTH must be 'none', 'request', or 'require', got %q", prefix, clientAuth)
	}
	if clientAuth == "require" && caFile == "" {
		return fmt.Errorf("config: %s_TLS_CA_FILE is required when %s_TLS_CLIENT_AUTH=require", prefix, prefix)
	}
	return nil
}

// validate checks that required configuration fields are present and valid.
func validate(configuration *Config) error {
	if configuration.Environment != EnvironmentDevelopment && configuration.Environment != EnvironmentProduction {
		return errors.New("config: environment must be 'dev' or 'prod'")
	}

	if configuration.HTTP.TLSEnabled {
		h := configuration.HTTP
		if err := validateServerTLS("HTTP", h.TLSCertFile, h.TLSKeyFile, h.TLSCAFile, h.TLSClientAuth); err != nil {
			return err
		}
	}

	if configuration.HTTP.AllowPublic && !configuration.HTTP.TLSEnabled {
		if configuration.IsProduction() {
			return errors.New("config: SECURITY: TLS is required when ALLOW_PUBLIC_HTTP=true in production mode")
		}
		log.Printf("WARNING: Running public HTTP without TLS in development mode - this is insecure!")
	}

	if configuration.Metrics.TLSEnabled {
		m := configuration.Metrics
		if err := validateServerTLS("METRICS", m.TLSCertFile, m.TLSKeyFile, m.TLSCAFile, m.TLSClientAuth); err != nil {
			return err
		}
	}

	if configuration.GRPC.Enabled && configuration.GRPC.TLSEnabled {
		g := configuration.GRPC
		if err := validateServerTLS("GRPC", g.TLSCertFile, g.TLSKeyFile, g.TLSCAFile, g.TLSClientAuth); err != nil {
			return err
		}
	}

	if configuration.Remote.ServerAddr != "" {
		remote := configuration.Remote
		if remote.TLSEnabled {
			if remote.TLSCAFile == "" {
				return errors.New("config: REMOTE_TLS_CA_FILE is required when REMOTE_TLS_ENABLED=true")
			}
			if (remote.TLSCertFile != "") != (remote.TLSKeyFile != "") {
				return errors.New("config: REMOTE_TLS_CERT_FILE and REMOTE_TLS_KEY_FILE must both be set or both be empty")
			}
		}
		if remote.OAuth2Enabled {
			if remote.OAuth2TokenURL == "" {
				return errors.New("config: REMOTE_OAUTH2_TOKEN_URL is required when REMOTE_OAUTH2_ENABLED=true")
			}
			if remote.OAuth2ClientID == "" {
				return errors.New("config: REMOTE_OAUTH2_CLIENT_ID is required when REMOTE_OAUTH2_ENABLED=true")
			}
			if remote.OAuth2ClientSecret == "" {
				return errors.New("config: REMOTE_OAUTH2_CLIENT_SECRET is required when REMOTE_OAUTH2_ENABLED=true")
			}
		}
	}

	if configuration.MQTT.Enabled {
		if configuration.MQTT.BrokerURL == "" {
			return errors.New("config: MQTT_BROKER_URL is required when MQTT_ENABLED=true")
		}
		if len(configuration.MQTT.Topics) == 0 {
			return errors.New("config: MQTT_TOPICS is required (at least one topic)")
		}
	}

	if len(configuration.Analysis.DefaultMetrics) == 0 {
		return errors.New("config: ANALYSIS_DEFAULT_METRICS must name at least one metric")
	}

	return nil
}

// IsProduction returns true if the application is running in production mode.
func (cfg *Config) IsProduction() bool {
	return cfg.Environment == EnvironmentProduction
}

// IsDevelopment returns true if the application is running in development mode.
func (cfg *Config) IsDevelopment() bool {
	return cfg.Environment == EnvironmentDevelopment
}

// String returns a human-readable representation of the configuration.
// Secrets are never included.
func (cfg *Config) String() string {
	store := "memory"
	if cfg.Store.PostgresDSN != "" {
		store = "postgres"
	}
	return "Config{" +
		"Environment=" + cfg.Environment +
		", HTTP.Bind=" + cfg.HTTP.Bind +
		", Analysis.DefaultMetrics=" + strings.Join(cfg.Analysis.DefaultMetrics, ",") +
		", MQTT.Enabled=" + strconv.FormatBool(cfg.MQTT.Enabled) +
		", GRPC.Enabled=" + strconv.FormatBool(cfg.GRPC.Enabled) +
		", Store=" + store +
		"}"
}

func clientAuthEnv(key string) string {
	if v := os.Getenv(key); v != "" {
		return strings.ToLower(cleanEnvValue(v))
	}
	return "none"
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(cleanEnvValue(value), ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func readSecretFile(path string) ([]byte, error) {
	absPath, err := sanitizeAbsolutePath(path)
	if err != nil {
		return nil, err
	}
	return readFileWithinRoot(absPath)
}

func sanitizeAbsolutePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("config: empty file path")
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("config: resolve path %q: %w", path, err)
	}
	return abs, nil
}

func readFileWithinRoot(absPath string) ([]byte, error) {
	f, err := os.OpenInRoot(filepath.Dir(absPath), filepath.Base(absPath))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("config: error closing file: %v", err)
		}
	}()
	return io.ReadAll(f)
}

// cleanEnvValue removes inline comments and trims whitespace, matching the
// systemd EnvironmentFile format ("127.0.0.1:8080 # bind address").
func cleanEnvValue(value string) string {
	cleaned := strings.TrimSpace(value)
	if idx := strings.Index(cleaned, "#"); idx >= 0 {
		cleaned = strings.TrimSpace(cleaned[:idx])
	}
	return cleaned
}

// GetEnvDefault retrieves an environment variable or returns a fallback value.
// Empty or whitespace-only values are treated as unset.
func GetEnvDefault(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		if cleaned := cleanEnvValue(value); cleaned != "" {
			return cleaned
		}
	}
	return fallback
}

// ParsePositiveEnvInt reads an integer environment variable. It returns the
// fallback if the variable is unset, invalid, or non-positive, logging the
// latter two cases.
func ParsePositiveEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	cleaned := cleanEnvValue(value)
	if cleaned == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(cleaned)
	if err != nil {
		log.Printf("config: %s invalid (%q), using fallback %d", key, value, fallback)
		return fallback
	}
	if parsed <= 0 {
		log.Printf("config: %s non-positive (%d), using fallback %d", key, parsed, fallback)
		return fallback
	}
	return parsed
}

// ParseDurationEnv reads a duration environment variable such as "500ms" or
// "30s". A unit suffix is required; invalid or negative values fall back.
func ParseDurationEnv(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	cleaned := cleanEnvValue(value)
	if cleaned == "" {
		return fallback
	}
	if !strings.ContainsFunc(cleaned, func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
	}) {
		log.Printf("config: %s missing duration unit (%q), using fallback %s", key, value, fallback)
		return fallback
	}
	parsed, err := time.ParseDuration(cleaned)
	if err != nil {
		log.Printf("config: %s invalid (%q), using fallback %s", key, value, fallback)
		return fallback
	}
	if parsed < 0 {
		log.Printf("config: %s negative (%s), using fallback %s", key, parsed, fallback)
		return fallback
	}
	return parsed
}

// ParseBoolEnv interprets typical boolean environment values (true/false, 1/0, yes/no).
func ParseBoolEnv(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	cleaned := cleanEnvValue(value)
	if cleaned == "" {
		return fallback
	}
	switch strings.ToLower(cleaned) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		log.Printf("config: %s has unrecognised boolean value %q, using fallback %v", key, value, fallback)
		return fallback
	}
}
