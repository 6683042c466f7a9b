package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	API     APIConfig
	Storage StorageConfig
	Observe ObserveConfig
}

// APIConfig locates the Clue API and controls the outgoing HTTP client.
type APIConfig struct {
	// URL is the origin of the Clue server, without the /api/<version> suffix.
	URL string `env:"CLUE_API_URL, default=http://localhost:5000"`

	TimeoutSeconds int `env:"CLUE_HTTP_TIMEOUT_SECS, default=30"`

	RetryMax                  int `env:"CLUE_RETRY_MAX, default=3"`
	RetryInitialIntervalMilli int `env:"CLUE_RETRY_INITIAL_INTERVAL_MS, default=100"`

	OutgoingHTTPMaxIdleConns    int `env:"CLUE_OUTGOING_MAX_IDLE_CONNS, default=100"`
	OutgoingHTTPMaxConnsPerHost int `env:"CLUE_OUTGOING_MAX_CONNS_PER_HOST, default=20"`
}

// Timeout is the overall client timeout; zero disables it.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryInitialInterval is the first backoff delay.
func (c APIConfig) RetryInitialInterval() time.Duration {
	return time.Duration(c.RetryInitialIntervalMilli) * time.Millisecond
}

// StorageConfig specifies where durable and session-scoped values live.
type StorageConfig struct {
	// Dir holds the durable sqlite store. Empty selects the user config
	// directory.
	Dir string `env:"CLUE_STORAGE_DIR"`

	// SessionType selects the session-scoped backend: "memory" (default) or
	// "valkey".
	SessionType string `env:"CLUE_SESSION_TYPE, default=memory"`

	Valkey ValkeyConfig

	Encryption EncryptionConfig
}

// ValkeyConfig specifies the shared session backend.
type ValkeyConfig struct {
	// Address is the Valkey server address (host:port).
	Address string `env:"VALKEY_ADDRESS"`

	// TLS enables TLS connection to Valkey. Defaults to true so the secure option
	// is the default.
	TLS bool `env:"VALKEY_TLS, default=true"`

	Username string `env:"VALKEY_USERNAME"`
	Password string `env:"VALKEY_PASSWORD"`
}

// EncryptionConfig holds settings for encrypting durable values at rest.
type EncryptionConfig struct {
	// KeysetFile is a cleartext Tink keyset in JSON format. Intended for local
	// use only.
	KeysetFile string `env:"CLUE_STORAGE_ENCRYPTION_KEYSET_FILE"`

	// KeysetURI is the URI to the encrypted Tink keyset.
	// Format: aws-secretsmanager://secret-name
	KeysetURI string `env:"CLUE_STORAGE_ENCRYPTION_KEYSET_URI"`

	// KMSEnvelopeKeyURI is the AWS KMS key URI for envelope encryption.
	// Format: aws-kms://arn:aws:kms:region:account:key/key-id
	KMSEnvelopeKeyURI string `env:"CLUE_STORAGE_ENCRYPTION_KMS_KEY_URI"`
}

// Enabled reports whether any keyset source is configured.
func (e EncryptionConfig) Enabled() bool {
	return e.KeysetFile != "" || e.KeysetURI != ""
}

type ObserveConfig struct {
	SDKLogLevel                string `env:"OBSERVE_OTEL_LOG_LEVEL, default=info"`
	Enabled                    bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled             bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                       string `env:"OBSERVE_TYPE, default=grpc"`
	ServiceName                string `env:"OBSERVE_SERVICE_NAME, default=clue-client"`
	TraceBatchTimeoutSeconds   int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds  int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
	HTTPTransportEnabled       bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
	HTTPConnectionTraceEnabled bool   `env:"OBSERVE_CONNECTION_TRACE_ENABLED, default=true"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	err = cfg.Validate()
	if err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks settings that cannot be expressed as envconfig tags.
func (c *Config) Validate() error {
	if c.API.URL == "" {
		return fmt.Errorf("CLUE_API_URL must not be empty")
	}

	if c.API.RetryMax < 0 {
		return fmt.Errorf("CLUE_RETRY_MAX must not be negative")
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage configuration: %w", err)
	}

	return nil
}

// Validate checks that the storage configuration is valid.
func (s *StorageConfig) Validate() error {
	switch s.SessionType {
	case "memory":
	case "valkey":
		if s.Valkey.Address == "" {
			return fmt.Errorf("VALKEY_ADDRESS required when CLUE_SESSION_TYPE=valkey")
		}
	default:
		return fmt.Errorf("invalid session type %q: must be either \"memory\" or \"valkey\"", s.SessionType)
	}

	if s.Encryption.KeysetURI != "" && s.Encryption.KMSEnvelopeKeyURI == "" {
		return fmt.Errorf("CLUE_STORAGE_ENCRYPTION_KMS_KEY_URI required when a keyset URI is configured")
	}

	return nil
}

// ResolveDir returns the durable storage directory, falling back to
// <user config dir>/clue.
func (s StorageConfig) ResolveDir() (string, error) {
	if s.Dir != "" {
		return s.Dir, nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not locate user config directory: %w", err)
	}

	return filepath.Join(base, "clue"), nil
}
