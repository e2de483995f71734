package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vvka-141/mboxdb/internal/dialect"
	"github.com/vvka-141/mboxdb/internal/retry"
	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

// ErrConfigNotFound is returned when the config file does not exist.
// Callers can check for this with errors.Is(err, config.ErrConfigNotFound).
var ErrConfigNotFound = errors.New("config file not found")

// ConnectionConfig is the connection section of mboxdb.yaml. The password is
// never read from the file; it comes from $MBOXDB_PASSWORD.
type ConnectionConfig struct {
	Backend        string `yaml:"backend"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Database       string `yaml:"database"`
	SSLMode        string `yaml:"sslmode"`
	Path           string `yaml:"path,omitempty"`
	AppName        string `yaml:"app_name,omitempty"`
	ConnectTimeout string `yaml:"connect_timeout,omitempty"`
	AuthMethod     string `yaml:"auth_method,omitempty"`
	AWSRegion      string `yaml:"aws_region,omitempty"`
	AzureTenantID  string `yaml:"azure_tenant_id,omitempty"`
	AzureClientID  string `yaml:"azure_client_id,omitempty"`
	GoogleInstance string `yaml:"google_instance,omitempty"`
}

// RetryConfig is the retry section. Durations use time.ParseDuration syntax.
type RetryConfig struct {
	MaxAttempts *int     `yaml:"max_attempts"`
	BaseDelay   string   `yaml:"base_delay"`
	Backoff     string   `yaml:"backoff"` // fixed (default) or exponential
	MaxDelay    string   `yaml:"max_delay,omitempty"`
	Multiplier  float64  `yaml:"multiplier,omitempty"`
	Jitter      *float64 `yaml:"jitter,omitempty"`
}

// DialectConfig layers site-specific settings over the built-in profile of
// the configured backend.
type DialectConfig struct {
	IndexHints   map[string]string `yaml:"index_hints"`
	Capabilities map[string]bool   `yaml:"capabilities"`
}

type MetricsConfig struct {
	Address string `yaml:"address"`
}

// Config is the parsed mboxdb.yaml.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Retry      RetryConfig      `yaml:"retry"`
	Dialect    DialectConfig    `yaml:"dialect"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// Load reads mboxdb.yaml from dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, mboxdb.ConfigFileName))
}

// LoadFile reads and validates the config file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Connection.Backend != "" {
		if _, err := mboxdb.ParseBackend(c.Connection.Backend); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := mboxdb.ParseAuthMethod(c.Connection.AuthMethod); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseDuration("connection.connect_timeout", c.Connection.ConnectTimeout); err != nil {
		errs = append(errs, err)
	}

	if _, err := c.Retry.Policy(); err != nil {
		errs = append(errs, err)
	}

	for name := range c.Dialect.Capabilities {
		if _, err := dialect.ParseCapability(name); err != nil {
			errs = append(errs, fmt.Errorf("dialect.capabilities: %w: %w", err, mboxdb.ErrInvalidConfig))
		}
	}

	return errors.Join(errs...)
}

// Policy converts the retry section into a retry.Policy. Unset fields keep
// the defaults of retry.DefaultPolicy.
func (r RetryConfig) Policy() (retry.Policy, error) {
	var opts []retry.PolicyOption

	if r.MaxAttempts != nil {
		opts = append(opts, retry.WithMaxAttempts(*r.MaxAttempts))
	}

	baseDelay, err := parseDuration("retry.base_delay", r.BaseDelay)
	if err != nil {
		return retry.Policy{}, err
	}
	if r.BaseDelay != "" {
		opts = append(opts, retry.WithBaseDelay(baseDelay))
	} else {
		baseDelay = mboxdb.DefaultRetryBaseDelay
	}

	switch r.Backoff {
	case "", "fixed":
	case "exponential":
		backoffOpts := []retry.BackoffOption{retry.WithInitialDelay(baseDelay)}

		maxDelay, err := parseDuration("retry.max_delay", r.MaxDelay)
		if err != nil {
			return retry.Policy{}, err
		}
		if r.MaxDelay != "" {
			backoffOpts = append(backoffOpts, retry.WithMaxDelay(maxDelay))
		}
		if r.Multiplier != 0 {
			if r.Multiplier < 1 {
				return retry.Policy{}, fmt.Errorf("retry.multiplier must be at least 1, got %v: %w", r.Multiplier, mboxdb.ErrInvalidConfig)
			}
			backoffOpts = append(backoffOpts, retry.WithMultiplier(r.Multiplier))
		}
		if r.Jitter != nil {
			if *r.Jitter < 0 || *r.Jitter > 1 {
				return retry.Policy{}, fmt.Errorf("retry.jitter must be within [0, 1], got %v: %w", *r.Jitter, mboxdb.ErrInvalidConfig)
			}
			backoffOpts = append(backoffOpts, retry.WithJitter(*r.Jitter))
		}
		opts = append(opts, retry.WithBackoff(retry.NewExponentialBackoff(backoffOpts...)))
	default:
		return retry.Policy{}, fmt.Errorf("retry.backoff must be fixed or exponential, got %q: %w", r.Backoff, mboxdb.ErrInvalidConfig)
	}

	return retry.NewPolicy(opts...)
}

// ProfileOptions returns the dialect overrides to derive over the built-in
// profile, or nil when the section is empty.
func (d DialectConfig) ProfileOptions() []dialect.ProfileOption {
	var opts []dialect.ProfileOption
	if len(d.IndexHints) > 0 {
		opts = append(opts, dialect.WithIndexHints(d.IndexHints))
	}
	for name, supported := range d.Capabilities {
		if c, err := dialect.ParseCapability(name); err == nil {
			opts = append(opts, dialect.WithCapability(c, supported))
		}
	}
	return opts
}

// ToConnectionConfig converts the connection section. The password is taken
// from $MBOXDB_PASSWORD.
func (c ConnectionConfig) ToConnectionConfig() (*mboxdb.ConnectionConfig, error) {
	backend := mboxdb.BackendMySQL
	if c.Backend != "" {
		b, err := mboxdb.ParseBackend(c.Backend)
		if err != nil {
			return nil, err
		}
		backend = b
	}

	auth, err := mboxdb.ParseAuthMethod(c.AuthMethod)
	if err != nil {
		return nil, err
	}

	timeout, err := parseDuration("connection.connect_timeout", c.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	cfg := &mboxdb.ConnectionConfig{
		Backend:          backend,
		Host:             c.Host,
		Port:             c.Port,
		Database:         c.Database,
		Username:         c.Username,
		Password:         os.Getenv(mboxdb.PasswordEnvVar),
		TLSMode:          c.SSLMode,
		Path:             c.Path,
		AuthMethod:       auth,
		AppName:          c.AppName,
		ConnectTimeout:   timeout,
		AdditionalParams: make(map[string]string),
		AWSRegion:        c.AWSRegion,
		AzureTenantID:    c.AzureTenantID,
		AzureClientID:    c.AzureClientID,
		GoogleInstance:   c.GoogleInstance,
	}
	if cfg.Host == "" && !backend.Embedded() && auth != mboxdb.AuthMethodGoogleIAM {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = backend.DefaultPort()
	}
	return cfg, nil
}

// MetricsAddress returns the listen address of the metrics endpoint.
func (m MetricsConfig) MetricsAddress() string {
	if m.Address == "" {
		return mboxdb.DefaultMetricsAddress
	}
	return m.Address
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %w", field, err, mboxdb.ErrInvalidConfig)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s cannot be negative: %w", field, mboxdb.ErrInvalidConfig)
	}
	return d, nil
}
