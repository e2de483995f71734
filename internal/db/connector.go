package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coder/quartz"

	"github.com/vvka-141/mboxdb/internal/logging"
	"github.com/vvka-141/mboxdb/internal/retry"
	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

// Connection pool configuration constants
const (
	// DefaultMaxOpenConns bounds concurrent connections per handle.
	DefaultMaxOpenConns = 10

	// DefaultMaxIdleConns keeps a couple of warm connections between operations.
	DefaultMaxIdleConns = 2

	// DefaultConnMaxIdleTime closes connections idle for longer than this.
	DefaultConnMaxIdleTime = 30 * time.Minute
)

// configurePool applies pool limits. SQLite gets a single connection: the
// engine serialises writers anyway and ":memory:" databases are per connection.
func configurePool(db *sql.DB, backend mboxdb.Backend) {
	if backend.Embedded() {
		db.SetMaxOpenConns(1)
		return
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxIdleTime(DefaultConnMaxIdleTime)
}

// ConnectorOption configures connectors built by NewConnector.
type ConnectorOption func(*connectorOptions)

type connectorOptions struct {
	logger  mboxdb.Logger
	policy  retry.Policy
	counter *retry.Counter
	clock   quartz.Clock
	open    func(driverName, dsn string) (*sql.DB, error)
}

// WithLogger sets the logger for connection diagnostics.
func WithLogger(l mboxdb.Logger) ConnectorOption {
	return func(o *connectorOptions) {
		o.logger = l
	}
}

// WithRetryPolicy overrides the connection retry policy.
func WithRetryPolicy(p retry.Policy) ConnectorOption {
	return func(o *connectorOptions) {
		o.policy = p
	}
}

// WithRetryCounter records connection retries in c.
func WithRetryCounter(c *retry.Counter) ConnectorOption {
	return func(o *connectorOptions) {
		o.counter = c
	}
}

// WithClock replaces the clock used for backoff sleeps and token expiry checks.
func WithClock(c quartz.Clock) ConnectorOption {
	return func(o *connectorOptions) {
		o.clock = c
	}
}

// withOpener replaces sql.Open; tests use it to fail or count opens.
func withOpener(open func(driverName, dsn string) (*sql.DB, error)) ConnectorOption {
	return func(o *connectorOptions) {
		o.open = open
	}
}

// DefaultConnectPolicy retries connection failures DefaultConnectMaxAttempts
// times with exponential backoff starting at DefaultConnectInitialDelay.
func DefaultConnectPolicy() retry.Policy {
	return retry.MustPolicy(
		retry.WithMaxAttempts(mboxdb.DefaultConnectMaxAttempts),
		retry.WithBaseDelay(mboxdb.DefaultConnectInitialDelay),
		retry.WithBackoff(retry.NewExponentialBackoff(
			retry.WithInitialDelay(mboxdb.DefaultConnectInitialDelay),
			retry.WithMaxDelay(mboxdb.DefaultRetryMaxDelay),
		)),
	)
}

func resolveOptions(opts []ConnectorOption) *connectorOptions {
	o := &connectorOptions{
		logger: logging.Discard,
		policy: DefaultConnectPolicy(),
		clock:  quartz.NewReal(),
		open:   sql.Open,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *connectorOptions) executor() *retry.Executor {
	execOpts := []retry.ExecutorOption{
		retry.WithLogger(o.logger),
		retry.WithClock(o.clock),
	}
	if o.counter != nil {
		execOpts = append(execOpts, retry.WithCounter(o.counter))
	}
	return retry.NewExecutor(retry.NewConnectionClassifier(), o.policy, execOpts...)
}

// StandardConnector implements the Connector interface for username/password
// (or file based) connections with automatic retry on transient failures.
type StandardConnector struct {
	config        *mboxdb.ConnectionConfig
	retryExecutor *retry.Executor
	logger        mboxdb.Logger
	open          func(driverName, dsn string) (*sql.DB, error)
}

// NewStandardConnector creates a new StandardConnector with the given configuration.
func NewStandardConnector(config *mboxdb.ConnectionConfig, opts ...ConnectorOption) *StandardConnector {
	o := resolveOptions(opts)
	return &StandardConnector{
		config:        config,
		retryExecutor: o.executor(),
		logger:        o.logger,
		open:          o.open,
	}
}

// Connect opens and pings a database handle, retrying transient connection failures.
func (c *StandardConnector) Connect(ctx context.Context) (*sql.DB, error) {
	return openWithRetry(ctx, c.retryExecutor, c.logger, c.open, func(context.Context) (*mboxdb.ConnectionConfig, error) {
		return c.config, nil
	})
}

// openWithRetry runs open+ping inside the executor. resolve is called once per
// attempt so token based connectors can refresh credentials between attempts.
func openWithRetry(
	ctx context.Context,
	executor *retry.Executor,
	logger mboxdb.Logger,
	open func(driverName, dsn string) (*sql.DB, error),
	resolve func(ctx context.Context) (*mboxdb.ConnectionConfig, error),
) (*sql.DB, error) {
	var db *sql.DB

	err := executor.Execute(ctx, func(ctx context.Context) error {
		config, err := resolve(ctx)
		if err != nil {
			return err
		}

		driverName, dsn, err := BuildDSN(config)
		if err != nil {
			return err
		}
		logger.Verbose("opening %s connection: %s", config.Backend, RedactDSN(config))

		handle, err := open(driverName, dsn)
		if err != nil {
			return fmt.Errorf("failed to open %s handle: %w", config.Backend, err)
		}
		configurePool(handle, config.Backend)

		if err := handle.PingContext(ctx); err != nil {
			handle.Close()
			return wrapConnectionError(err, config)
		}

		db = handle
		return nil
	})
	if err != nil {
		return nil, connectFailed(err)
	}
	return db, nil
}

// connectFailed tags errors with ErrConnectionFailed unless they already carry
// a configuration sentinel.
func connectFailed(err error) error {
	for _, sentinel := range []error{mboxdb.ErrInvalidConfig, mboxdb.ErrUnsupportedBackend, mboxdb.ErrUnsupportedAuthMethod} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", mboxdb.ErrConnectionFailed, err)
}

// NewConnector is a factory function that creates the appropriate Connector
// based on the ConnectionConfig's AuthMethod.
func NewConnector(config *mboxdb.ConnectionConfig, opts ...ConnectorOption) (mboxdb.Connector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.AuthMethod {
	case mboxdb.AuthMethodStandard:
		return NewStandardConnector(config, opts...), nil
	case mboxdb.AuthMethodAWSIAM:
		return newAWSConnector(config, opts...)
	case mboxdb.AuthMethodGoogleIAM:
		return newGoogleConnector(config, opts...)
	case mboxdb.AuthMethodAzureEntraID:
		return newAzureConnector(config, opts...)
	default:
		return nil, fmt.Errorf("unsupported auth method %v: %w", config.AuthMethod, mboxdb.ErrUnsupportedAuthMethod)
	}
}

// wrapConnectionError wraps raw driver connection errors with actionable guidance.
// The original error stays in the chain so classifiers still see driver types.
func wrapConnectionError(err error, config *mboxdb.ConnectionConfig) error {
	errStr := strings.ToLower(err.Error())
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)

	if config.Backend.Embedded() {
		if strings.Contains(errStr, "unable to open") || strings.Contains(errStr, "cantopen") {
			return fmt.Errorf(`cannot open SQLite database %q

Possible causes:
  - Parent directory does not exist
  - File permissions deny access

Original error: %w`, config.Path, err)
		}
		return fmt.Errorf("failed to open database: %w", err)
	}

	switch {
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "actively refused"):
		return fmt.Errorf(`connection refused to %s

Possible causes:
  - %s is not running (check: %s)
  - Wrong host or port
  - Firewall blocking the connection

Original error: %w`, addr, serverName(config.Backend), readinessCommand(config), err)

	case strings.Contains(errStr, "no such host") || strings.Contains(errStr, "no host"):
		return fmt.Errorf(`cannot resolve host "%s"

Possible causes:
  - Hostname is misspelled
  - DNS is not configured or reachable
  - Network connection issue

Original error: %w`, config.Host, err)

	case strings.Contains(errStr, "password authentication failed") || strings.Contains(errStr, "access denied"):
		return fmt.Errorf(`authentication failed for user "%s"

Possible causes:
  - Wrong password (check $%s)
  - Wrong username
  - User does not have access to the database

Original error: %w`, config.Username, mboxdb.PasswordEnvVar, err)

	case strings.Contains(errStr, "does not exist") || strings.Contains(errStr, "unknown database"):
		return fmt.Errorf(`database "%s" does not exist

The mailbox group database must be created before mboxdb can use it.

Original error: %w`, config.Database, err)

	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return fmt.Errorf(`connection timed out to %s

Possible causes:
  - Server is overloaded or unresponsive
  - Network latency or packet loss
  - Firewall silently dropping packets

Original error: %w`, addr, err)

	case strings.Contains(errStr, "ssl") || strings.Contains(errStr, "tls") || strings.Contains(errStr, "x509"):
		return fmt.Errorf(`SSL/TLS connection error

Possible causes:
  - Server requires TLS but the TLS mode is wrong
  - Certificate verification failed (try skip-verify or sslmode=require)

Original error: %w`, err)

	case strings.Contains(errStr, "too many connections"):
		return fmt.Errorf(`too many connections to database "%s"

Possible causes:
  - Connection limit reached on the server
  - Stale connections from other mailbox servers

Original error: %w`, config.Database, err)

	default:
		return fmt.Errorf("failed to connect to database: %w", err)
	}
}

func serverName(b mboxdb.Backend) string {
	switch b {
	case mboxdb.BackendPostgres:
		return "PostgreSQL"
	case mboxdb.BackendMariaDB:
		return "MariaDB"
	default:
		return "MySQL"
	}
}

func readinessCommand(config *mboxdb.ConnectionConfig) string {
	if config.Backend == mboxdb.BackendPostgres {
		return fmt.Sprintf("pg_isready -h %s -p %d", config.Host, config.Port)
	}
	return fmt.Sprintf("mysqladmin ping -h %s -P %d", config.Host, config.Port)
}

// newAWSConnector creates a token-based connector with the AWS IAM token provider.
func newAWSConnector(config *mboxdb.ConnectionConfig, opts ...ConnectorOption) (mboxdb.Connector, error) {
	endpoint := fmt.Sprintf("%s:%d", config.Host, config.Port)

	tokenProvider, err := NewAWSIAMTokenProvider(endpoint, config.AWSRegion, config.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS IAM token provider: %w", err)
	}

	return NewTokenBasedConnector(config, tokenProvider, "AWS IAM", opts...), nil
}

// newGoogleConnector creates a GoogleCloudSQLConnector for Google Cloud SQL IAM authentication.
func newGoogleConnector(config *mboxdb.ConnectionConfig, opts ...ConnectorOption) (mboxdb.Connector, error) {
	if config.GoogleInstance == "" {
		return nil, fmt.Errorf("Google Cloud SQL IAM auth requires google_instance (project:region:instance): %w", mboxdb.ErrInvalidConfig)
	}
	if config.Username == "" {
		return nil, fmt.Errorf("Google Cloud SQL IAM auth requires a username: %w", mboxdb.ErrInvalidConfig)
	}
	switch config.Backend {
	case mboxdb.BackendPostgres, mboxdb.BackendMySQL, mboxdb.BackendMariaDB:
	default:
		return nil, fmt.Errorf("Google Cloud SQL IAM auth with %s: %w", config.Backend, mboxdb.ErrUnsupportedAuthMethod)
	}

	return NewGoogleCloudSQLConnector(config, config.GoogleInstance, opts...), nil
}

// newAzureConnector creates a token-based connector with the Azure Entra ID token provider.
// If explicit credentials (tenant, client, secret) are provided, uses Service Principal auth.
// Otherwise, falls back to DefaultAzureCredential chain.
func newAzureConnector(config *mboxdb.ConnectionConfig, opts ...ConnectorOption) (mboxdb.Connector, error) {
	var tokenProvider TokenProvider
	var err error

	if config.AzureTenantID != "" && config.AzureClientID != "" && config.AzureClientSecret != "" {
		tokenProvider, err = NewAzureServicePrincipalProvider(
			config.AzureTenantID,
			config.AzureClientID,
			config.AzureClientSecret,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure Service Principal provider: %w", err)
		}
	} else {
		tokenProvider, err = NewAzureDefaultCredentialProvider()
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure Default Credential provider: %w", err)
		}
	}

	return NewTokenBasedConnector(config, tokenProvider, "Azure", opts...), nil
}
