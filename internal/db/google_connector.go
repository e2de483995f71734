package db

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"sync"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/vvka-141/mboxdb/internal/retry"
	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

// GoogleCloudSQLConnector implements the Connector interface for Google Cloud SQL
// using IAM database authentication via the Cloud SQL Go Connector.
// PostgreSQL connections dial through pgx, MySQL connections through a
// go-sql-driver dial hook.
//
// Implements io.Closer: call Close() after the handle is closed to release the
// Cloud SQL dialer.
type GoogleCloudSQLConnector struct {
	config        *mboxdb.ConnectionConfig
	instance      string
	retryExecutor *retry.Executor
	logger        mboxdb.Logger

	mu     sync.Mutex
	dialer *cloudsqlconn.Dialer
}

// NewGoogleCloudSQLConnector creates a connector for Google Cloud SQL IAM authentication.
// instance is the instance connection name in format: project:region:instance
func NewGoogleCloudSQLConnector(config *mboxdb.ConnectionConfig, instance string, opts ...ConnectorOption) *GoogleCloudSQLConnector {
	o := resolveOptions(opts)
	return &GoogleCloudSQLConnector{
		config:        config,
		instance:      instance,
		retryExecutor: o.executor(),
		logger:        o.logger,
	}
}

// Connect opens a handle whose connections are dialed by the Cloud SQL connector.
// The dialer handles authentication and TLS.
func (c *GoogleCloudSQLConnector) Connect(ctx context.Context) (*sql.DB, error) {
	dialer, err := cloudsqlconn.NewDialer(ctx, cloudsqlconn.WithIAMAuthN())
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloud SQL dialer: %w", err)
	}

	handle, err := c.openHandle(dialer)
	if err != nil {
		dialer.Close()
		return nil, err
	}
	configurePool(handle, c.config.Backend)

	err = c.retryExecutor.Execute(ctx, func(ctx context.Context) error {
		if err := handle.PingContext(ctx); err != nil {
			return wrapConnectionError(err, c.config)
		}
		return nil
	})
	if err != nil {
		handle.Close()
		dialer.Close()
		return nil, connectFailed(err)
	}

	c.mu.Lock()
	c.dialer = dialer
	c.mu.Unlock()
	return handle, nil
}

func (c *GoogleCloudSQLConnector) openHandle(dialer *cloudsqlconn.Dialer) (*sql.DB, error) {
	dial := func(ctx context.Context, _, _ string) (net.Conn, error) {
		return dialer.Dial(ctx, c.instance)
	}

	switch c.config.Backend {
	case mboxdb.BackendPostgres:
		dsn := fmt.Sprintf("host=%s user=%s dbname=%s sslmode=disable", c.instance, c.config.Username, c.config.Database)
		connConfig, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connection config: %w", err)
		}
		connConfig.DialFunc = dial
		c.logger.Verbose("dialing Cloud SQL PostgreSQL instance %s", c.instance)
		return stdlib.OpenDB(*connConfig), nil

	case mboxdb.BackendMySQL, mboxdb.BackendMariaDB:
		network := "cloudsql-" + c.instance
		mysql.RegisterDialContext(network, func(ctx context.Context, addr string) (net.Conn, error) {
			return dial(ctx, "tcp", addr)
		})

		cfg := mysql.NewConfig()
		cfg.User = c.config.Username
		cfg.Net = network
		cfg.Addr = c.instance
		cfg.DBName = c.config.Database
		cfg.ParseTime = true
		cfg.AllowCleartextPasswords = true

		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to build MySQL connector: %w", err)
		}
		c.logger.Verbose("dialing Cloud SQL MySQL instance %s", c.instance)
		return sql.OpenDB(connector), nil

	default:
		return nil, fmt.Errorf("Google Cloud SQL IAM auth with %s: %w", c.config.Backend, mboxdb.ErrUnsupportedAuthMethod)
	}
}

// Close releases the Cloud SQL dialer resources.
// Must be called after the handle returned by Connect() is closed.
func (c *GoogleCloudSQLConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dialer != nil {
		c.dialer.Close()
		c.dialer = nil
	}
	return nil
}
