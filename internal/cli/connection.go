package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vvka-141/mboxdb/internal/config"
	"github.com/vvka-141/mboxdb/internal/db"
	"github.com/vvka-141/mboxdb/internal/retry"
	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

// connectionFlags holds the common connection-related flag values.
type connectionFlags struct {
	url           string
	backend       string
	host          string
	port          int
	username      string
	database      string
	sslMode       string
	path          string
	azureTenantID string
	azureClientID string

	maxAttempts int
	baseDelay   time.Duration
	timeout     time.Duration
}

func addConnectionFlags(cmd *cobra.Command, f *connectionFlags) {
	flags := cmd.Flags()
	flags.StringVar(&f.url, "url", "", "Connection string (mysql://, postgres://, sqlite:// or key=value form)")
	flags.StringVar(&f.backend, "backend", "", "Backend: mysql, mariadb, postgres, sqlite")
	flags.StringVar(&f.host, "host", "", "Database host")
	flags.IntVar(&f.port, "port", 0, "Database port (default: backend's standard port)")
	flags.StringVarP(&f.username, "user", "U", "", "Database user (password from $MBOXDB_PASSWORD)")
	flags.StringVarP(&f.database, "database", "d", "", "Database name")
	flags.StringVar(&f.sslMode, "sslmode", "", "TLS mode (disable, prefer, require, verify-full, skip-verify)")
	flags.StringVar(&f.path, "path", "", "Database file for sqlite")
	flags.StringVar(&f.azureTenantID, "azure-tenant-id", "", "Azure tenant ID; enables Entra ID authentication")
	flags.StringVar(&f.azureClientID, "azure-client-id", "", "Azure client ID; enables Entra ID authentication")
	flags.IntVar(&f.maxAttempts, "max-attempts", mboxdb.DefaultRetryMaxAttempts, "Attempts per operation on transient errors")
	flags.DurationVar(&f.baseDelay, "base-delay", mboxdb.DefaultRetryBaseDelay, "Delay between attempts")
	flags.DurationVar(&f.timeout, "timeout", 30*time.Second, "Overall time limit")
}

// session is an open store plus everything the commands report on.
type session struct {
	store   *db.Store
	config  *mboxdb.ConnectionConfig
	counter *retry.Counter
	project *config.Config
	logger  mboxdb.Logger
}

func (s *session) Close() error {
	return s.store.Close()
}

// retryPolicyFromFlags applies --max-attempts and --base-delay over the
// retry section of mboxdb.yaml, only when they were set explicitly.
func retryPolicyFromFlags(cmd *cobra.Command, f *connectionFlags, cfg *config.Config) (retry.Policy, error) {
	policy, err := retryPolicy(cfg)
	if err != nil {
		return retry.Policy{}, err
	}

	attemptsSet := cmd.Flags().Changed("max-attempts")
	delaySet := cmd.Flags().Changed("base-delay")
	if !attemptsSet && !delaySet {
		return policy, nil
	}

	opts := []retry.PolicyOption{retry.WithMaxAttempts(policy.MaxAttempts())}
	if attemptsSet {
		opts = append(opts, retry.WithMaxAttempts(f.maxAttempts))
	}
	if delaySet {
		// an explicit delay means a fixed delay, replacing configured backoff
		opts = append(opts, retry.WithBaseDelay(f.baseDelay))
	} else {
		opts = append(opts, retry.WithBaseDelay(policy.BaseDelay()), retry.WithBackoff(policy.Backoff()))
	}
	return retry.NewPolicy(opts...)
}

// openSession resolves the connection, connects through the connector for
// its auth method and wraps the handle in a Store whose executor classifies
// errors with the backend's dialect.
func openSession(ctx context.Context, cmd *cobra.Command, f *connectionFlags) (*session, error) {
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}
	project, err := loadProjectConfig(cmd)
	if err != nil {
		return nil, err
	}

	connConfig, err := db.ResolveConnectionParams(
		&db.ConnFlags{
			URL:      f.url,
			Backend:  f.backend,
			Host:     f.host,
			Port:     f.port,
			Username: f.username,
			Database: f.database,
			TLSMode:  f.sslMode,
			Path:     f.path,
		},
		&db.AzureFlags{TenantID: f.azureTenantID, ClientID: f.azureClientID},
		db.LoadFromEnvironment(),
		project,
	)
	if err != nil {
		return nil, err
	}
	logConnectionVerbose(logger, connConfig)

	registry, err := newRegistry(project, logger)
	if err != nil {
		return nil, err
	}
	profile, err := lookupDialect(registry, string(connConfig.Backend))
	if err != nil {
		return nil, err
	}

	policy, err := retryPolicyFromFlags(cmd, f, project)
	if err != nil {
		return nil, err
	}

	counter := retry.NewCounter()
	connector, err := db.NewConnector(connConfig,
		db.WithLogger(logger),
		db.WithRetryCounter(counter),
	)
	if err != nil {
		return nil, err
	}

	sqlDB, err := connector.Connect(ctx)
	if err != nil {
		return nil, err
	}

	executor := retry.NewExecutor(profile, policy,
		retry.WithCounter(counter),
		retry.WithLogger(logger),
	)

	return &session{
		store:   db.NewStore(sqlDB, profile, executor),
		config:  connConfig,
		counter: counter,
		project: project,
		logger:  logger,
	}, nil
}

// logConnectionVerbose logs connection details when verbose mode is enabled.
func logConnectionVerbose(logger mboxdb.Logger, c *mboxdb.ConnectionConfig) {
	logger.Verbose("Connection resolved:")
	logger.Verbose("  Backend: %s", c.Backend)
	if c.Backend.Embedded() {
		logger.Verbose("  Path: %s", c.Path)
	} else {
		logger.Verbose("  Host: %s", c.Host)
		logger.Verbose("  Port: %d", c.Port)
		logger.Verbose("  User: %s", c.Username)
		logger.Verbose("  Database: %s", c.Database)
		logger.Verbose("  TLS Mode: %s", c.TLSMode)
	}
	logger.Verbose("  Auth Method: %s", c.AuthMethod)
}

// describeTarget is a one-line, password-free name for the database.
func describeTarget(c *mboxdb.ConnectionConfig) string {
	if c.Backend.Embedded() {
		return fmt.Sprintf("%s %s", c.Backend, c.Path)
	}
	if c.Database == "" {
		return fmt.Sprintf("%s %s:%d", c.Backend, c.Host, c.Port)
	}
	return fmt.Sprintf("%s %s:%d/%s", c.Backend, c.Host, c.Port, c.Database)
}
