package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/coder/quartz"

	"github.com/vvka-141/mboxdb/internal/retry"
	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

// TokenBasedConnector implements the Connector interface for cloud providers
// that authenticate via short-lived tokens (AWS IAM, Azure Entra ID).
// A fresh token is acquired on every connection attempt and used as the password.
type TokenBasedConnector struct {
	config        *mboxdb.ConnectionConfig
	tokenProvider TokenProvider
	retryExecutor *retry.Executor
	providerName  string
	logger        mboxdb.Logger
	clock         quartz.Clock
	open          func(driverName, dsn string) (*sql.DB, error)
}

// NewTokenBasedConnector creates a connector that uses a TokenProvider for authentication.
// providerName is used in error/warning messages (e.g., "AWS IAM", "Azure").
func NewTokenBasedConnector(config *mboxdb.ConnectionConfig, tokenProvider TokenProvider, providerName string, opts ...ConnectorOption) *TokenBasedConnector {
	o := resolveOptions(opts)
	return &TokenBasedConnector{
		config:        config,
		tokenProvider: tokenProvider,
		retryExecutor: o.executor(),
		providerName:  providerName,
		logger:        o.logger,
		clock:         o.clock,
		open:          o.open,
	}
}

func (c *TokenBasedConnector) Connect(ctx context.Context) (*sql.DB, error) {
	c.logger.Verbose("authenticating with %s", c.tokenProvider)

	return openWithRetry(ctx, c.retryExecutor, c.logger, c.open, func(ctx context.Context) (*mboxdb.ConnectionConfig, error) {
		token, expiresOn, err := c.tokenProvider.GetToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire %s token: %w", c.providerName, err)
		}

		if remaining := expiresOn.Sub(c.clock.Now()); remaining < tokenExpiryWarning {
			c.logger.Info("Warning: %s token expires in %v", c.providerName, remaining.Round(time.Second))
		}

		configWithToken := *c.config
		configWithToken.Password = token
		return &configWithToken, nil
	})
}
