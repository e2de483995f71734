package db

import (
	"context"
	"time"
)

// TokenProvider abstracts cloud token acquisition for database authentication.
// Implementations are swapped for fakes in tests.
type TokenProvider interface {
	// GetToken acquires a short-lived token that is sent as the database password.
	// Returns the token string and its expiry time.
	GetToken(ctx context.Context) (token string, expiresOn time.Time, err error)

	// String returns a human-readable description for logging.
	// Should NOT include secrets. Example: "AzureServicePrincipal(tenant=xxx, client=yyy)"
	String() string
}

// AzureDatabaseScope is the OAuth scope Entra ID issues tokens for when
// connecting to Azure Database for MySQL or PostgreSQL flexible servers.
const AzureDatabaseScope = "https://ossrdbms-aad.database.windows.net/.default"

// tokenExpiryWarning is the remaining lifetime below which a warning is logged.
const tokenExpiryWarning = 5 * time.Minute
