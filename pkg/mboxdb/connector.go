package mboxdb

import (
	"context"
	"database/sql"
)

// Connector is a unified interface for establishing database connections.
// Different implementations handle the supported backends and authentication
// methods (standard credentials, cloud IAM tokens, Cloud SQL dialer).
type Connector interface {
	// Connect opens and verifies a database handle.
	// The returned handle should be closed by the caller when done.
	Connect(ctx context.Context) (*sql.DB, error)
}
