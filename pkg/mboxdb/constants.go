package mboxdb

import "time"

// Exit codes for semantic error classification.
// These follow Unix/GNU conventions:
//   - 0: Success
//   - 1: General error
//   - 2: CLI usage error (misuse of command line)
//   - 3+: Application-specific errors
const (
	ExitSuccess         = 0  // Command completed successfully
	ExitGeneralError    = 1  // Unknown or unclassified error
	ExitUsageError      = 2  // CLI usage error (missing args, invalid flags)
	ExitPanic           = 3  // Internal panic (unexpected crash)
	ExitConfigError     = 10 // Invalid configuration or unknown backend
	ExitConnectionError = 11 // Failed to connect to database
	ExitRetryExhausted  = 12 // Operation kept failing with transient errors
)

const (
	// DefaultRetryMaxAttempts is the default total number of attempts per operation.
	DefaultRetryMaxAttempts = 5

	// DefaultRetryBaseDelay is the fixed sleep between two attempts.
	DefaultRetryBaseDelay = 250 * time.Millisecond

	// DefaultRetryMaxDelay caps exponential backoff when it is selected.
	DefaultRetryMaxDelay = 30 * time.Second

	// DefaultConnectMaxAttempts is the number of attempts used while opening a connection.
	DefaultConnectMaxAttempts = 4

	// DefaultConnectInitialDelay is the first backoff delay used while opening a connection.
	DefaultConnectInitialDelay = 100 * time.Millisecond

	// DefaultSQLiteBusyTimeout is passed to SQLite as busy_timeout so the engine
	// waits on locks before surfacing SQLITE_BUSY.
	DefaultSQLiteBusyTimeout = 5 * time.Second

	// DefaultMetricsAddress is where the probe command serves /metrics.
	DefaultMetricsAddress = ":9102"

	// ConfigFileName is the project configuration file looked up by the CLI.
	ConfigFileName = "mboxdb.yaml"

	// PasswordEnvVar supplies the database password when it is not part of the DSN.
	PasswordEnvVar = "MBOXDB_PASSWORD"
)
