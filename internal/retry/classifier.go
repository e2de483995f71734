package retry

import (
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

// MySQL server error numbers that indicate the server could not take the
// connection right now.
// See: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	mysqlTooManyConnections   = 1040
	mysqlHandshakeError       = 1043
	mysqlServerShutdown       = 1053
	mysqlUserTooManyConns     = 1203
	mysqlServerIsInitializing = 3018
)

// ConnectionClassifier recognises failures to reach or hold a database
// connection: network errors, broken driver connections and server-side
// refusals such as PostgreSQL classes 08/53/57 or MySQL 1040.
//
// It is used while opening connections. Query-time contention is classified
// by the dialect profile of the backend instead.
type ConnectionClassifier struct{}

// NewConnectionClassifier creates a new connection error classifier.
func NewConnectionClassifier() *ConnectionClassifier {
	return &ConnectionClassifier{}
}

// IsTransient determines if an error is temporary and retryable.
func (c *ConnectionClassifier) IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return c.isTransientPgError(pgErr)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return c.isTransientMySQLError(myErr)
	}

	if c.isNetworkError(err) {
		return true
	}

	return c.isConnectionError(err)
}

// isTransientPgError checks PostgreSQL error classes for connection-level conditions.
func (c *ConnectionClassifier) isTransientPgError(pgErr *pgconn.PgError) bool {
	code := pgErr.Code

	// Class 08 - Connection Exception
	// Class 53 - Insufficient Resources
	// Class 57 - Operator Intervention (admin shutdown, crash shutdown, cannot connect now)
	for _, class := range []string{"08", "53", "57"} {
		if strings.HasPrefix(code, class) {
			return true
		}
	}

	return false
}

func (c *ConnectionClassifier) isTransientMySQLError(myErr *mysql.MySQLError) bool {
	switch myErr.Number {
	case mysqlTooManyConnections,
		mysqlHandshakeError,
		mysqlServerShutdown,
		mysqlUserTooManyConns,
		mysqlServerIsInitializing:
		return true
	}
	return false
}

// isNetworkError checks for network-level errors.
func (c *ConnectionClassifier) isNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() || dnsErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return true
		}

		if opErr.Err != nil {
			switch {
			case errors.Is(opErr.Err, syscall.ECONNREFUSED), // server not ready
				errors.Is(opErr.Err, syscall.ECONNRESET),
				errors.Is(opErr.Err, syscall.ENETUNREACH),
				errors.Is(opErr.Err, syscall.EHOSTUNREACH):
				return true
			}
		}
	}

	return false
}

// isConnectionError checks driver messages for connection failures when no
// structured error is available.
func (c *ConnectionClassifier) isConnectionError(err error) bool {
	errMsg := strings.ToLower(err.Error())

	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"connection failure",
		"network is unreachable",
		"i/o timeout",
		"broken pipe",
		"too many connections",
		"server closed the connection",
		"unexpected eof",
		"invalid connection",
		"bad connection",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

// AnyOf returns a classifier that treats an error as transient when any of
// the given classifiers does.
func AnyOf(classifiers ...mboxdb.ErrorClassifier) mboxdb.ErrorClassifier {
	return mboxdb.ClassifierFunc(func(err error) bool {
		for _, c := range classifiers {
			if c != nil && c.IsTransient(err) {
				return true
			}
		}
		return false
	})
}

// Never is a classifier that treats every error as fatal.
var Never mboxdb.ErrorClassifier = mboxdb.ClassifierFunc(func(error) bool { return false })
