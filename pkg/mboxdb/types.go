package mboxdb

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend identifies a database engine with its own SQL dialect and error codes.
type Backend string

const (
	BackendMySQL    Backend = "mysql"
	BackendMariaDB  Backend = "mariadb"
	BackendDerby    Backend = "derby"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Backends lists every backend known to mboxdb in display order.
var Backends = []Backend{BackendMySQL, BackendMariaDB, BackendDerby, BackendSQLite, BackendPostgres}

// ParseBackend normalises a backend name, accepting common aliases.
func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql":
		return BackendMySQL, nil
	case "mariadb", "maria":
		return BackendMariaDB, nil
	case "derby":
		return BackendDerby, nil
	case "sqlite", "sqlite3":
		return BackendSQLite, nil
	case "postgres", "postgresql", "pg":
		return BackendPostgres, nil
	default:
		return "", fmt.Errorf("unknown backend %q: %w", name, ErrUnsupportedBackend)
	}
}

// DefaultPort returns the conventional TCP port of the backend, or 0 for embedded engines.
func (b Backend) DefaultPort() int {
	switch b {
	case BackendMySQL, BackendMariaDB:
		return 3306
	case BackendPostgres:
		return 5432
	case BackendDerby:
		return 1527
	default:
		return 0
	}
}

// Embedded reports whether the backend runs in-process against a file.
func (b Backend) Embedded() bool {
	return b == BackendSQLite
}

// ConnectionConfig represents parsed connection parameters.
type ConnectionConfig struct {
	Backend  Backend
	Host     string
	Port     int
	Database string
	Username string
	Password string

	// TLSMode is the backend's TLS setting: sslmode for PostgreSQL,
	// the tls parameter for MySQL/MariaDB. Ignored for SQLite.
	TLSMode string

	// Path is the database file for embedded backends.
	Path string

	// AuthMethod indicates the authentication mechanism to use
	AuthMethod AuthMethod

	// Additional connection parameters
	AppName          string
	ConnectTimeout   time.Duration
	AdditionalParams map[string]string

	// AWS RDS IAM authentication (used when AuthMethod is AuthMethodAWSIAM)
	AWSRegion string

	// Azure Entra ID authentication parameters (used when AuthMethod is AuthMethodAzureEntraID)
	// If all three are provided, Service Principal authentication is used.
	// If none are provided, DefaultAzureCredential chain is used (env vars, managed identity, CLI, etc.)
	AzureTenantID     string
	AzureClientID     string
	AzureClientSecret string

	// GoogleInstance is the Cloud SQL instance connection name (project:region:instance).
	GoogleInstance string
}

// Validate checks if the ConnectionConfig has all required fields and valid values.
// It returns a multi-error if multiple validation failures occur.
func (c *ConnectionConfig) Validate() error {
	var errs []error

	if _, err := ParseBackend(string(c.Backend)); err != nil {
		errs = append(errs, fmt.Errorf("backend %q is not recognised: %w", c.Backend, ErrInvalidConfig))
	}

	if c.Backend.Embedded() {
		if c.Path == "" {
			errs = append(errs, fmt.Errorf("Path is required for %s: %w", c.Backend, ErrInvalidConfig))
		}
	} else {
		if c.Host == "" && c.AuthMethod != AuthMethodGoogleIAM {
			errs = append(errs, fmt.Errorf("Host is required: %w", ErrInvalidConfig))
		}
		if c.Port < 0 || c.Port > 65535 {
			errs = append(errs, fmt.Errorf("port %d out of range: %w", c.Port, ErrInvalidConfig))
		}
	}

	if !c.AuthMethod.IsValid() {
		errs = append(errs, fmt.Errorf("auth method %v: %w", c.AuthMethod, ErrInvalidConfig))
	}

	if c.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("connect timeout cannot be negative: %w", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// AuthMethod represents the type of authentication to use.
type AuthMethod int

const (
	AuthMethodStandard     AuthMethod = iota // Username/Password
	AuthMethodAWSIAM                         // AWS IAM Database Authentication
	AuthMethodGoogleIAM                      // Google Cloud SQL IAM
	AuthMethodAzureEntraID                   // Azure Active Directory (Entra ID)
)

// String returns a human-readable string representation of the AuthMethod.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodStandard:
		return "Standard"
	case AuthMethodAWSIAM:
		return "AWS IAM"
	case AuthMethodGoogleIAM:
		return "Google IAM"
	case AuthMethodAzureEntraID:
		return "Azure Entra ID"
	default:
		return fmt.Sprintf("Unknown(%d)", a)
	}
}

// IsValid returns true if the AuthMethod is a valid, defined value.
func (a AuthMethod) IsValid() bool {
	return a >= AuthMethodStandard && a <= AuthMethodAzureEntraID
}

// ParseAuthMethod maps the configuration spelling of an auth method.
// An empty string selects AuthMethodStandard.
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "password":
		return AuthMethodStandard, nil
	case "aws", "aws-iam", "awsiam":
		return AuthMethodAWSIAM, nil
	case "google", "google-iam", "gcp":
		return AuthMethodGoogleIAM, nil
	case "azure", "azure-entra", "entra":
		return AuthMethodAzureEntraID, nil
	default:
		return AuthMethodStandard, fmt.Errorf("auth method %q: %w", s, ErrUnsupportedAuthMethod)
	}
}
