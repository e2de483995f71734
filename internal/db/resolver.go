package db

import (
	"fmt"
	"os"
	"strconv"

	"github.com/vvka-141/mboxdb/internal/config"
	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

// ConnFlags represents connection parameters from CLI flags.
//
// Note: Password is NOT included as a CLI flag for security reasons.
// Use $MBOXDB_PASSWORD or a connection string with an embedded password.
type ConnFlags struct {
	URL      string
	Backend  string
	Host     string
	Port     int
	Username string
	Database string
	TLSMode  string
	Path     string
}

// IsEmpty returns true if no granular connection flags were provided.
// URL and Database are excluded: Database may override the database of a URL.
func (g *ConnFlags) IsEmpty() bool {
	return g.Backend == "" && g.Host == "" && g.Port == 0 && g.Username == "" && g.TLSMode == "" && g.Path == ""
}

// AzureFlags represents Azure Entra ID CLI flags.
// These override the corresponding AZURE_* environment variables.
// Note: Client secret is NOT included as a CLI flag for security reasons.
// Use AZURE_CLIENT_SECRET environment variable instead.
type AzureFlags struct {
	TenantID string // Overrides AZURE_TENANT_ID
	ClientID string // Overrides AZURE_CLIENT_ID
}

// IsEmpty returns true if no Azure flags were provided.
func (a *AzureFlags) IsEmpty() bool {
	return a == nil || (a.TenantID == "" && a.ClientID == "")
}

// EnvVars holds the environment variables that configure a connection.
type EnvVars struct {
	MBOXDB_URL      string // Full connection string
	MBOXDB_BACKEND  string
	MBOXDB_HOST     string
	MBOXDB_PORT     string
	MBOXDB_USER     string
	MBOXDB_PASSWORD string
	MBOXDB_DATABASE string
	MBOXDB_SSLMODE  string
	MBOXDB_PATH     string // SQLite database file

	AWS_REGION string

	// Azure Entra ID environment variables (Azure SDK standard names)
	AZURE_TENANT_ID     string // Azure AD tenant/directory ID
	AZURE_CLIENT_ID     string // Azure AD application/client ID
	AZURE_CLIENT_SECRET string // Azure AD client secret (for Service Principal auth)
}

// LoadFromEnvironment reads MBOXDB_* and cloud provider environment variables.
func LoadFromEnvironment() *EnvVars {
	return &EnvVars{
		MBOXDB_URL:          os.Getenv("MBOXDB_URL"),
		MBOXDB_BACKEND:      os.Getenv("MBOXDB_BACKEND"),
		MBOXDB_HOST:         os.Getenv("MBOXDB_HOST"),
		MBOXDB_PORT:         os.Getenv("MBOXDB_PORT"),
		MBOXDB_USER:         os.Getenv("MBOXDB_USER"),
		MBOXDB_PASSWORD:     os.Getenv(mboxdb.PasswordEnvVar),
		MBOXDB_DATABASE:     os.Getenv("MBOXDB_DATABASE"),
		MBOXDB_SSLMODE:      os.Getenv("MBOXDB_SSLMODE"),
		MBOXDB_PATH:         os.Getenv("MBOXDB_PATH"),
		AWS_REGION:          os.Getenv("AWS_REGION"),
		AZURE_TENANT_ID:     os.Getenv("AZURE_TENANT_ID"),
		AZURE_CLIENT_ID:     os.Getenv("AZURE_CLIENT_ID"),
		AZURE_CLIENT_SECRET: os.Getenv("AZURE_CLIENT_SECRET"),
	}
}

// ResolveConnectionParams resolves connection parameters with this precedence:
//
// 1. Connection string flag (--url) - if provided, parse and use directly
// 2. $MBOXDB_URL - if no granular flags were given
// 3. Per field: granular flag > MBOXDB_* variable > mboxdb.yaml > default
//
// The password never comes from a flag: it is taken from the connection
// string or $MBOXDB_PASSWORD. Azure flags or AZURE_* variables switch the
// auth method to Entra ID.
//
// Returns an error if BOTH --url AND granular flags are provided.
func ResolveConnectionParams(
	flags *ConnFlags,
	azureFlags *AzureFlags,
	envVars *EnvVars,
	projectConfig *config.Config,
) (*mboxdb.ConnectionConfig, error) {
	if flags == nil {
		flags = &ConnFlags{}
	}
	if azureFlags == nil {
		azureFlags = &AzureFlags{}
	}
	if envVars == nil {
		envVars = &EnvVars{}
	}

	if flags.URL != "" && !flags.IsEmpty() {
		return nil, fmt.Errorf(
			"cannot specify both --url and granular flags (--backend, --host, --port, --user)\n"+
				"Choose one approach:\n"+
				"  1. Connection string: --url \"mysql://zimbra@localhost:3306/mboxgroup1\"\n"+
				"  2. Granular flags: --backend mysql --host localhost --port 3306 --user zimbra\n"+
				"  3. Environment variables: export MBOXDB_BACKEND=mysql MBOXDB_HOST=localhost: %w",
			mboxdb.ErrInvalidConfig,
		)
	}

	var cfg *mboxdb.ConnectionConfig
	var err error

	switch {
	case flags.URL != "":
		cfg, err = resolveFromConnectionString(flags.URL, flags, envVars)
	case flags.IsEmpty() && envVars.MBOXDB_URL != "":
		cfg, err = resolveFromConnectionString(envVars.MBOXDB_URL, flags, envVars)
	default:
		cfg, err = resolveFromGranularParams(flags, envVars, projectConfig)
	}
	if err != nil {
		return nil, err
	}

	applyAzureAuth(cfg, azureFlags, envVars)

	if cfg.AuthMethod == mboxdb.AuthMethodAWSIAM && cfg.AWSRegion == "" {
		cfg.AWSRegion = envVars.AWS_REGION
	}

	return cfg, nil
}

// applyAzureAuth sets Azure Entra ID authentication on the config if credentials are available.
// CLI flags take precedence over environment variables.
func applyAzureAuth(cfg *mboxdb.ConnectionConfig, flags *AzureFlags, env *EnvVars) {
	tenantID := first(flags.TenantID, env.AZURE_TENANT_ID, cfg.AzureTenantID)
	clientID := first(flags.ClientID, env.AZURE_CLIENT_ID, cfg.AzureClientID)

	if tenantID != "" || clientID != "" {
		cfg.AuthMethod = mboxdb.AuthMethodAzureEntraID
		cfg.AzureTenantID = tenantID
		cfg.AzureClientID = clientID
		cfg.AzureClientSecret = env.AZURE_CLIENT_SECRET
	}
}

// resolveFromConnectionString parses a connection string. The password from
// the environment is used when the string carries none, and --database
// overrides the database it names.
func resolveFromConnectionString(connStr string, flags *ConnFlags, envVars *EnvVars) (*mboxdb.ConnectionConfig, error) {
	cfg, err := ParseConnectionString(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}

	if cfg.Password == "" {
		cfg.Password = envVars.MBOXDB_PASSWORD
	}
	if flags.Database != "" {
		cfg.Database = flags.Database
	}
	return cfg, nil
}

// resolveFromGranularParams layers flags, environment and the project file.
func resolveFromGranularParams(flags *ConnFlags, envVars *EnvVars, projectConfig *config.Config) (*mboxdb.ConnectionConfig, error) {
	var pc config.ConnectionConfig
	if projectConfig != nil {
		pc = projectConfig.Connection
	}

	// auth method, timeouts and cloud settings only come from the project file
	cfg, err := pc.ToConnectionConfig()
	if err != nil {
		return nil, err
	}

	backendName := first(flags.Backend, envVars.MBOXDB_BACKEND, pc.Backend, string(mboxdb.BackendMySQL))
	backend, err := mboxdb.ParseBackend(backendName)
	if err != nil {
		return nil, err
	}
	cfg.Backend = backend

	cfg.Host = first(flags.Host, envVars.MBOXDB_HOST, pc.Host)
	if cfg.Host == "" && !backend.Embedded() && cfg.AuthMethod != mboxdb.AuthMethodGoogleIAM {
		cfg.Host = "localhost"
	}

	switch {
	case flags.Port != 0:
		cfg.Port = flags.Port
	case envVars.MBOXDB_PORT != "":
		port, err := strconv.Atoi(envVars.MBOXDB_PORT)
		if err != nil {
			return nil, fmt.Errorf("invalid $MBOXDB_PORT value '%s': must be an integer: %w", envVars.MBOXDB_PORT, mboxdb.ErrInvalidConfig)
		}
		cfg.Port = port
	case pc.Port != 0:
		cfg.Port = pc.Port
	default:
		cfg.Port = backend.DefaultPort()
	}

	cfg.Username = first(flags.Username, envVars.MBOXDB_USER, pc.Username)
	cfg.Password = envVars.MBOXDB_PASSWORD
	cfg.Database = first(flags.Database, envVars.MBOXDB_DATABASE, pc.Database)
	cfg.Path = first(flags.Path, envVars.MBOXDB_PATH, pc.Path)

	cfg.TLSMode = first(flags.TLSMode, envVars.MBOXDB_SSLMODE, pc.SSLMode)
	if cfg.TLSMode == "" && backend == mboxdb.BackendPostgres {
		cfg.TLSMode = "prefer"
	}

	return cfg, nil
}

// first returns the first non-empty value.
func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
