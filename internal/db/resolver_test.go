package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/mboxdb/internal/config"
	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

func TestConnFlags_IsEmpty(t *testing.T) {
	tests := []struct {
		name  string
		flags ConnFlags
		want  bool
	}{
		{"empty flags", ConnFlags{}, true},
		{"only url", ConnFlags{URL: "mysql://h/db"}, true},
		{"only database", ConnFlags{Database: "mboxgroup1"}, true},
		{"only host", ConnFlags{Host: "db"}, false},
		{"only port", ConnFlags{Port: 3306}, false},
		{"only backend", ConnFlags{Backend: "sqlite"}, false},
		{"only path", ConnFlags{Path: "mbox.db"}, false},
		{"only tls", ConnFlags{TLSMode: "require"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.flags.IsEmpty())
		})
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MBOXDB_URL", "mysql://h/db")
	t.Setenv("MBOXDB_HOST", "db")
	t.Setenv("MBOXDB_PORT", "3307")
	t.Setenv("MBOXDB_PASSWORD", "pw")
	t.Setenv("MBOXDB_PATH", "/tmp/mbox.db")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AZURE_CLIENT_SECRET", "s3cret")

	env := LoadFromEnvironment()
	assert.Equal(t, "mysql://h/db", env.MBOXDB_URL)
	assert.Equal(t, "db", env.MBOXDB_HOST)
	assert.Equal(t, "3307", env.MBOXDB_PORT)
	assert.Equal(t, "pw", env.MBOXDB_PASSWORD)
	assert.Equal(t, "/tmp/mbox.db", env.MBOXDB_PATH)
	assert.Equal(t, "eu-west-1", env.AWS_REGION)
	assert.Equal(t, "s3cret", env.AZURE_CLIENT_SECRET)
}

func TestResolveConnectionParams_Defaults(t *testing.T) {
	t.Setenv(mboxdb.PasswordEnvVar, "")

	cfg, err := ResolveConnectionParams(nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, mboxdb.BackendMySQL, cfg.Backend)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 3306, cfg.Port)
	assert.Empty(t, cfg.TLSMode)
	assert.Equal(t, mboxdb.AuthMethodStandard, cfg.AuthMethod)
}

func TestResolveConnectionParams_Precedence(t *testing.T) {
	t.Setenv(mboxdb.PasswordEnvVar, "")

	project := &config.Config{Connection: config.ConnectionConfig{
		Backend:  "postgres",
		Host:     "yaml-host",
		Port:     6432,
		Username: "yaml-user",
		Database: "yaml-db",
		SSLMode:  "verify-full",
	}}

	t.Run("yaml only", func(t *testing.T) {
		cfg, err := ResolveConnectionParams(nil, nil, &EnvVars{}, project)
		require.NoError(t, err)
		assert.Equal(t, mboxdb.BackendPostgres, cfg.Backend)
		assert.Equal(t, "yaml-host", cfg.Host)
		assert.Equal(t, 6432, cfg.Port)
		assert.Equal(t, "yaml-user", cfg.Username)
		assert.Equal(t, "yaml-db", cfg.Database)
		assert.Equal(t, "verify-full", cfg.TLSMode)
	})

	t.Run("env beats yaml", func(t *testing.T) {
		env := &EnvVars{MBOXDB_HOST: "env-host", MBOXDB_PORT: "7432", MBOXDB_USER: "env-user", MBOXDB_PASSWORD: "pw"}
		cfg, err := ResolveConnectionParams(nil, nil, env, project)
		require.NoError(t, err)
		assert.Equal(t, "env-host", cfg.Host)
		assert.Equal(t, 7432, cfg.Port)
		assert.Equal(t, "env-user", cfg.Username)
		assert.Equal(t, "pw", cfg.Password)
		assert.Equal(t, "yaml-db", cfg.Database)
	})

	t.Run("flags beat env", func(t *testing.T) {
		env := &EnvVars{MBOXDB_HOST: "env-host", MBOXDB_PORT: "7432"}
		flags := &ConnFlags{Host: "flag-host", Port: 8432, Database: "flag-db"}
		cfg, err := ResolveConnectionParams(flags, nil, env, project)
		require.NoError(t, err)
		assert.Equal(t, "flag-host", cfg.Host)
		assert.Equal(t, 8432, cfg.Port)
		assert.Equal(t, "flag-db", cfg.Database)
	})

	t.Run("backend flag changes default port", func(t *testing.T) {
		cfg, err := ResolveConnectionParams(&ConnFlags{Backend: "mariadb"}, nil, &EnvVars{}, nil)
		require.NoError(t, err)
		assert.Equal(t, mboxdb.BackendMariaDB, cfg.Backend)
		assert.Equal(t, 3306, cfg.Port)
	})

	t.Run("sqlite has no host", func(t *testing.T) {
		cfg, err := ResolveConnectionParams(&ConnFlags{Backend: "sqlite", Path: "mbox.db"}, nil, &EnvVars{}, nil)
		require.NoError(t, err)
		assert.Empty(t, cfg.Host)
		assert.Zero(t, cfg.Port)
		assert.Equal(t, "mbox.db", cfg.Path)
		require.NoError(t, cfg.Validate())
	})

	t.Run("postgres defaults to prefer", func(t *testing.T) {
		cfg, err := ResolveConnectionParams(&ConnFlags{Backend: "postgres"}, nil, &EnvVars{}, nil)
		require.NoError(t, err)
		assert.Equal(t, "prefer", cfg.TLSMode)
		assert.Equal(t, 5432, cfg.Port)
	})
}

func TestResolveConnectionParams_ConnectionString(t *testing.T) {
	t.Run("flag url", func(t *testing.T) {
		env := &EnvVars{MBOXDB_PASSWORD: "env-pw", MBOXDB_HOST: "ignored"}
		cfg, err := ResolveConnectionParams(&ConnFlags{URL: "mysql://zimbra@db:3307/mboxgroup1", Database: "mboxgroup2"}, nil, env, nil)
		require.NoError(t, err)
		assert.Equal(t, "db", cfg.Host)
		assert.Equal(t, 3307, cfg.Port)
		assert.Equal(t, "env-pw", cfg.Password)
		assert.Equal(t, "mboxgroup2", cfg.Database)
	})

	t.Run("embedded password wins", func(t *testing.T) {
		env := &EnvVars{MBOXDB_PASSWORD: "env-pw"}
		cfg, err := ResolveConnectionParams(&ConnFlags{URL: "mysql://zimbra:url-pw@db/mbox"}, nil, env, nil)
		require.NoError(t, err)
		assert.Equal(t, "url-pw", cfg.Password)
	})

	t.Run("env url", func(t *testing.T) {
		cfg, err := ResolveConnectionParams(nil, nil, &EnvVars{MBOXDB_URL: "sqlite:///var/lib/mbox.db"}, nil)
		require.NoError(t, err)
		assert.Equal(t, mboxdb.BackendSQLite, cfg.Backend)
		assert.Equal(t, "/var/lib/mbox.db", cfg.Path)
	})

	t.Run("granular flags beat env url", func(t *testing.T) {
		cfg, err := ResolveConnectionParams(&ConnFlags{Host: "flag-host"}, nil, &EnvVars{MBOXDB_URL: "sqlite:///var/lib/mbox.db"}, nil)
		require.NoError(t, err)
		assert.Equal(t, mboxdb.BackendMySQL, cfg.Backend)
		assert.Equal(t, "flag-host", cfg.Host)
	})

	t.Run("conflict", func(t *testing.T) {
		_, err := ResolveConnectionParams(&ConnFlags{URL: "mysql://h/db", Host: "other"}, nil, nil, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, mboxdb.ErrInvalidConfig)
		assert.Contains(t, err.Error(), "cannot specify both --url and granular flags")
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := ResolveConnectionParams(&ConnFlags{URL: "not-a-connection-string"}, nil, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid connection string")
	})
}

func TestResolveConnectionParams_Errors(t *testing.T) {
	_, err := ResolveConnectionParams(nil, nil, &EnvVars{MBOXDB_PORT: "abc"}, nil)
	assert.ErrorIs(t, err, mboxdb.ErrInvalidConfig)

	_, err = ResolveConnectionParams(&ConnFlags{Backend: "oracle"}, nil, nil, nil)
	assert.ErrorIs(t, err, mboxdb.ErrUnsupportedBackend)

	project := &config.Config{Connection: config.ConnectionConfig{AuthMethod: "kerberos"}}
	_, err = ResolveConnectionParams(nil, nil, nil, project)
	assert.ErrorIs(t, err, mboxdb.ErrUnsupportedAuthMethod)
}

func TestResolveConnectionParams_CloudAuth(t *testing.T) {
	t.Run("azure from env", func(t *testing.T) {
		env := &EnvVars{AZURE_TENANT_ID: "tenant", AZURE_CLIENT_ID: "client", AZURE_CLIENT_SECRET: "secret"}
		cfg, err := ResolveConnectionParams(nil, nil, env, nil)
		require.NoError(t, err)
		assert.Equal(t, mboxdb.AuthMethodAzureEntraID, cfg.AuthMethod)
		assert.Equal(t, "tenant", cfg.AzureTenantID)
		assert.Equal(t, "client", cfg.AzureClientID)
		assert.Equal(t, "secret", cfg.AzureClientSecret)
	})

	t.Run("azure flags beat env", func(t *testing.T) {
		env := &EnvVars{AZURE_TENANT_ID: "env-tenant", AZURE_CLIENT_ID: "env-client"}
		cfg, err := ResolveConnectionParams(nil, &AzureFlags{TenantID: "flag-tenant"}, env, nil)
		require.NoError(t, err)
		assert.Equal(t, "flag-tenant", cfg.AzureTenantID)
		assert.Equal(t, "env-client", cfg.AzureClientID)
	})

	t.Run("aws region from env", func(t *testing.T) {
		project := &config.Config{Connection: config.ConnectionConfig{Host: "rds", AuthMethod: "aws-iam"}}
		cfg, err := ResolveConnectionParams(nil, nil, &EnvVars{AWS_REGION: "us-west-2"}, project)
		require.NoError(t, err)
		assert.Equal(t, mboxdb.AuthMethodAWSIAM, cfg.AuthMethod)
		assert.Equal(t, "us-west-2", cfg.AWSRegion)
	})

	t.Run("no azure settings keeps standard auth", func(t *testing.T) {
		assert.True(t, (&AzureFlags{}).IsEmpty())
		var nilFlags *AzureFlags
		assert.True(t, nilFlags.IsEmpty())
		cfg, err := ResolveConnectionParams(nil, nil, &EnvVars{}, nil)
		require.NoError(t, err)
		assert.Equal(t, mboxdb.AuthMethodStandard, cfg.AuthMethod)
	})
}
