package db

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

func TestBuildDSN_MySQL(t *testing.T) {
	config := &mboxdb.ConnectionConfig{
		Backend:        mboxdb.BackendMySQL,
		Host:           "db",
		Port:           3306,
		Username:       "zimbra",
		Password:       "secret",
		Database:       "mboxgroup1",
		TLSMode:        "disable",
		ConnectTimeout: 5 * time.Second,
	}

	driverName, dsn, err := BuildDSN(config)
	require.NoError(t, err)
	assert.Equal(t, DriverMySQL, driverName)
	assert.Contains(t, dsn, "zimbra:secret@tcp(db:3306)/mboxgroup1?")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "timeout=5s")
	assert.Contains(t, dsn, "tls=false")
	assert.NotContains(t, dsn, "allowCleartextPasswords")
}

func TestBuildDSN_MariaDBUsesMySQLDriver(t *testing.T) {
	driverName, dsn, err := BuildDSN(&mboxdb.ConnectionConfig{
		Backend:  mboxdb.BackendMariaDB,
		Host:     "maria",
		Port:     3306,
		Username: "root",
		Database: "zimbra",
	})
	require.NoError(t, err)
	assert.Equal(t, DriverMySQL, driverName)
	assert.Contains(t, dsn, "root@tcp(maria:3306)/zimbra")
}

func TestBuildDSN_MySQLCloudTokensRequireTLS(t *testing.T) {
	for _, method := range []mboxdb.AuthMethod{mboxdb.AuthMethodAWSIAM, mboxdb.AuthMethodAzureEntraID} {
		t.Run(method.String(), func(t *testing.T) {
			_, dsn, err := BuildDSN(&mboxdb.ConnectionConfig{
				Backend:    mboxdb.BackendMySQL,
				Host:       "mbox.example.com",
				Port:       3306,
				Username:   "mbox",
				Password:   "token",
				TLSMode:    "disable",
				AuthMethod: method,
			})
			require.NoError(t, err)
			assert.Contains(t, dsn, "allowCleartextPasswords=true")
			assert.Contains(t, dsn, "tls=true")
		})
	}
}

func TestMySQLTLS(t *testing.T) {
	tests := map[string]string{
		"disable":     "false",
		"prefer":      "preferred",
		"require":     "true",
		"verify-ca":   "skip-verify",
		"verify-full": "true",
		"skip-verify": "skip-verify",
		"custom":      "custom",
	}
	for mode, want := range tests {
		assert.Equal(t, want, mysqlTLS(mode), "mode %s", mode)
	}
}

func TestBuildDSN_Postgres(t *testing.T) {
	driverName, dsn, err := BuildDSN(&mboxdb.ConnectionConfig{
		Backend:          mboxdb.BackendPostgres,
		Host:             "pg",
		Port:             5432,
		Username:         "zimbra",
		Password:         "p@ss word",
		Database:         "mbox",
		TLSMode:          "require",
		AppName:          "mailboxd",
		ConnectTimeout:   10 * time.Second,
		AdditionalParams: map[string]string{"search_path": "mbox"},
	})
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, driverName)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "postgresql", u.Scheme)
	assert.Equal(t, "pg:5432", u.Host)
	assert.Equal(t, "zimbra", u.User.Username())
	pass, _ := u.User.Password()
	assert.Equal(t, "p@ss word", pass)
	assert.Equal(t, "/mbox", u.Path)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
	assert.Equal(t, "mailboxd", u.Query().Get("application_name"))
	assert.Equal(t, "10", u.Query().Get("connect_timeout"))
	assert.Equal(t, "mbox", u.Query().Get("search_path"))
}

func TestBuildDSN_SQLite(t *testing.T) {
	driverName, dsn, err := BuildDSN(&mboxdb.ConnectionConfig{
		Backend: mboxdb.BackendSQLite,
		Path:    "/tmp/mbox.db",
	})
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, driverName)
	assert.Equal(t, "file:/tmp/mbox.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dsn)
}

func TestBuildDSN_SQLiteExtraParams(t *testing.T) {
	_, dsn, err := BuildDSN(&mboxdb.ConnectionConfig{
		Backend:          mboxdb.BackendSQLite,
		Path:             "mbox.db",
		AdditionalParams: map[string]string{"mode": "ro", "cache": "shared"},
	})
	require.NoError(t, err)
	assert.Equal(t, "file:mbox.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&cache=shared&mode=ro", dsn)
}

func TestBuildDSN_Errors(t *testing.T) {
	_, _, err := BuildDSN(&mboxdb.ConnectionConfig{Backend: mboxdb.BackendDerby, Host: "localhost", Port: 1527})
	assert.ErrorIs(t, err, mboxdb.ErrUnsupportedBackend)

	_, _, err = BuildDSN(&mboxdb.ConnectionConfig{Backend: mboxdb.BackendSQLite})
	assert.ErrorIs(t, err, mboxdb.ErrInvalidConfig)

	_, _, err = BuildDSN(&mboxdb.ConnectionConfig{Backend: "oracle"})
	assert.ErrorIs(t, err, mboxdb.ErrUnsupportedBackend)
}

func TestRedactDSN(t *testing.T) {
	config := &mboxdb.ConnectionConfig{
		Backend:  mboxdb.BackendMySQL,
		Host:     "db",
		Port:     3306,
		Username: "zimbra",
		Password: "hunter2",
	}
	redacted := RedactDSN(config)
	assert.NotContains(t, redacted, "hunter2")
	assert.Contains(t, redacted, "zimbra:xxxxx@")
	assert.Equal(t, "hunter2", config.Password, "config must not be modified")

	assert.Equal(t, "derby://db", RedactDSN(&mboxdb.ConnectionConfig{Backend: mboxdb.BackendDerby, Host: "db"}))
}
