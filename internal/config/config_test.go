package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/mboxdb/internal/dialect"
	"github.com/vvka-141/mboxdb/internal/retry"
	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, mboxdb.ConfigFileName), []byte(content), 0644))
	return dir
}

func TestLoad_AllFields(t *testing.T) {
	dir := writeConfig(t, `connection:
  backend: mariadb
  host: db.internal
  port: 3307
  username: zimbra
  database: mboxgroup1
  sslmode: skip-verify
  connect_timeout: 5s
  auth_method: aws-iam
  aws_region: eu-west-1

retry:
  max_attempts: 3
  base_delay: 10ms

dialect:
  index_hints:
    mail_item_folder_date: i_folder_date_v2
  capabilities:
    non-bmp-characters: false

metrics:
  address: ":9200"
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "mariadb", cfg.Connection.Backend)
	assert.Equal(t, "db.internal", cfg.Connection.Host)
	assert.Equal(t, 3307, cfg.Connection.Port)
	assert.Equal(t, "zimbra", cfg.Connection.Username)
	assert.Equal(t, "mboxgroup1", cfg.Connection.Database)
	assert.Equal(t, "skip-verify", cfg.Connection.SSLMode)
	require.NotNil(t, cfg.Retry.MaxAttempts)
	assert.Equal(t, 3, *cfg.Retry.MaxAttempts)
	assert.Equal(t, "i_folder_date_v2", cfg.Dialect.IndexHints["mail_item_folder_date"])
	assert.Equal(t, ":9200", cfg.Metrics.MetricsAddress())
}

func TestLoad_MinimalYAML(t *testing.T) {
	dir := writeConfig(t, "connection:\n  backend: sqlite\n  path: /var/lib/mbox.db\n")

	cfg, err := Load(dir)
	require.NoError(t, err)

	policy, err := cfg.Retry.Policy()
	require.NoError(t, err)
	assert.Equal(t, mboxdb.DefaultRetryMaxAttempts, policy.MaxAttempts())
	assert.Equal(t, mboxdb.DefaultRetryBaseDelay, policy.BaseDelay())
	assert.Equal(t, mboxdb.DefaultMetricsAddress, cfg.Metrics.MetricsAddress())
	assert.Nil(t, cfg.Dialect.ProfileOptions())
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := writeConfig(t, "connection: [unclosed")

	_, err := Load(dir)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrConfigNotFound))
}

func TestLoad_ValidationCollectsAllProblems(t *testing.T) {
	dir := writeConfig(t, `connection:
  backend: oracle
  auth_method: kerberos
retry:
  max_attempts: 0
  base_delay: soon
dialect:
  capabilities:
    time-travel: true
`)

	_, err := Load(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, mboxdb.ErrUnsupportedBackend)
	assert.ErrorIs(t, err, mboxdb.ErrUnsupportedAuthMethod)
	assert.ErrorIs(t, err, mboxdb.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "retry.base_delay")
	assert.Contains(t, err.Error(), "time-travel")
}

func TestRetryConfig_Policy(t *testing.T) {
	jitter := 0.0

	tests := []struct {
		name      string
		cfg       RetryConfig
		attempts  int
		delays    []time.Duration
		expectErr bool
	}{
		{
			name:     "fixed",
			cfg:      RetryConfig{MaxAttempts: intPtr(3), BaseDelay: "10ms"},
			attempts: 3,
			delays:   []time.Duration{10 * time.Millisecond, 10 * time.Millisecond},
		},
		{
			name:     "exponential",
			cfg:      RetryConfig{MaxAttempts: intPtr(4), BaseDelay: "100ms", Backoff: "exponential", MaxDelay: "300ms", Jitter: &jitter},
			attempts: 4,
			delays:   []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond},
		},
		{name: "zero attempts", cfg: RetryConfig{MaxAttempts: intPtr(0)}, expectErr: true},
		{name: "negative attempts", cfg: RetryConfig{MaxAttempts: intPtr(-1)}, expectErr: true},
		{name: "attempts unset", cfg: RetryConfig{BaseDelay: "0s"}, attempts: mboxdb.DefaultRetryMaxAttempts},
		{name: "negative delay", cfg: RetryConfig{BaseDelay: "-1s"}, expectErr: true},
		{name: "unknown backoff", cfg: RetryConfig{Backoff: "fibonacci"}, expectErr: true},
		{name: "bad multiplier", cfg: RetryConfig{Backoff: "exponential", Multiplier: 0.5}, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := tt.cfg.Policy()
			if tt.expectErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, mboxdb.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.attempts, policy.MaxAttempts())
			for i, want := range tt.delays {
				assert.Equal(t, want, policy.Backoff().NextDelay(i), "retry %d", i)
			}
		})
	}
}

func TestRetryConfig_PolicyDrivesExecutor(t *testing.T) {
	policy, err := RetryConfig{MaxAttempts: intPtr(2), BaseDelay: "0s"}.Policy()
	require.NoError(t, err)

	executor := retry.NewExecutor(retry.Never, policy)
	assert.Equal(t, 2, executor.Policy().MaxAttempts())
}

func TestLoad_ZeroMaxAttemptsRejected(t *testing.T) {
	dir := writeConfig(t, "retry:\n  max_attempts: 0\n")

	_, err := Load(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, mboxdb.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "max attempts must be at least 1, got 0")
}

func intPtr(n int) *int {
	return &n
}

func TestDialectConfig_ProfileOptions(t *testing.T) {
	d := DialectConfig{
		IndexHints:   map[string]string{dialect.IndexMailItemFolderDate: "i_fd_v2"},
		Capabilities: map[string]bool{"non-bmp-characters": false},
	}

	reg := dialect.DefaultRegistry(nil)
	require.NoError(t, reg.Derive("mysql", "mysql", d.ProfileOptions()...))
	p := reg.MustLookup("mysql")

	assert.Equal(t, " FORCE INDEX (i_fd_v2)", p.ForceIndexClause(dialect.IndexMailItemFolderDate))
	assert.False(t, p.Supports(dialect.CapNonBMPCharacters))
}

func TestConnectionConfig_ToConnectionConfig(t *testing.T) {
	t.Setenv(mboxdb.PasswordEnvVar, "s3cret")

	cfg, err := ConnectionConfig{Backend: "postgresql", Username: "mbox", Database: "mail", ConnectTimeout: "3s"}.ToConnectionConfig()
	require.NoError(t, err)

	assert.Equal(t, mboxdb.BackendPostgres, cfg.Backend)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "s3cret", cfg.Password)
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestConnectionConfig_DefaultsToMySQL(t *testing.T) {
	cfg, err := ConnectionConfig{}.ToConnectionConfig()
	require.NoError(t, err)

	assert.Equal(t, mboxdb.BackendMySQL, cfg.Backend)
	assert.Equal(t, 3306, cfg.Port)
}

func TestConnectionConfig_SQLiteHasNoHost(t *testing.T) {
	cfg, err := ConnectionConfig{Backend: "sqlite", Path: "mbox.db"}.ToConnectionConfig()
	require.NoError(t, err)

	assert.Empty(t, cfg.Host)
	assert.Equal(t, 0, cfg.Port)
	assert.NoError(t, cfg.Validate())
}
