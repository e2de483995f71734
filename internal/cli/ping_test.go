package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

func TestPing_SQLiteFlags(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "mbox.db")

	stdout, _, err := runCLI(t, "ping", "--backend", "sqlite", "--path", path)
	require.NoError(t, err)
	assert.Regexp(t, `^OK sqlite .*mbox\.db \(\S+, 0 retries\)\n$`, stdout)
	assert.FileExists(t, path)
}

func TestPing_SQLiteURL(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "url.db")

	stdout, _, err := runCLI(t, "ping", "--url", "sqlite://"+path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "OK sqlite "+path), stdout)
}

func TestPing_EnvironmentAndConfig(t *testing.T) {
	dir := isolateEnv(t)
	writeConfig(t, dir, "connection:\n  backend: sqlite\n  path: from-config.db\n")

	stdout, _, err := runCLI(t, "ping")
	require.NoError(t, err)
	assert.Contains(t, stdout, "OK sqlite from-config.db")

	t.Setenv("MBOXDB_PATH", "from-env.db")
	stdout, _, err = runCLI(t, "ping")
	require.NoError(t, err)
	assert.Contains(t, stdout, "OK sqlite from-env.db", "environment overrides mboxdb.yaml")

	stdout, _, err = runCLI(t, "ping", "--path", "from-flag.db")
	require.NoError(t, err)
	assert.Contains(t, stdout, "OK sqlite from-flag.db", "flags override the environment")
}

func TestPing_VerboseLogsConnection(t *testing.T) {
	dir := isolateEnv(t)

	_, stderr, err := runCLI(t, "ping", "-v", "--backend", "sqlite", "--path", filepath.Join(dir, "v.db"))
	require.NoError(t, err)
	assert.Contains(t, stderr, "[VERBOSE] Connection resolved:")
	assert.Contains(t, stderr, "[VERBOSE]   Backend: sqlite")
}

func TestPing_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"url and granular flags", []string{"--url", "mysql://zimbra@db/mboxgroup1", "--host", "other"}, mboxdb.ExitConfigError},
		{"derby has no driver", []string{"--backend", "derby", "--host", "db"}, mboxdb.ExitConfigError},
		{"unknown backend", []string{"--backend", "oracle"}, mboxdb.ExitConfigError},
		{"sqlite without path", []string{"--backend", "sqlite"}, mboxdb.ExitConfigError},
		{"zero attempts", []string{"--backend", "sqlite", "--path", "x.db", "--max-attempts", "0"}, mboxdb.ExitConfigError},
		{"unexpected argument", []string{"extra"}, mboxdb.ExitUsageError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			_, _, err := runCLI(t, append([]string{"ping"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.code, mboxdb.ExitCodeForError(err), "%v", err)
		})
	}
}

func TestProbe_CountsPings(t *testing.T) {
	dir := isolateEnv(t)

	stdout, stderr, err := runCLI(t, "probe",
		"--backend", "sqlite", "--path", filepath.Join(dir, "probe.db"),
		"--interval", "5ms", "--count", "3",
		"--metrics-address", "127.0.0.1:0")
	require.NoError(t, err)

	assert.Contains(t, stdout, "ping 1 ok")
	assert.Contains(t, stdout, "ping 3 ok")
	assert.NotContains(t, stdout, "ping 4")
	assert.Contains(t, stderr, "metrics on 127.0.0.1:0/metrics")
}

func TestProbe_InvalidInterval(t *testing.T) {
	isolateEnv(t)
	_, _, err := runCLI(t, "probe", "--backend", "sqlite", "--path", "x.db", "--interval", "0s")
	require.Error(t, err)
	assert.Equal(t, mboxdb.ExitUsageError, mboxdb.ExitCodeForError(err))
}
