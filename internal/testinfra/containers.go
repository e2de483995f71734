// Package testinfra starts database containers for the conntest suites.
package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	PostgresImage    = "postgres:17-alpine"
	PostgresUser     = "postgres"
	PostgresPassword = "postgres"
	PostgresDB       = "mbox"

	MySQLImage   = "mysql:8.4"
	MariaDBImage = "mariadb:11.4"
	MySQLUser    = "zimbra"
	// MySQLPassword is also used as the root password.
	MySQLPassword = "zimbra"
	MySQLDB       = "mboxgroup1"

	startupTimeout = 120 * time.Second
)

type PostgresContainer struct {
	*postgres.PostgresContainer
	ConnString string
}

// StartPostgres starts PostgreSQL with TLS disabled.
func StartPostgres(ctx context.Context) (*PostgresContainer, error) {
	ctr, err := postgres.Run(ctx,
		PostgresImage,
		postgres.WithUsername(PostgresUser),
		postgres.WithPassword(PostgresPassword),
		postgres.WithDatabase(PostgresDB),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(startupTimeout),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get connection string: %w", err)
	}

	return &PostgresContainer{PostgresContainer: ctr, ConnString: connStr}, nil
}

// MySQLContainer is a MySQL or MariaDB server. ConnString is a mysql:// or
// mariadb:// URI accepted by db.ParseConnectionString.
type MySQLContainer struct {
	testcontainers.Container
	ConnString string
}

// StartMySQL starts MySQL with the mailbox group database created.
func StartMySQL(ctx context.Context) (*MySQLContainer, error) {
	return startMySQLFamily(ctx, "mysql", MySQLImage, map[string]string{
		"MYSQL_ROOT_PASSWORD": MySQLPassword,
		"MYSQL_USER":          MySQLUser,
		"MYSQL_PASSWORD":      MySQLPassword,
		"MYSQL_DATABASE":      MySQLDB,
	}, "port: 3306  MySQL Community Server")
}

// StartMariaDB starts MariaDB with the mailbox group database created.
func StartMariaDB(ctx context.Context) (*MySQLContainer, error) {
	return startMySQLFamily(ctx, "mariadb", MariaDBImage, map[string]string{
		"MARIADB_ROOT_PASSWORD": MySQLPassword,
		"MARIADB_USER":          MySQLUser,
		"MARIADB_PASSWORD":      MySQLPassword,
		"MARIADB_DATABASE":      MySQLDB,
	}, "mariadbd: ready for connections")
}

func startMySQLFamily(ctx context.Context, scheme, image string, env map[string]string, readyLog string) (*MySQLContainer, error) {
	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"3306/tcp"},
			Env:          env,
			WaitingFor: wait.ForAll(
				wait.ForLog(readyLog),
				wait.ForListeningPort("3306/tcp"),
			).WithStartupTimeoutDefault(startupTimeout),
		},
		Started: true,
	}

	ctr, err := testcontainers.GenericContainer(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", scheme, err)
	}

	host, err := ctr.Host(ctx)
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get host: %w", err)
	}
	port, err := ctr.MappedPort(ctx, "3306/tcp")
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}

	connStr := fmt.Sprintf("%s://%s:%s@%s:%s/%s?tls=false", scheme, MySQLUser, MySQLPassword, host, port.Port(), MySQLDB)
	return &MySQLContainer{Container: ctr, ConnString: connStr}, nil
}
