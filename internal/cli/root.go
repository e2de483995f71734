package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vvka-141/mboxdb/internal/config"
	"github.com/vvka-141/mboxdb/internal/dialect"
	"github.com/vvka-141/mboxdb/internal/logging"
	"github.com/vvka-141/mboxdb/internal/retry"
	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

var rootCmd = &cobra.Command{
	Use:   "mboxdb",
	Short: "Dialect and retry toolkit for the mailbox database",
	Long: `mboxdb inspects the SQL dialect profiles used by the mailbox data-access
layer and checks connectivity to its backends (MySQL, MariaDB, Derby, SQLite
and PostgreSQL) through the same retrying executor the DAO code uses.

Configuration is read from mboxdb.yaml in the working directory (or --config),
then MBOXDB_* environment variables and a .env file, then flags.

Exit Codes:
  0  - Success
  1  - General error
  2  - CLI usage error (invalid arguments or flags)
  3  - Panic or unexpected system error
  10 - Invalid configuration or unknown backend
  11 - Database connection failed
  12 - Retry limit exceeded on transient errors`,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnvironment,
}

// Execute runs the root command
func Execute() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		printVersionInfo(rootCmd.OutOrStdout())
		return nil
	}
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output for all commands")
	rootCmd.PersistentFlags().String("config", "", "Path to mboxdb.yaml (default: ./mboxdb.yaml if present)")
	rootCmd.PersistentFlags().String("log-format", "console", "Log format: console or json")
}

// loadEnvironment reads .env before any command resolves its settings.
// A missing .env file is not an error.
func loadEnvironment(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()
	return nil
}

// getVerboseFlag safely retrieves the verbose flag value
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: Failed to get verbose flag: %v\n", err)
		return false
	}
	return verbose
}

// newLogger builds the logger selected by --log-format.
func newLogger(cmd *cobra.Command) (mboxdb.Logger, error) {
	verbose := getVerboseFlag(cmd)
	format, _ := cmd.Flags().GetString("log-format")

	switch format {
	case "", "console":
		return logging.NewConsoleLoggerTo(cmd.ErrOrStderr(), verbose), nil
	case "json":
		logger, err := logging.NewZapLogger(verbose)
		if err != nil {
			return nil, err
		}
		return logger, nil
	default:
		return nil, fmt.Errorf("invalid argument %q for \"--log-format\": must be console or json", format)
	}
}

// loadProjectConfig loads --config, or mboxdb.yaml from the working directory.
// Returns nil config if the default file does not exist (not an error).
func loadProjectConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		cfg, err := config.LoadFile(path)
		if errors.Is(err, config.ErrConfigNotFound) {
			return nil, fmt.Errorf("config file %s not found: %w", path, mboxdb.ErrInvalidConfig)
		}
		return cfg, err
	}

	cfg, err := config.Load(".")
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load %s: %w", mboxdb.ConfigFileName, err)
	}
	return cfg, nil
}

// newRegistry returns the built-in dialects with the dialect section of cfg
// layered over the profile of the configured backend.
func newRegistry(cfg *config.Config, logger mboxdb.Logger) (*dialect.Registry, error) {
	registry := dialect.DefaultRegistry(logger)
	if cfg == nil {
		return registry, nil
	}

	opts := cfg.Dialect.ProfileOptions()
	if len(opts) == 0 {
		return registry, nil
	}

	backend := mboxdb.BackendMySQL
	if cfg.Connection.Backend != "" {
		b, err := mboxdb.ParseBackend(cfg.Connection.Backend)
		if err != nil {
			return nil, err
		}
		backend = b
	}
	if err := registry.Derive(string(backend), string(backend), opts...); err != nil {
		return nil, err
	}
	logger.Verbose("dialect %s: %d override(s) from configuration", backend, len(opts))
	return registry, nil
}

// lookupDialect resolves a backend name or alias against the registry.
func lookupDialect(registry *dialect.Registry, name string) (*dialect.Profile, error) {
	if b, err := mboxdb.ParseBackend(name); err == nil {
		name = string(b)
	}
	p, err := registry.Lookup(name)
	if errors.Is(err, dialect.ErrUnknownBackend) {
		return nil, fmt.Errorf("%w: %w", err, mboxdb.ErrInvalidConfig)
	}
	return p, err
}

// retryPolicy returns the policy from the retry section, or the default.
func retryPolicy(cfg *config.Config) (retry.Policy, error) {
	if cfg == nil {
		return retry.DefaultPolicy(), nil
	}
	return cfg.Retry.Policy()
}
