// deployschema applies the database schema of the application and checks
// that the expected tables and functions exist afterwards.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mailoreply/smoketest/internal/config"
	"github.com/mailoreply/smoketest/internal/scanner/clients/postgres"
	"github.com/mailoreply/smoketest/internal/version"
)

var (
	cfg    *config.DeployEnvironment
	logger = logrus.New()

	logLevel string
)

var rootCmd = &cobra.Command{
	Use:               "deployschema",
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	Short:             "Deploy the application database schema",
	Long: `Deploy the application database schema and verify the result.

SCHEMA_PATH may name a .sql file, executed as a single transaction, or a
directory of goose migrations. Connection settings are read from DB_HOST,
DB_PORT, DB_NAME, DB_USER, DB_SCHEMA_PASSWORD and DB_SSLMODE.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger.SetLevel(level)

		cfg, err = config.NewDeployConfig()
		if err != nil {
			return errors.Wrap(err, "failed to load configuration (is DB_SCHEMA_PASSWORD set?)")
		}

		return nil
	},
	RunE: runDeploy,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the expected tables and functions without deploying",
	RunE:  runVerify,
}

func main() {
	rootCmd.Version = version.Version
	rootCmd.PersistentFlags().StringVar(&logLevel, "logLevel", "info", "Logging level: panic, fatal, error, warn, info, debug, trace")
	rootCmd.AddCommand(verifyCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.WithError(err).Error("schema deployment failed")
		os.Exit(1)
	}
}

// connect opens the pool; the caller closes it.
func connect(ctx context.Context) (*postgres.Client, error) {
	logger.WithFields(logrus.Fields{
		"host":     cfg.DBHost,
		"port":     cfg.DBPort,
		"database": cfg.DBName,
	}).Info("Connecting to the database")

	client := postgres.New(cfg.DatabaseURL(), 1, logger)
	if err := client.Setup(ctx); err != nil {
		return nil, err
	}

	return client, nil
}

func runDeploy(cmd *cobra.Command, args []string) error {
	if err := cfg.CheckBaaSSettings(); err != nil {
		return errors.Wrap(err, "platform settings are not configured")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.StatementTimeout)
	defer cancel()

	client, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err = deploy(ctx, client, cfg.SchemaPath); err != nil {
		return err
	}

	logger.Info("Schema deployment completed")

	return verify(ctx, client, cmd.OutOrStdout())
}

func runVerify(cmd *cobra.Command, args []string) error {
	client, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer client.Close()

	return verify(cmd.Context(), client, cmd.OutOrStdout())
}

// deploy applies a .sql file in one transaction or a directory of goose
// migrations.
func deploy(ctx context.Context, client *postgres.Client, schemaPath string) error {
	info, err := os.Stat(schemaPath)
	if err != nil {
		return errors.Wrap(err, "schema not found")
	}

	if info.IsDir() {
		logger.WithField("dir", schemaPath).Info("Applying migrations")
		return client.Migrate(ctx, schemaPath)
	}

	if filepath.Ext(schemaPath) != ".sql" {
		return fmt.Errorf("unsupported schema file %s: expected a .sql file or a migrations directory", schemaPath)
	}

	logger.WithField("file", schemaPath).Info("Executing schema file")
	return client.ExecFile(ctx, schemaPath)
}
