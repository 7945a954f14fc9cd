package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orris-inc/paygate/internal/infrastructure/database"
	"github.com/orris-inc/paygate/internal/infrastructure/migration"
	"github.com/orris-inc/paygate/internal/interfaces/cli/bootstrap"
)

var (
	env        string
	configPath string
	name       string
	steps      int
	sourceRoot string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
		Long:  `Manage database migrations including running migrations, checking status, and creating new migration files.`,
	}

	cmd.PersistentFlags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")

	cmd.AddCommand(
		newUpCommand(),
		newDownCommand(),
		newStatusCommand(),
		newCreateCommand(),
	)

	return cmd
}

func newUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Run all pending migrations",
		Long:  `Apply all pending database migrations to bring the database schema up to date.`,
		RunE:  runUp,
	}
}

func newDownCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		Long:  `Rollback a specified number of database migrations.`,
		RunE:  runDown,
	}

	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to rollback")

	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Long:  `Display the current migration version and status of the database.`,
		RunE:  runStatus,
	}
}

func newCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new migration",
		Long:  `Create an empty SQL migration for the configured database driver.`,
		RunE:  runCreate,
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Name of the migration (required)")
	cmd.Flags().StringVar(&sourceRoot, "root", "./internal/infrastructure/migration", "Migration package directory in the source tree")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func openEnv() (*bootstrap.Env, error) {
	e, err := bootstrap.Load(env, configPath)
	if err != nil {
		return nil, err
	}
	if err := e.OpenDatabase(); err != nil {
		return nil, err
	}
	return e, nil
}

func runUp(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer database.Close()
	log := e.Log

	log.Infow("running up migrations", "environment", e.Name)

	if err := migration.NewGooseStrategy(log).Migrate(database.Get()); err != nil {
		log.Errorw("migration failed", "error", err)
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Infow("migrations completed successfully")
	return nil
}

func runDown(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer database.Close()
	log := e.Log

	log.Infow("running down migrations", "environment", e.Name, "steps", steps)

	if err := migration.NewGooseStrategy(log).MigrateDown(database.Get(), steps); err != nil {
		log.Errorw("down migration failed", "error", err)
		return fmt.Errorf("down migration failed: %w", err)
	}

	log.Infow("down migration completed successfully")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer database.Close()
	log := e.Log

	strategy := migration.NewGooseStrategy(log)
	version, err := strategy.GetVersion(database.Get())
	if err != nil {
		log.Errorw("failed to get migration version", "error", err)
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nMigration Status:\n")
	fmt.Fprintf(out, "  Environment:     %s\n", e.Name)
	fmt.Fprintf(out, "  Current Version: %d\n", version)

	if err := strategy.Status(database.Get()); err != nil {
		log.Errorw("failed to get detailed status", "error", err)
		return fmt.Errorf("failed to get detailed status: %w", err)
	}
	return nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	e, err := bootstrap.Load(env, configPath)
	if err != nil {
		return err
	}

	dir, err := migration.Create(sourceRoot, e.Config.Database.Driver, name)
	if err != nil {
		e.Log.Errorw("failed to create migration", "error", err)
		return err
	}

	e.Log.Infow("migration created", "name", name, "dir", dir)
	fmt.Fprintf(cmd.OutOrStdout(), "Migration '%s' created in %s\n", name, dir)
	return nil
}
