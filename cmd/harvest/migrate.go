package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-harvest/internal/cli"
	"github.com/Veraticus/spice-harvest/internal/config"
	"github.com/Veraticus/spice-harvest/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

An existing database is checkpointed before any migration runs; see
"harvest checkpoint list".`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")
	cmd.Flags().Bool("no-checkpoint", false, "Skip the automatic checkpoint before migrating")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")
	noCheckpoint, _ := cmd.Flags().GetBool("no-checkpoint")
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	dbPath, err := config.DatabasePath()
	if err != nil {
		return err
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	current, err := store.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	if status {
		fmt.Fprintln(out, cli.FormatTitle("📊 Database Migration Status"))
		fmt.Fprintf(out, "  Database:        %s\n", dbPath)
		fmt.Fprintf(out, "  Current version: %d\n", current)
		fmt.Fprintf(out, "  Latest version:  %d\n", storage.ExpectedSchemaVersion)
		if current < storage.ExpectedSchemaVersion {
			fmt.Fprintln(out, cli.FormatWarning("Migrations pending. Run harvest migrate."))
		}
		return nil
	}

	if current >= storage.ExpectedSchemaVersion {
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Database is up to date (version %d)", current)))
		return nil
	}

	if current > 0 && !noCheckpoint {
		manager, err := store.NewCheckpointManager()
		if err != nil {
			return err
		}
		info, err := manager.AutoCheckpoint(ctx, "migrate")
		if err != nil {
			return err
		}
		slog.Info("Checkpointed database before migrating", "checkpoint", info.ID)
	}

	slog.Info("Running database migrations", "database", dbPath, "from", current, "to", storage.ExpectedSchemaVersion)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Database migrated to version %d", storage.ExpectedSchemaVersion)))
	return nil
}
