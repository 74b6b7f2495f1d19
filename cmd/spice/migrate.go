package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-ingest/internal/cli"
	"github.com/Veraticus/spice-ingest/internal/storage"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Every other command migrates on startup; this one only reports what it did.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			status, _ := cmd.Flags().GetBool("status")
			dbPath := appConfig.Database.Path

			if status {
				store, err := storage.NewSQLiteStorage(dbPath)
				if err != nil {
					return fmt.Errorf("failed to open database: %w", err)
				}
				defer func() { _ = store.Close() }()

				current, err := store.SchemaVersion(ctx)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Database:        %s\nCurrent version: %d\nLatest version:  %d\n",
					dbPath, current, storage.ExpectedSchemaVersion)
				return nil
			}

			slog.Info("Running database migrations", "database", dbPath)
			_, cleanup, err := getDatabase(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			cleanup()

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Database migrations completed successfully"))
			return nil
		},
	}

	cmd.Flags().Bool("status", false, "show current migration status without applying changes")
	return cmd
}
