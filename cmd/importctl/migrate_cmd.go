package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/staffimport/internal/config"
	"github.com/JonMunkholm/staffimport/internal/storage/postgres"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openPostgres(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.Migrate(cmd.Context()); err != nil {
				return withCode(exitDB, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}
}

// openPostgres connects to DATABASE_URL for commands that only work
// against the database.
func openPostgres(ctx context.Context, root *rootOptions) (*postgres.Repository, error) {
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Backend != config.BackendPostgres {
		return nil, withCode(exitUsage, errors.New("this command needs STORAGE_BACKEND=postgres"))
	}
	repo, err := postgres.Open(ctx, cfg.Database.URL, int32(cfg.Database.MaxConns))
	if err != nil {
		return nil, withCode(exitDB, err)
	}
	return repo, nil
}
