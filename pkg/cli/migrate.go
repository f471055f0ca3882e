package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rest/pkg/config"
	"github.com/ekaya-inc/ekaya-rest/pkg/database"
	"github.com/ekaya-inc/ekaya-rest/pkg/logging"
)

// NewMigrateCommand creates the migrate command with up and down
// subcommands.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Install or remove the API roles and request helper functions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrationDB(cmd, rootOpts, func(cfg *config.Config, db *database.DB, logger *zap.Logger) error {
				sqlDB := db.SQLDB()
				defer sqlDB.Close()
				return database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger)
			})
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrationDB(cmd, rootOpts, func(cfg *config.Config, db *database.DB, logger *zap.Logger) error {
				sqlDB := db.SQLDB()
				defer sqlDB.Close()
				return database.RollbackMigrations(sqlDB, cfg.Database.MigrationsPath, steps, logger)
			})
		},
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}

func withMigrationDB(cmd *cobra.Command, rootOpts *RootOptions, fn func(*config.Config, *database.DB, *zap.Logger) error) error {
	cfg, err := rootOpts.loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := connect(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(cfg, db, logger)
}
