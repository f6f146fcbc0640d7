package cli

import (
	"context"

	"github.com/cabinet-cloud/cabinet/internal/config"
	"github.com/cabinet-cloud/cabinet/internal/postgres"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile, _ := cmd.Flags().GetString("config")

			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}

			ctx := context.Background()

			pool, err := postgres.Connect(ctx, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.Migrate(ctx, pool); err != nil {
				return err
			}

			log.Info().Msg("Migration complete")

			return nil
		},
	}

	return cmd
}
