package main

import (
	"fmt"

	"movieratings/internal/conf"
	"movieratings/internal/data"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/spf13/cobra"
)

var seed bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the movies, users and ratings tables",
	Long: `Runs the schema migration against the configured relational database.
With --seed, an empty movies table is filled with the initial movies.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, logger, cleanupBoot, err := bootstrap()
		if err != nil {
			return err
		}
		defer cleanupBoot()

		if bc.Data.Driver == conf.DriverMemory {
			return fmt.Errorf("driver %s has no schema to migrate", bc.Data.Driver)
		}

		d, cleanup, err := data.NewData(bc.Data, nil, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := cmd.Context()
		if err := d.Migrate(ctx); err != nil {
			return err
		}
		if seed {
			n, err := d.Seed(ctx)
			if err != nil {
				return err
			}
			log.NewHelper(logger).Infof("seeded %d movies", n)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&seed, "seed", false, "insert the initial movies into an empty table")
}
