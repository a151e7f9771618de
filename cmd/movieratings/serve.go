package main

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and gRPC servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, logger, cleanupBoot, err := bootstrap()
		if err != nil {
			return err
		}
		defer cleanupBoot()

		app, cleanup, err := wireApp(bc.Server, bc.Data, bc.Movies, bc.Omdb, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		// start and wait for stop signal
		return app.Run()
	},
}
