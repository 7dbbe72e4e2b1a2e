package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"realestate-scraper/server"
	"realestate-scraper/services"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve listing history over HTTP",
		Long:  "Start a read-only HTTP API: /health, /api/ads/history and /api/integrity.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore(store)

			srv := server.New(store, services.NewIntegrityService(store, logger), logger)
			return srv.ListenAndServe(cmd.Context(), fmt.Sprintf(":%d", port))
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "port to listen on")

	return cmd
}
