package main

import (
	"github.com/spf13/cobra"

	"github.com/baldanca/order-reservation/httpapi"
	"github.com/baldanca/order-reservation/ingestor"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the order reservation HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := createContextWithShutdown(cmd.Context())

			s, err := newSink(ctx, cfg)
			if err != nil {
				return err
			}
			handler := httpapi.NewHandler(ingestor.New(s, logger), logger)
			srv := httpapi.NewServer(cfg.HTTP.Addr, httpapi.NewRouter(handler), cfg.HTTP.ShutdownGrace, logger)
			return srv.Run(ctx)
		},
	}
	cmd.Flags().String("http.addr", ":8080", "address the HTTP server listens on")
	return cmd
}
