package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/baldanca/order-reservation/config"
	"github.com/baldanca/order-reservation/logging"
)

// rootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "orderreservation",
		Short:         "orderreservation stores order reservation payloads as {sessionId}.json objects.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "path to a config file (yaml, json or toml)")
	cmd.PersistentFlags().String("log.level", "info", "log level")
	cmd.PersistentFlags().String("log.format", "text", "log format, text or json")
	cmd.PersistentFlags().String("storage.driver", config.DriverS3, "storage driver, s3 or memory")
	cmd.PersistentFlags().String("storage.bucket", "orders", "bucket order reservations are written to")

	cmd.AddCommand(
		serveCmd(),
		consumeCmd(),
		consumeSTANCmd(),
		lambdaHTTPCmd(),
		lambdaQueueCmd(),
		provisionCmd(),
	)
	return cmd
}

// loadConfig reads configuration for cmd and configures the standard logger.
func loadConfig(cmd *cobra.Command) (config.Config, *log.Entry, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := logging.Configure(cfg.Log); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log.WithField("command", cmd.Name()), nil
}

// createContextWithShutdown returns a context that will report done when a
// SIGINT or SIGTERM is received.
func createContextWithShutdown(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(c)
		select {
		case <-c:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
