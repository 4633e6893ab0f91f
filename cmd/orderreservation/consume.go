package main

import (
	"context"
	"fmt"
	"os"

	stan "github.com/nats-io/stan.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/baldanca/order-reservation/config"
	"github.com/baldanca/order-reservation/httpapi"
	"github.com/baldanca/order-reservation/ingestor"
	"github.com/baldanca/order-reservation/metrics"
	"github.com/baldanca/order-reservation/source"
	"github.com/baldanca/order-reservation/transformer"
)

func consumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Consume order reservations from an SQS queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.RequireQueue(); err != nil {
				return err
			}
			ctx := createContextWithShutdown(cmd.Context())

			awsCfg, err := loadAWSConfig(ctx, cfg)
			if err != nil {
				return err
			}
			s, err := newSink(ctx, cfg)
			if err != nil {
				return err
			}

			src := source.NewSQS(ctx, newSQSClient(awsCfg), cfg.Queue.URL, sqsSourceConfig(cfg.Queue))
			defer src.Close()

			return runConsumer(ctx, cfg, metrics.AdapterSQS, src, ingestor.New(s, logger), logger)
		},
	}
	cmd.Flags().String("queue.url", "", "URL of the SQS queue to consume")
	cmd.Flags().String("http.addr", ":8080", "address metrics are served on")
	return cmd
}

func consumeSTANCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consume-stan",
		Short: "Consume order reservations from a NATS Streaming subject",
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

			clientID := cfg.STAN.ClientID
			if clientID == "" {
				clientID = fmt.Sprintf("order-reservation-%d", os.Getpid())
			}
			sc, err := stan.Connect(cfg.STAN.ClusterID, clientID, stan.NatsURL(cfg.STAN.URL))
			if err != nil {
				return fmt.Errorf("connect to nats streaming cluster=%s url=%s: %w", cfg.STAN.ClusterID, cfg.STAN.URL, err)
			}
			defer sc.Close()

			src, err := source.NewSTAN(sc, stanSourceConfig(cfg.STAN, cfg.Queue))
			if err != nil {
				return err
			}
			defer src.Close()

			return runConsumer(ctx, cfg, metrics.AdapterSTAN, src, ingestor.New(s, logger), logger)
		},
	}
	cmd.Flags().String("stan.url", "nats://localhost:4222", "NATS server URL")
	cmd.Flags().String("http.addr", ":8080", "address metrics are served on")
	return cmd
}

// runConsumer runs the consumer next to a metrics endpoint until ctx is done
// or either of them fails.
func runConsumer(ctx context.Context, cfg config.Config, adapter string, src source.Sourcer, ing *ingestor.Ingestor, logger *log.Entry) error {
	consumer, err := ingestor.NewConsumer(
		ingestor.ConsumerConfig{
			Adapter:     adapter,
			Workers:     cfg.Consumer.Workers,
			MaxAttempts: cfg.Queue.MaxAttempts,
		},
		src,
		transformer.ReservationJSON{},
		ing,
		logger,
	)
	if err != nil {
		return err
	}
	consumer.SetAckRetryPolicy(ingestor.DefaultAckRetry)

	metricsSrv := httpapi.NewServer(cfg.HTTP.Addr, promhttp.Handler(), cfg.HTTP.ShutdownGrace, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return metricsSrv.Run(ctx) })
	g.Go(func() error {
		// The metrics server only lives as long as the consumer.
		defer cancel()
		return consumer.Run(ctx)
	})
	return g.Wait()
}
