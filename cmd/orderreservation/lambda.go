package main

import (
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/baldanca/order-reservation/ingestor"
	"github.com/baldanca/order-reservation/lambdafn"
)

func lambdaHTTPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lambda-http",
		Short: "Run as an API Gateway backed Lambda function",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := newSink(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			lambda.Start(lambdafn.NewHTTPHandler(ingestor.New(s, logger), logger).Handle)
			return nil
		},
	}
}

func lambdaQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lambda-queue",
		Short: "Run as an SQS triggered Lambda function",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := newSink(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			h := lambdafn.NewQueueHandler(lambdafn.QueueConfig{
				ReportBatchItemFailures: cfg.Lambda.ReportBatchItemFailures,
				MaxAttempts:             cfg.Queue.MaxAttempts,
			}, ingestor.New(s, logger), logger)
			lambda.Start(h.Handle)
			return nil
		},
	}
}
