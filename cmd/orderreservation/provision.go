package main

import (
	"github.com/spf13/cobra"

	"github.com/baldanca/order-reservation/provision"
)

func provisionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create the bucket and apply the queue redrive policy",
		Long: `Creates the storage bucket when it is missing. When queue.url is set it also
sets the visibility timeout and the redrive policy of the queue, so a message
failing queue.maxAttempts times is moved to queue.deadLetterArn.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Queue.URL != "" {
				if err := cfg.RequireDeadLetter(); err != nil {
					return err
				}
			}
			ctx := createContextWithShutdown(cmd.Context())

			awsCfg, err := loadAWSConfig(ctx, cfg)
			if err != nil {
				return err
			}

			pcfg := provision.Config{
				Bucket:             cfg.Storage.Bucket,
				Region:             awsCfg.Region,
				QueueURL:           cfg.Queue.URL,
				DeadLetterQueueARN: cfg.Queue.DeadLetterARN,
				MaxReceiveCount:    cfg.Queue.MaxAttempts,
				VisibilityTimeout:  cfg.Queue.VisibilityTimeout,
			}
			var p *provision.Provisioner
			if cfg.Queue.URL != "" {
				p, err = provision.New(pcfg, newS3Client(awsCfg, cfg.Storage), newSQSClient(awsCfg), logger)
			} else {
				p, err = provision.New(pcfg, newS3Client(awsCfg, cfg.Storage), nil, logger)
			}
			if err != nil {
				return err
			}
			return p.Apply(ctx)
		},
	}
	cmd.Flags().String("queue.url", "", "URL of the SQS queue to configure")
	cmd.Flags().String("queue.deadLetterArn", "", "ARN of the dead-letter queue")
	return cmd
}
