package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/streadway/amqp"

	"github.com/jonathan/startup-matcher/internal/ingress"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Process candidate uploads from RabbitMQ and publish their matches",
	RunE:  runConsume,
}

var consumeWorkers int

func init() {
	consumeCmd.Flags().IntVarP(&consumeWorkers, "workers", "w", 0, "Concurrent uploads (default: ingress.workers)")

	rootCmd.AddCommand(consumeCmd)
}

func newBlobStore(ctx context.Context) (*ingress.S3Store, error) {
	b := cfg.Ingress.Blob
	return ingress.NewS3Store(ctx, ingress.S3Config{
		Endpoint:  b.Endpoint,
		Region:    b.Region,
		Bucket:    b.Bucket,
		AccessKey: b.AccessKey,
		SecretKey: b.SecretKey,
	})
}

func runConsume(cmd *cobra.Command, _ []string) error {
	if cfg.Ingress.AMQPURL == "" {
		return fmt.Errorf("RabbitMQ URL required: set ingress.amqp_url in the config or RABBITMQ_URL")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	conn, err := amqp.Dial(cfg.Ingress.AMQPURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer conn.Close()

	p := &ingress.Processor{
		Matcher:   a.engine,
		Publisher: &ingress.AMQPPublisher{Conn: conn},
	}
	if cfg.Ingress.Blob.Bucket != "" {
		blobs, err := newBlobStore(ctx)
		if err != nil {
			return err
		}
		p.Blobs = blobs
	}

	workers := consumeWorkers
	if workers <= 0 {
		workers = cfg.Ingress.Workers
	}
	err = ingress.NewConsumer(p, workers, nil).Run(ctx, conn)
	if errors.Is(err, context.Canceled) {
		slog.Info("consumer stopped")
		return nil
	}
	return err
}
