package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/jonathan/startup-matcher/internal/matching"
	"github.com/jonathan/startup-matcher/internal/retry"
	"github.com/jonathan/startup-matcher/internal/types"
)

// DefaultWorkers is the number of uploads processed concurrently.
const DefaultWorkers = 3

// Matcher stores a candidate and computes its matches.
type Matcher interface {
	HandleUpload(ctx context.Context, c *types.CandidateRecord) (*matching.UploadResult, error)
}

// Publisher sends match updates back to the uploader.
type Publisher interface {
	Publish(ctx context.Context, u *MatchUpdate) error
}

// Processor turns one upload body into stored matches.
type Processor struct {
	Matcher   Matcher
	Blobs     BlobStore
	Publisher Publisher
	// BlobRetry governs reads from the blob store.
	BlobRetry retry.Runner
	Now       func() time.Time
	Logger    *slog.Logger
}

func (p *Processor) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default().With("component", "ingress")
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Process handles one upload. Invalid bodies fail with ErrInvalidMessage.
// Publishing is best effort: the matches are already stored.
func (p *Processor) Process(ctx context.Context, body []byte) (*MatchUpdate, error) {
	msg, err := DecodeUpload(body)
	if err != nil {
		return nil, err
	}

	text, err := p.derivedText(ctx, msg)
	if err != nil {
		p.publish(ctx, &MatchUpdate{
			CandidateEmail: msg.Email,
			Status:         StatusFailed,
			Message:        "could not read profile text",
			Timestamp:      p.now(),
		})
		return nil, err
	}

	res, err := p.Matcher.HandleUpload(ctx, msg.Candidate(text))
	if err != nil {
		return nil, fmt.Errorf("failed to process upload for %s: %w", msg.Email, err)
	}

	update := &MatchUpdate{
		CandidateEmail: msg.Email,
		Status:         StatusMatched,
		Embedded:       res.Embedded,
		Matches:        res.Matches,
		Timestamp:      p.now(),
	}
	if !res.Embedded {
		update.Status = StatusPending
		update.Message = "embedding service unavailable, matches will follow"
	}
	p.publish(ctx, update)
	p.logger().Info("upload processed", "email", msg.Email, "embedded", res.Embedded, "matches", len(res.Matches))
	return update, nil
}

func (p *Processor) derivedText(ctx context.Context, msg *UploadMessage) (string, error) {
	if msg.TextObjectKey == "" {
		return msg.Text, nil
	}
	if p.Blobs == nil {
		return "", fmt.Errorf("%w: %s references a blob but no bucket is configured", ErrInvalidMessage, msg.Email)
	}

	runner := p.BlobRetry
	if runner.Policy.MaxAttempts == 0 {
		runner.Policy = retry.DefaultPolicy()
	}
	var data []byte
	err := runner.Do(ctx, "blob "+msg.TextObjectKey, func(ctx context.Context) error {
		var err error
		data, err = p.Blobs.Get(ctx, msg.TextObjectKey)
		return err
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (p *Processor) publish(ctx context.Context, u *MatchUpdate) {
	if p.Publisher == nil {
		return
	}
	if err := p.Publisher.Publish(ctx, u); err != nil {
		p.logger().Warn("failed to publish match update", "email", u.CandidateEmail, "error", err)
	}
}

// AMQPPublisher publishes updates to the match_updates topic exchange.
type AMQPPublisher struct {
	Conn *amqp.Connection
}

// Publish sends u with routing key candidate.<email>.
func (a *AMQPPublisher) Publish(_ context.Context, u *MatchUpdate) error {
	ch, err := a.Conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	body, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal match update: %w", err)
	}
	return ch.Publish(UpdateExchange, RoutingKey(u.CandidateEmail), false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   u.Timestamp,
		Body:        body,
	})
}

// Consumer reads the upload queue with a pool of workers.
type Consumer struct {
	processor *Processor
	workers   int
	logger    *slog.Logger
}

// NewConsumer creates a Consumer. workers <= 0 uses DefaultWorkers.
func NewConsumer(p *Processor, workers int, logger *slog.Logger) *Consumer {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default().With("component", "ingress")
	}
	return &Consumer{processor: p, workers: workers, logger: logger}
}

// Declare sets up the queue and exchange on ch.
func Declare(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(
		UploadQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.ExchangeDeclare(UpdateExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	return nil
}

// Run consumes uploads on conn until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := Declare(ch); err != nil {
		return err
	}
	if err := ch.Qos(c.workers, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}
	deliveries, err := ch.Consume(
		UploadQueue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}

	c.logger.Info("consuming uploads", "queue", UploadQueue, "workers", c.workers)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.work(ctx, deliveries)
		}()
	}

	go func() {
		<-ctx.Done()
		_ = ch.Close()
	}()
	wg.Wait()
	return ctx.Err()
}

func (c *Consumer) work(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			c.handle(ctx, d)
		}
	}
}

// handle acks processed uploads, drops invalid ones and requeues a failed
// upload once.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	_, err := c.processor.Process(ctx, d.Body)
	switch {
	case err == nil:
		if err := d.Ack(false); err != nil {
			c.logger.Error("failed to ack upload", "error", err)
		}
	case errors.Is(err, ErrInvalidMessage):
		c.logger.Warn("dropping invalid upload", "error", err)
		_ = d.Nack(false, false)
	default:
		c.logger.Error("upload failed", "redelivered", d.Redelivered, "error", err)
		_ = d.Nack(false, !d.Redelivered)
	}
}
