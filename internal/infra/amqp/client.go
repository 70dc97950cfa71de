// Package amqp publishes backup jobs to RabbitMQ and consumes them in the
// backup worker.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
)

var tracer = otel.Tracer("amqp")

const (
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

// JobHandler processes one backup job. Returning an error requeues it.
type JobHandler func(ctx context.Context, job *domain.BackupJob) error

// Client owns one connection and channel. Publishing reconnects lazily;
// consuming reconnects with exponential backoff.
type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewClient dials the broker and declares the exchange and queue.
func NewClient(url, exchangeName, queueName string, cb *gobreaker.CircuitBreaker, logger *zap.Logger) (*Client, error) {
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		cb:           cb,
		logger:       logger,
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	c.conn, c.channel = conn, channel

	if err := c.setupLocked(); err != nil {
		c.closeLocked()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}
	return nil
}

func (c *Client) setupLocked() error {
	if err := c.channel.ExchangeDeclare(c.exchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := c.channel.QueueDeclare(c.queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	// direct exchange: the routing key is the queue name
	if err := c.channel.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// PublishBackupJob sends a persistent job message.
func (c *Client) PublishBackupJob(ctx context.Context, job *domain.BackupJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "AMQP.PublishBackupJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", job.ID), attribute.String("amqp.queue", c.queueName))

	body, err := NewBackupJobMessage(job).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	_, err = c.cb.Execute(func() (any, error) {
		err := c.publish(ctx, body)
		if err != nil && isConnectionError(err) {
			c.logger.Warn("AMQP connection lost, reconnecting before retry", zap.Error(err))
			if rerr := c.connect(); rerr != nil {
				return nil, rerr
			}
			err = c.publish(ctx, body)
		}
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: "amqp"}
	}
	if err != nil {
		return &domain.ErrExternalService{Service: "amqp", Err: err}
	}

	c.logger.Info("published backup job",
		zap.String("job_id", job.ID),
		zap.String("user_id", job.UserID),
		zap.String("exchange", c.exchangeName),
		zap.String("queue", c.queueName),
	)
	return nil
}

func (c *Client) publish(ctx context.Context, body []byte) error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil || channel.IsClosed() {
		return amqp091.ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return channel.PublishWithContext(ctx, c.exchangeName, c.queueName, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// ConsumeBackupJobs delivers jobs to handler until ctx is cancelled, running
// up to concurrency handlers at once. The broker prefetch matches
// concurrency so unacked jobs wait in the queue rather than in this process.
// Malformed messages are dropped; handler failures are requeued.
func (c *Client) ConsumeBackupJobs(ctx context.Context, concurrency int, handler JobHandler) error {
	if concurrency < 1 {
		concurrency = 1
	}
	attempt := 0
	for {
		err := c.consumeOnce(ctx, concurrency, handler)
		if ctx.Err() != nil {
			c.logger.Info("stopping message consumption", zap.Error(ctx.Err()))
			return ctx.Err()
		}
		if err != nil && !isConnectionError(err) {
			return err
		}

		wait := exponentialBackoff(attempt)
		attempt++
		c.logger.Warn("AMQP consumer disconnected, reconnecting",
			zap.Error(err), zap.Duration("backoff", wait), zap.Int("attempt", attempt))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if err := c.connect(); err != nil {
			c.logger.Error("AMQP reconnect failed", zap.Error(err))
			continue
		}
		attempt = 0
	}
}

func (c *Client) consumeOnce(ctx context.Context, concurrency int, handler JobHandler) error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		return amqp091.ErrClosed
	}

	if err := channel.Qos(concurrency, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	msgs, err := channel.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	c.logger.Info("consuming backup jobs",
		zap.String("queue", c.queueName),
		zap.Int("concurrency", concurrency),
	)

	return c.consumeDeliveries(ctx, msgs, concurrency, handler)
}

// consumeDeliveries hands each delivery to its own goroutine, at most
// concurrency at a time, and waits for in-flight jobs before returning.
func (c *Client) consumeDeliveries(ctx context.Context, msgs <-chan amqp091.Delivery, concurrency int, handler JobHandler) error {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed: %w", amqp091.ErrClosed)
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				_ = delivery.Nack(false, true)
				return ctx.Err()
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				c.handleDelivery(ctx, delivery, handler)
			}()
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, delivery amqp091.Delivery, handler JobHandler) {
	msg, err := BackupJobMessageFromJSON(delivery.Body)
	if err != nil {
		c.logger.Error("failed to decode backup job", zap.Error(err))
		_ = delivery.Nack(false, false)
		return
	}

	ctx, span := tracer.Start(ctx, "AMQP.HandleBackupJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", msg.JobID))

	if err := handler(ctx, msg.Job()); err != nil {
		c.logger.Error("backup job failed",
			zap.String("job_id", msg.JobID),
			zap.Bool("redelivered", delivery.Redelivered),
			zap.Error(err),
		)
		// one redelivery, then give up
		_ = delivery.Nack(false, !delivery.Redelivered)
		return
	}

	_ = delivery.Ack(false)
	c.logger.Info("backup job processed", zap.String("job_id", msg.JobID))
}

// Close closes the channel and the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	var err error
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	return err
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
