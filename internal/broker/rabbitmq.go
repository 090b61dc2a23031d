// Package broker implements delivery of outbox payloads to RabbitMQ.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/orderproc/order-outbox/pkg/infra"
	"github.com/orderproc/order-outbox/pkg/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher delivers a payload to a queue, wrapping every call in a bounded
// retry-with-backoff policy. Each attempt dials a fresh connection so a
// broker restart between relay cycles never leaves the publisher holding a
// dead channel. The publisher knows nothing about persistence state.
type Publisher struct {
	url            string
	retry          infra.RetryPolicy
	confirmTimeout time.Duration
	logger         *slog.Logger
}

func NewPublisher(url string, retry infra.RetryPolicy, confirmTimeout time.Duration, l *slog.Logger) *Publisher {
	p := &Publisher{
		url:            url,
		retry:          retry,
		confirmTimeout: confirmTimeout,
		logger:         l,
	}

	p.retry.OnRetry = func(attempt int, err error) {
		metrics.PublishRetries.Inc()
		l.Warn("publish attempt failed, retrying", "attempt", attempt, "error", err)
	}

	return p
}

// Publish sends the payload to the named queue and blocks until the broker
// confirms persistence or the retry budget is exhausted. The caller observes
// only the final success or failure, never intermediate attempts.
func (p *Publisher) Publish(ctx context.Context, payload []byte, queue string) error {
	return p.retry.Do(ctx, func(ctx context.Context) error {
		return p.publishOnce(ctx, payload, queue)
	})
}

func (p *Publisher) publishOnce(ctx context.Context, payload []byte, queue string) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to activate publisher confirms: %w", err)
	}

	// Idempotent declare: the queue survives broker restarts
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	deferred, err := ch.PublishWithDeferredConfirmWithContext(
		ctx,
		"",
		queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
		},
	)
	if err != nil {
		return fmt.Errorf("publish call failed: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deferred.Done():
		if !deferred.Acked() {
			return fmt.Errorf("RabbitMQ NACK received: message not persisted")
		}
		p.logger.Debug("event published", "queue", queue, "bytes", len(payload))
		return nil
	case <-time.After(p.confirmTimeout):
		return fmt.Errorf("publisher confirm timeout")
	}
}
