package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/orderproc/order-outbox/internal/models"
	"github.com/orderproc/order-outbox/pkg/metrics"
)

// RelayStore is the storage contract for the relay path.
type RelayStore interface {
	FetchPending(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkProcessed(ctx context.Context, events []models.OutboxEvent) error
}

// EventPublisher is the broker contract for the relay path.
type EventPublisher interface {
	Publish(ctx context.Context, payload []byte, queue string) error
}

// Relay drains pending outbox events to the broker on a fixed cadence.
// Delivery is strictly ordered: a publish failure aborts the current batch so
// a later event is never marked processed while an earlier one is stuck. The
// trade-off is head-of-line blocking — a poison event that keeps failing will
// stall the whole queue and retry every cycle until it goes through, which
// operators can spot via the outbox_backlog gauge.
type Relay struct {
	store     RelayStore
	publisher EventPublisher
	queue     string
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

func NewRelay(store RelayStore, publisher EventPublisher, queue string, interval time.Duration, batchSize int, l *slog.Logger) *Relay {
	return &Relay{
		store:     store,
		publisher: publisher,
		queue:     queue,
		interval:  interval,
		batchSize: batchSize,
		logger:    l,
		now:       time.Now,
	}
}

// Run loops until ctx is cancelled. A failed cycle is logged and retried on
// the next tick; the loop itself only ends with the process. Cancellation is
// honored between cycles and during the sleep, never mid-transaction.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", "interval", r.interval, "queue", r.queue)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if err := r.RunCycle(ctx); err != nil {
				r.logger.Error("relay cycle failed, retrying next tick", "error", err)
			}
		}
	}
}

// RunCycle executes one fetch/drain/persist pass. Events delivered before a
// failure are still persisted as processed; the failed event and everything
// after it stay pending for the next cycle.
func (r *Relay) RunCycle(ctx context.Context) error {
	start := time.Now()

	events, err := r.store.FetchPending(ctx, r.batchSize)
	if err != nil {
		return fmt.Errorf("fetch pending events: %w", err)
	}

	metrics.Backlog.Set(float64(len(events)))
	if len(events) == 0 {
		return nil
	}

	metrics.BatchSize.Observe(float64(len(events)))
	defer func() {
		metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	delivered := make([]models.OutboxEvent, 0, len(events))
	var publishErr error

	for i := range events {
		event := &events[i]

		if err := r.publisher.Publish(ctx, event.Payload, r.queue); err != nil {
			// Stop draining: marking later events would reorder the stream
			r.logger.Error("publish failed, aborting batch to preserve order",
				"event_id", event.ID,
				"event_type", event.EventType,
				"error", err,
			)
			metrics.EventsPublished.WithLabelValues("error").Inc()
			publishErr = err
			break
		}

		event.MarkProcessed(r.now().UTC())
		metrics.EventsPublished.WithLabelValues("sent").Inc()
		delivered = append(delivered, *event)
	}

	if len(delivered) > 0 {
		// A commit in flight always completes: the persist step must not be
		// torn by shutdown after the broker already accepted the events
		persistCtx := context.WithoutCancel(ctx)
		if err := r.store.MarkProcessed(persistCtx, delivered); err != nil {
			return fmt.Errorf("persist processed marks: %w", err)
		}

		r.logger.Info("relay cycle complete",
			"delivered", len(delivered),
			"fetched", len(events),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	if publishErr != nil {
		return fmt.Errorf("drain aborted: %w", publishErr)
	}
	return nil
}
