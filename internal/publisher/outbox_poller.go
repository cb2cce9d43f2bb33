package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/mercatto/checkout-service/internal/repository"
)

// EventSource is the slice of the repository the poller drives: the outbox
// queue plus the stale-order sweep.
type EventSource interface {
	GetUnpublishedEvents(ctx context.Context, limit int) ([]*repository.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, id int64) error
	ExpireStaleOrders(ctx context.Context, olderThan time.Duration, limit int) ([]uuid.UUID, error)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// OutboxPoller drains the transactional outbox into Kafka and, on a slower
// tick, expires PENDING orders whose payment never arrived so their reserved
// stock returns to the shelf.
type OutboxPoller struct {
	eventTick  time.Duration
	expiryTick time.Duration
	pendingTTL time.Duration
	batchSize  int
	repo       EventSource
	writer     messageWriter
}

func NewOutboxPoller(repo EventSource, pendingTTL time.Duration, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  "order-events",
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &OutboxPoller{
		eventTick:  time.Second,
		expiryTick: time.Minute,
		pendingTTL: pendingTTL,
		batchSize:  100,
		repo:       repo,
		writer:     w,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	expiryTicker := time.NewTicker(p.expiryTick)
	defer eventTicker.Stop()
	defer expiryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-expiryTicker.C:
			p.expireStaleOrders(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	if c, ok := p.writer.(*kafka.Writer); ok {
		return c.Close()
	}
	return nil
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnpublishedEvents(ctx, p.batchSize)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch outbox events", "error", err)
		return
	}

	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			slog.ErrorContext(ctx, "failed to publish outbox event",
				"event_id", event.ID, "event_type", event.EventType, "error", err)
			continue
		}
		if err := p.repo.MarkEventPublished(ctx, event.ID); err != nil {
			slog.ErrorContext(ctx, "failed to mark event published",
				"event_id", event.ID, "error", err)
		}
	}
}

func (p *OutboxPoller) expireStaleOrders(ctx context.Context) {
	ids, err := p.repo.ExpireStaleOrders(ctx, p.pendingTTL, p.batchSize)
	if err != nil {
		slog.ErrorContext(ctx, "failed to expire stale orders", "error", err)
		return
	}
	for _, id := range ids {
		slog.InfoContext(ctx, "expired unpaid order", "order_id", id)
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order number for partition ordering
		Value: event.Payload,             // already JSON from the transaction
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
