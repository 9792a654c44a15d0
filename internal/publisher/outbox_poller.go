package publisher

import (
	"context"
	"time"

	"github.com/fjod/meiduo/internal/repository"
	"github.com/fjod/meiduo/pkg/circuitbreaker"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
)

const Topic = "orders-outbox"

// MessageWriter is the subset of *kafka.Writer the poller uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller publishes committed outbox rows to Kafka and marks them
// processed. Rows are delivered at least once.
type OutboxPoller struct {
	eventTick time.Duration
	batchSize int
	repo      repository.OutboxRepository
	writer    MessageWriter
	breaker   *gobreaker.CircuitBreaker[struct{}]
	log       zerolog.Logger
}

func NewOutboxPoller(repo repository.OutboxRepository, log zerolog.Logger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.Hash{}, // same order id, same partition
		AllowAutoTopicCreation: true,
	}
	return NewOutboxPollerWithWriter(repo, w, log)
}

func NewOutboxPollerWithWriter(repo repository.OutboxRepository, writer MessageWriter, log zerolog.Logger) *OutboxPoller {
	return &OutboxPoller{
		eventTick: time.Second,
		batchSize: 100,
		repo:      repo,
		writer:    writer,
		breaker: circuitbreaker.New[struct{}](circuitbreaker.Config{
			Name:        "kafka-outbox",
			MaxFailures: 5,
			OpenTimeout: 30 * time.Second,
			Logger:      log,
		}),
		log: log.With().Str("component", "outbox-poller").Logger(),
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to fetch outbox events")
		return
	}

	for _, event := range events {
		_, err := p.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, p.publishToKafka(ctx, event)
		})
		if err != nil {
			p.log.Warn().Err(err).Str("event_id", event.ID).Msg("failed to publish outbox event")
			// keep creation order per aggregate; retry the rest on the next tick
			return
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.Error().Err(err).Str("event_id", event.ID).Msg("failed to mark outbox event as processed")
			return
		}
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
