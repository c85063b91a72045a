package events

import (
	"context"
	"fmt"
	"time"

	"reservas/internal/config"
	"reservas/internal/models"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds the catalog topic writer.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &SpaceBalancer{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
		Transport: &kafka.Transport{
			ClientID: cfg.ClientID,
		},
	}
}

// KafkaPublisher emits catalog events. Failures are returned, never retried here.
type KafkaPublisher struct {
	writer MessageWriter
	logger *zerolog.Logger
}

func NewKafkaPublisher(writer MessageWriter, logger *zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev models.CatalogEvent) error {
	msg, err := EncodeMessage(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s for space %d: %w", ev.Kind, ev.Space.ID, err)
	}
	p.logger.Debug().
		Str("key", string(msg.Key)).
		Str("event_type", string(ev.Kind)).
		Msg("catalog event published")
	return nil
}

// PublishBatch writes events in the given order in a single call.
func (p *KafkaPublisher) PublishBatch(ctx context.Context, evs []models.CatalogEvent) error {
	if len(evs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(evs))
	now := time.Now().UTC()
	for _, ev := range evs {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = now
		}
		msg, err := EncodeMessage(ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish batch of %d events: %w", len(msgs), err)
	}
	p.logger.Info().Int("count", len(msgs)).Msg("catalog event batch published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
