package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"reservas/internal/config"
	"reservas/internal/metrics"
	"reservas/internal/models"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageSource is the subset of *kafka.Reader the consumer needs.
type MessageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler applies one decoded catalog event.
type Handler interface {
	Handle(ctx context.Context, ev models.CatalogEvent) error
}

// Backoff decides how long to wait before the next attempt to apply a message.
type Backoff interface {
	NextDelay(attempt int) time.Duration
	ShouldRetry(attempt int) bool
}

// NewKafkaReader joins the consumer group for the catalog topic.
func NewKafkaReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
		Dialer: &kafka.Dialer{
			ClientID: cfg.ClientID,
			Timeout:  10 * time.Second,
		},
	})
}

// Consumer reads one message at a time and commits only after it was applied
// or deliberately skipped.
type Consumer struct {
	source  MessageSource
	handler Handler
	backoff Backoff
	logger  *zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewConsumer(source MessageSource, handler Handler, backoff Backoff, logger *zerolog.Logger) *Consumer {
	return &Consumer{
		source:  source,
		handler: handler,
		backoff: backoff,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Run blocks until ctx is cancelled, the source is closed, or a message keeps
// failing after all retries. In the last case the message stays uncommitted.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info().Msg("catalog consumer started")
	defer c.logger.Info().Msg("catalog consumer stopped")

	for {
		msg, err := c.source.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		stop, err := c.process(ctx, msg)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) (bool, error) {
	ev, err := DecodeMessage(msg)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("key", string(msg.Key)).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("skipping malformed catalog event")
		metrics.IncProjector(headerType(msg), "malformed")
		return false, c.commit(ctx, msg)
	}

	for attempt := 1; ; attempt++ {
		err := c.handler.Handle(ctx, ev)
		if err == nil {
			return false, c.commit(ctx, msg)
		}

		metrics.IncProjector(string(ev.Kind), "failed")
		if !c.backoff.ShouldRetry(attempt) {
			return false, fmt.Errorf("apply %s for space %d at offset %d after %d attempts: %w",
				ev.Kind, ev.Space.ID, msg.Offset, attempt, err)
		}

		delay := c.backoff.NextDelay(attempt)
		c.logger.Error().
			Err(err).
			Int64("space_id", ev.Space.ID).
			Str("event_type", string(ev.Kind)).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("failed to apply catalog event")
		if err := c.sleep(ctx, delay); err != nil {
			// shutting down; the message is redelivered to whoever owns the partition next
			return true, nil
		}
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) error {
	if err := c.source.CommitMessages(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
	}
	return nil
}

func headerType(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == HeaderEventType {
			return string(h.Value)
		}
	}
	return "unknown"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
