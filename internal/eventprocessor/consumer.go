// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package eventprocessor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/finmatch/recommender/internal/metrics"
	"github.com/finmatch/recommender/internal/recommend"
)

// MessageSource is the subset of a Watermill subscriber the consumer
// needs. Tests substitute an in-process Pub/Sub.
type MessageSource interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
	Close() error
}

// InteractionWriter persists normalized interactions.
type InteractionWriter interface {
	InsertInteraction(ctx context.Context, in recommend.UserInteraction) error
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	// Topics are the broker subjects carrying interaction events.
	Topics []string `koanf:"topics"`
}

// DefaultConsumerConfig returns the default consumer configuration.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Topics: []string{"interactions.events"},
	}
}

// ConsumerStats is a snapshot of consumer counters.
type ConsumerStats struct {
	Received  int64
	Persisted int64
	Invalid   int64
	Failed    int64
}

// Consumer subscribes to interaction topics and writes each event to
// the interaction store. Acknowledgment follows persistence: a write
// failure nacks the message for redelivery, while an undecodable
// message is acknowledged and counted so it cannot wedge the stream.
type Consumer struct {
	source     MessageSource
	writer     InteractionWriter
	serializer *Serializer
	cfg        ConsumerConfig
	logger     zerolog.Logger

	received  atomic.Int64
	persisted atomic.Int64
	invalid   atomic.Int64
	failed    atomic.Int64
}

// NewConsumer creates a consumer over the given message source.
func NewConsumer(cfg ConsumerConfig, source MessageSource, writer InteractionWriter, logger zerolog.Logger) *Consumer {
	if len(cfg.Topics) == 0 {
		cfg = DefaultConsumerConfig()
	}
	return &Consumer{
		source:     source,
		writer:     writer,
		serializer: NewSerializer(),
		cfg:        cfg,
		logger:     logger.With().Str("component", "consumer").Logger(),
	}
}

// Serve consumes all configured topics until the context is canceled.
// Implements suture.Service.
func (c *Consumer) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, topic := range c.cfg.Topics {
		g.Go(func() error {
			return c.consumeTopic(ctx, topic)
		})
	}
	return g.Wait()
}

// Stats returns a snapshot of the consumer counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Received:  c.received.Load(),
		Persisted: c.persisted.Load(),
		Invalid:   c.invalid.Load(),
		Failed:    c.failed.Load(),
	}
}

func (c *Consumer) consumeTopic(ctx context.Context, topic string) error {
	messages, err := c.source.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	c.logger.Info().Str("topic", topic).Msg("consuming interaction events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			c.processMessage(ctx, topic, msg)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, topic string, msg *message.Message) {
	c.received.Add(1)

	event, err := c.serializer.Unmarshal(msg.Payload)
	if err != nil {
		// Poison message: redelivery cannot fix it, so acknowledge
		// and count it instead of blocking the stream.
		c.invalid.Add(1)
		metrics.ConsumerMessages.WithLabelValues("invalid").Inc()
		c.logger.Warn().Err(err).
			Str("message_uuid", msg.UUID).
			Str("topic", topic).
			Msg("dropping undecodable event")
		msg.Ack()
		return
	}

	in := event.ToInteraction(time.Now().UTC(), topic)

	if err := c.writer.InsertInteraction(ctx, in); err != nil {
		c.failed.Add(1)
		metrics.ConsumerMessages.WithLabelValues("failed").Inc()
		c.logger.Error().Err(err).
			Str("message_uuid", msg.UUID).
			Str("interaction_id", in.ID).
			Msg("persisting interaction failed, requesting redelivery")
		msg.Nack()
		return
	}

	c.persisted.Add(1)
	metrics.ConsumerMessages.WithLabelValues("persisted").Inc()
	msg.Ack()
}
